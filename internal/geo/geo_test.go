package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freeoffice/fieldcam/internal/models"
)

type locatorFunc func(ctx context.Context, opts PositionOptions) (Position, error)

func (f locatorFunc) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	return f(ctx, opts)
}

type geocoderFunc func(ctx context.Context, lat, lon float64) (string, error)

func (f geocoderFunc) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	return f(ctx, lat, lon)
}

func TestResolveGeocodeFailureKeepsCoordinates(t *testing.T) {
	r := NewResolver(
		Fixed{Position: Position{Latitude: 21.028511, Longitude: 105.804817}},
		geocoderFunc(func(ctx context.Context, lat, lon float64) (string, error) {
			return "", errors.New("dial tcp: network is unreachable")
		}),
	)

	snap, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Expected geocode failure to be swallowed, got %v", err)
	}
	if snap.Status != models.LocationResolved {
		t.Errorf("Expected resolved status, got %s", snap.Status)
	}
	if snap.Coordinates != "21.028511, 105.804817" {
		t.Errorf("Unexpected coordinates %q", snap.Coordinates)
	}
	if snap.HasAddress() {
		t.Errorf("Expected no address, got %q", snap.Address)
	}
}

func TestResolveRequestsFreshHighAccuracyPosition(t *testing.T) {
	var got PositionOptions
	r := NewResolver(locatorFunc(func(ctx context.Context, opts PositionOptions) (Position, error) {
		got = opts
		return Position{Latitude: 10.5, Longitude: 106.25}, nil
	}), geocoderFunc(func(ctx context.Context, lat, lon float64) (string, error) {
		return "12 Le Loi, Ben Nghe, District 1, Ho Chi Minh City, Vietnam", nil
	}))
	r.Timeout = 12 * time.Second

	snap, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !got.HighAccuracy || got.MaximumAge != 0 || got.Timeout != 12*time.Second {
		t.Errorf("Unexpected position options %+v", got)
	}
	if snap.Address != "12 Le Loi, Ben Nghe, District 1, Ho Chi Minh City, Vietnam" {
		t.Errorf("Unexpected address %q", snap.Address)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		locator  Locator
		expected error
	}{
		{
			name:     "no locator",
			locator:  nil,
			expected: ErrUnsupported,
		},
		{
			name: "permission denied",
			locator: locatorFunc(func(ctx context.Context, opts PositionOptions) (Position, error) {
				return Position{}, ErrPermissionDenied
			}),
			expected: ErrPermissionDenied,
		},
		{
			name: "timeout",
			locator: locatorFunc(func(ctx context.Context, opts PositionOptions) (Position, error) {
				<-ctx.Done()
				return Position{}, ctx.Err()
			}),
			expected: ErrTimeout,
		},
		{
			name: "platform failure",
			locator: locatorFunc(func(ctx context.Context, opts PositionOptions) (Position, error) {
				return Position{}, errors.New("no fix")
			}),
			expected: ErrPositionUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.locator, nil)
			r.Timeout = 20 * time.Millisecond

			snap, err := r.Resolve(context.Background())
			if !errors.Is(err, tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, err)
			}
			if snap.Status != models.LocationUnresolved {
				t.Errorf("Expected unresolved status, got %s", snap.Status)
			}
			if snap.Reason == "" {
				t.Error("Expected a reason on the unresolved snapshot")
			}
		})
	}
}

func TestResolveParentCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(locatorFunc(func(ctx context.Context, opts PositionOptions) (Position, error) {
		return Position{}, ctx.Err()
	}), nil)

	_, err := r.Resolve(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name     string
		response NominatimResponse
		expected string
	}{
		{
			name: "full breakdown in fixed order",
			response: NominatimResponse{Address: &NominatimAddress{
				Country:     "Vietnam",
				City:        "Hanoi",
				District:    "Ba Dinh",
				Suburb:      "Ngoc Khanh",
				Road:        "Lieu Giai",
				HouseNumber: "29",
			}},
			expected: "29, Lieu Giai, Ngoc Khanh, Ba Dinh, Hanoi, Vietnam",
		},
		{
			name: "first non-empty synonym per level",
			response: NominatimResponse{Address: &NominatimAddress{
				Village:       "Dong Anh",
				Neighbourhood: "ignored",
				Town:          "Soc Son",
				Municipality:  "ignored",
				State:         "Hanoi",
			}},
			expected: "Dong Anh, Soc Son, Hanoi",
		},
		{
			name: "province before state",
			response: NominatimResponse{Address: &NominatimAddress{
				Province: "Dak Lak",
				State:    "ignored",
				Country:  "Vietnam",
			}},
			expected: "Dak Lak, Vietnam",
		},
		{
			name: "falls back to display name",
			response: NominatimResponse{
				DisplayName: "Buon Ma Thuot, Dak Lak, Vietnam",
				Address:     &NominatimAddress{},
			},
			expected: "Buon Ma Thuot, Dak Lak, Vietnam",
		},
		{
			name:     "nothing available",
			response: NominatimResponse{},
			expected: AddressUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAddress(tt.response); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNominatimReverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "21.028511" || q.Get("lon") != "105.804817" {
			t.Errorf("Unexpected coordinates %s,%s", q.Get("lat"), q.Get("lon"))
		}
		if q.Get("accept-language") != "vi" {
			t.Errorf("Expected accept-language=vi, got %q", q.Get("accept-language"))
		}
		if r.Header.Get("User-Agent") != "fieldcam-test" {
			t.Errorf("Expected User-Agent header, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"x","address":{"road":"Kim Ma","city":"Hanoi","country":"Vietnam"}}`))
	}))
	defer server.Close()

	n := NewNominatim(server.URL+"/", "fieldcam-test", "vi")
	address, err := n.Reverse(context.Background(), 21.028511, 105.804817)
	if err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	if address != "Kim Ma, Hanoi, Vietnam" {
		t.Errorf("Unexpected address %q", address)
	}
}

func TestNominatimReverseErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream down"},
		{name: "error body", status: http.StatusOK, body: `{"error":"Unable to geocode"}`},
		{name: "invalid json", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			if _, err := NewNominatim(server.URL, "", "").Reverse(context.Background(), 1, 2); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
