package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	AddressUnavailable  = "Address unavailable"
)

// NominatimAddress is the structured address breakdown of a reverse lookup
type NominatimAddress struct {
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	Suburb        string `json:"suburb"`
	Village       string `json:"village"`
	Neighbourhood string `json:"neighbourhood"`
	District      string `json:"district"`
	Town          string `json:"town"`
	Municipality  string `json:"municipality"`
	City          string `json:"city"`
	Province      string `json:"province"`
	State         string `json:"state"`
	Country       string `json:"country"`
}

// NominatimResponse represents the reverse endpoint response
type NominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     *NominatimAddress `json:"address"`
	Error       string            `json:"error"`
}

// Nominatim is a reverse geocoding client for Nominatim-compatible services
type Nominatim struct {
	BaseURL    string
	UserAgent  string
	Language   string
	HTTPClient *http.Client
}

// NewNominatim creates a client for the given base URL
func NewNominatim(baseURL, userAgent, language string) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Nominatim{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Language:  language,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Reverse looks up the address for the given coordinates
func (n *Nominatim) Reverse(ctx context.Context, latitude, longitude float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(longitude, 'f', -1, 64))
	q.Set("addressdetails", "1")
	if n.Language != "" {
		q.Set("accept-language", n.Language)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", n.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if n.UserAgent != "" {
		req.Header.Set("User-Agent", n.UserAgent)
	}

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("geocoder returned status %d: %s", resp.StatusCode, string(body))
	}

	var result NominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("geocoder error: %s", result.Error)
	}

	return FormatAddress(result), nil
}

// FormatAddress assembles a display address in a fixed order: house number,
// road, ward, district, city, country. Each level takes the first non-empty
// of its synonymous fields.
func FormatAddress(r NominatimResponse) string {
	var parts []string
	if a := r.Address; a != nil {
		levels := [][]string{
			{a.HouseNumber},
			{a.Road},
			{a.Suburb, a.Village, a.Neighbourhood},
			{a.District, a.Town, a.Municipality},
			{a.City, a.Province, a.State},
			{a.Country},
		}
		for _, level := range levels {
			if v := firstNonEmpty(level...); v != "" {
				parts = append(parts, v)
			}
		}
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if name := strings.TrimSpace(r.DisplayName); name != "" {
		return name
	}
	return AddressUnavailable
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
