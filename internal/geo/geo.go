package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/freeoffice/fieldcam/internal/models"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultGeocodeTimeout = 10 * time.Second
)

var (
	ErrUnsupported         = errors.New("geolocation not supported")
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("geolocation timed out")
)

// Position is a single device position fix
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// PositionOptions mirrors the one-shot position request options
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Locator is the platform geolocation capability
type Locator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// Geocoder turns coordinates into a human-readable address
type Geocoder interface {
	Reverse(ctx context.Context, latitude, longitude float64) (string, error)
}

// Fixed always reports the same position
type Fixed struct {
	Position Position
}

func (f Fixed) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return f.Position, nil
}

// Resolver resolves the device position and its address
type Resolver struct {
	Locator        Locator
	Geocoder       Geocoder
	Timeout        time.Duration
	GeocodeTimeout time.Duration
}

// NewResolver creates a resolver with the default timeouts. Either
// argument may be nil.
func NewResolver(locator Locator, geocoder Geocoder) *Resolver {
	return &Resolver{
		Locator:        locator,
		Geocoder:       geocoder,
		Timeout:        DefaultTimeout,
		GeocodeTimeout: DefaultGeocodeTimeout,
	}
}

// Resolve requests a fresh high-accuracy position and reverse-geocodes it.
// A failed geocode still yields a resolved snapshot without an address.
// On error the returned snapshot is unresolved and carries the reason.
func (r *Resolver) Resolve(ctx context.Context) (models.LocationSnapshot, error) {
	if r.Locator == nil {
		return models.Unresolved(Message(ErrUnsupported)), ErrUnsupported
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	posCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := r.Locator.CurrentPosition(posCtx, PositionOptions{
		HighAccuracy: true,
		Timeout:      timeout,
		MaximumAge:   0,
	})
	if err != nil {
		err = classify(ctx, posCtx, err)
		slog.Warn("Unable to fetch location", "error", err)
		return models.Unresolved(Message(err)), err
	}

	address := r.reverse(ctx, pos)
	return models.Resolved(pos.Latitude, pos.Longitude, address), nil
}

func (r *Resolver) reverse(ctx context.Context, pos Position) string {
	if r.Geocoder == nil {
		return ""
	}

	timeout := r.GeocodeTimeout
	if timeout <= 0 {
		timeout = DefaultGeocodeTimeout
	}
	geoCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address, err := r.Geocoder.Reverse(geoCtx, pos.Latitude, pos.Longitude)
	if err != nil {
		slog.Warn("Reverse geocoding failed, showing coordinates only", "lat", pos.Latitude, "lon", pos.Longitude, "error", err)
		return ""
	}
	return address
}

func classify(parent, posCtx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrPositionUnavailable), errors.Is(err, ErrTimeout):
		return err
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded), posCtx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
}

// Message returns the text shown to the user for a location failure
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupported):
		return "Location not supported on this device."
	case errors.Is(err, ErrPermissionDenied):
		return "Unable to fetch location. Check permissions."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out."
	default:
		return "Location unavailable."
	}
}
