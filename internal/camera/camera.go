package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// DefaultReadyTimeout bounds how long Start waits for the first frame
const DefaultReadyTimeout = 8 * time.Second

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrTrackClosed       = errors.New("camera track closed")
)

// Constraints describes the stream the caller would like to receive.
// Width and Height are ideals, devices may deliver something else.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// DefaultConstraints asks for the rear camera at full HD
func DefaultConstraints() Constraints {
	return Constraints{
		FacingMode: "environment",
		Width:      1920,
		Height:     1080,
	}
}

// Track is a single live video track
type Track interface {
	// ReadFrame blocks until the next frame is available or the track is closed
	ReadFrame() (image.Image, error)
	Close() error
}

// Device is the platform camera capability
type Device interface {
	Open(ctx context.Context, constraints Constraints) ([]Track, error)
}

// Controller acquires and releases camera streams
type Controller struct {
	Device       Device
	ReadyTimeout time.Duration
}

// NewController creates a controller for the given device
func NewController(device Device) *Controller {
	return &Controller{
		Device:       device,
		ReadyTimeout: DefaultReadyTimeout,
	}
}

// Start opens a stream and waits until it delivers a frame with usable
// dimensions. When the wait times out the stream is returned anyway.
// Cancelling ctx while waiting stops the stream.
func (c *Controller) Start(ctx context.Context, constraints Constraints) (*Stream, error) {
	if c.Device == nil {
		return nil, fmt.Errorf("failed to start camera stream: %w", ErrDeviceUnavailable)
	}

	tracks, err := c.Device.Open(ctx, constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to start camera stream: %w", classify(err))
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("failed to start camera stream: %w: no video track", ErrDeviceUnavailable)
	}

	stream := newStream(tracks)
	slog.Debug("Camera stream opened", "stream_id", stream.ID, "tracks", len(tracks))

	if err := ctx.Err(); err != nil {
		stream.Stop()
		return nil, err
	}

	timeout := c.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-stream.Ready():
		w, h := stream.Dimensions()
		slog.Info("Camera stream ready", "stream_id", stream.ID, "width", w, "height", h)
	case <-timer.C:
		slog.Warn("Camera stream did not report a frame in time, continuing", "stream_id", stream.ID, "timeout", timeout)
	case <-ctx.Done():
		stream.Stop()
		return nil, ctx.Err()
	}

	return stream, nil
}

// Stop releases every track of the stream. Safe on nil and stopped streams.
func (c *Controller) Stop(stream *Stream) {
	if stream == nil {
		return
	}
	stream.Stop()
}

func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// Message returns the text shown to the user for a stream failure
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access was denied. Allow camera permission and retry."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No compatible camera was found on this device."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Camera start was cancelled."
	default:
		return "Unable to access the camera. Check permissions and device compatibility."
	}
}
