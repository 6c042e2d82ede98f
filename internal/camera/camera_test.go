package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"
)

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	return img
}

// blockingTrack never delivers a frame until closed
type blockingTrack struct {
	closed chan struct{}
	closes atomic.Int32
}

func newBlockingTrack() *blockingTrack {
	return &blockingTrack{closed: make(chan struct{})}
}

func (t *blockingTrack) ReadFrame() (image.Image, error) {
	<-t.closed
	return nil, ErrTrackClosed
}

func (t *blockingTrack) Close() error {
	if t.closes.Add(1) == 1 {
		close(t.closed)
	}
	return nil
}

type fakeDevice struct {
	tracks []Track
	err    error
}

func (d *fakeDevice) Open(ctx context.Context, c Constraints) ([]Track, error) {
	return d.tracks, d.err
}

func TestStartWaitsForFirstFrame(t *testing.T) {
	ctrl := NewController(NewStillDevice(solidFrame(64, 48)))

	stream, err := ctrl.Start(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer ctrl.Stop(stream)

	w, h := stream.Dimensions()
	if w != 64 || h != 48 {
		t.Errorf("Expected 64x48, got %dx%d", w, h)
	}
	if _, ok := stream.Frame(); !ok {
		t.Error("Expected a frame after Start")
	}
}

func TestStartProceedsAfterReadyTimeout(t *testing.T) {
	track := newBlockingTrack()
	ctrl := NewController(&fakeDevice{tracks: []Track{track}})
	ctrl.ReadyTimeout = 20 * time.Millisecond

	stream, err := ctrl.Start(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !stream.Active() {
		t.Error("Expected stream to stay active after ready timeout")
	}
	if _, ok := stream.Frame(); ok {
		t.Error("Expected no frame from a track that never delivered one")
	}

	ctrl.Stop(stream)
	if track.closes.Load() != 1 {
		t.Errorf("Expected track closed once, got %d", track.closes.Load())
	}
}

func TestStartCancelledWhileWaiting(t *testing.T) {
	track := newBlockingTrack()
	ctrl := NewController(&fakeDevice{tracks: []Track{track}})
	ctrl.ReadyTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	stream, err := ctrl.Start(ctx, DefaultConstraints())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if stream != nil {
		t.Error("Expected nil stream on cancellation")
	}
	if track.closes.Load() != 1 {
		t.Errorf("Expected cancelled start to close the track, got %d closes", track.closes.Load())
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name     string
		ctrl     *Controller
		expected error
	}{
		{
			name:     "no device",
			ctrl:     NewController(nil),
			expected: ErrDeviceUnavailable,
		},
		{
			name:     "permission denied",
			ctrl:     NewController(&fakeDevice{err: ErrPermissionDenied}),
			expected: ErrPermissionDenied,
		},
		{
			name:     "unknown device error",
			ctrl:     NewController(&fakeDevice{err: errors.New("ioctl failed")}),
			expected: ErrDeviceUnavailable,
		},
		{
			name:     "no tracks",
			ctrl:     NewController(&fakeDevice{}),
			expected: ErrDeviceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ctrl.Start(context.Background(), DefaultConstraints())
			if !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
			if Message(err) == "" {
				t.Error("Expected a user-facing message")
			}
		})
	}
}

func TestStopIsIdempotent(t *testing.T) {
	track := newBlockingTrack()
	ctrl := NewController(&fakeDevice{tracks: []Track{track}})
	ctrl.ReadyTimeout = time.Millisecond

	stream, err := ctrl.Start(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	ctrl.Stop(stream)
	ctrl.Stop(stream)
	ctrl.Stop(nil)

	if stream.Active() {
		t.Error("Expected stream to be stopped")
	}
	if track.closes.Load() != 1 {
		t.Errorf("Expected exactly one close, got %d", track.closes.Load())
	}
}

func TestStillDeviceRejectsMissingImage(t *testing.T) {
	_, err := (&StillDevice{}).Open(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
}
