package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freeoffice/fieldcam/internal/camera"
	"github.com/freeoffice/fieldcam/internal/geo"
	"github.com/freeoffice/fieldcam/internal/models"
	"github.com/freeoffice/fieldcam/internal/overlay"
)

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 120, B: 60, A: 255})
		}
	}
	return img
}

// countingDevice tracks how many tracks are open at any instant
type countingDevice struct {
	frame  image.Image
	err    error
	fails  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	opens  atomic.Int32
}

func (d *countingDevice) Open(ctx context.Context, c camera.Constraints) ([]camera.Track, error) {
	d.opens.Add(1)
	if d.fails.Load() > 0 {
		d.fails.Add(-1)
		return nil, d.err
	}
	n := d.active.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return []camera.Track{&countingTrack{device: d, frame: d.frame, closed: make(chan struct{})}}, nil
}

type countingTrack struct {
	device *countingDevice
	frame  image.Image
	once   sync.Once
	closed chan struct{}
}

func (t *countingTrack) ReadFrame() (image.Image, error) {
	select {
	case <-t.closed:
		return nil, camera.ErrTrackClosed
	case <-time.After(2 * time.Millisecond):
	}
	if t.frame == nil {
		<-t.closed
		return nil, camera.ErrTrackClosed
	}
	return t.frame, nil
}

func (t *countingTrack) Close() error {
	t.once.Do(func() {
		t.device.active.Add(-1)
		close(t.closed)
	})
	return nil
}

type resolverFunc func(ctx context.Context) (models.LocationSnapshot, error)

func (f resolverFunc) Resolve(ctx context.Context) (models.LocationSnapshot, error) {
	return f(ctx)
}

func newTestSession(t *testing.T, device camera.Device, resolver LocationResolver) *Session {
	t.Helper()
	renderer, err := overlay.New()
	if err != nil {
		t.Fatalf("overlay.New returned error: %v", err)
	}
	ctrl := camera.NewController(device)
	ctrl.ReadyTimeout = time.Second
	s := New(ctrl, resolver, renderer)
	s.Title = "Material Intake"
	s.Now = func() time.Time { return time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC) }
	t.Cleanup(s.Dispose)
	return s
}

func waitState(t *testing.T, s *Session, state State) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	v, err := s.WaitFor(ctx, func(v View) bool { return v.State == state })
	if err != nil {
		t.Fatalf("Waiting for %s: %v (state %s)", state, err, v.State)
	}
	return v
}

func TestCaptureFlow(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	s := newTestSession(t, device, geo.NewResolver(geo.Fixed{Position: geo.Position{Latitude: 21.028511, Longitude: 105.804817}}, nil))

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)

	if err := s.Capture(); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	v := s.View()
	if v.State != StateReviewing {
		t.Errorf("Expected reviewing, got %s", v.State)
	}
	if !strings.HasPrefix(v.Preview, "data:image/png;base64,") {
		t.Errorf("Expected a PNG data URI preview")
	}
	if len(v.Image) == 0 {
		t.Error("Expected rendered image bytes")
	}
	if n := device.active.Load(); n != 0 {
		t.Errorf("Expected the stream to be released after capture, %d tracks open", n)
	}
}

func TestCaptureWhileLocationResolving(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	s := newTestSession(t, device, resolverFunc(func(ctx context.Context) (models.LocationSnapshot, error) {
		<-ctx.Done()
		return models.Unresolved("cancelled"), ctx.Err()
	}))

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)

	if err := s.Capture(); err != nil {
		t.Fatalf("Expected capture to proceed without a location, got %v", err)
	}
	v := s.View()
	if v.Location.Status != models.LocationResolving {
		t.Errorf("Expected location still resolving, got %s", v.Location.Status)
	}
}

func TestLocationAfterCaptureKeepsBurnedSnapshot(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	release := make(chan struct{})
	s := newTestSession(t, device, resolverFunc(func(ctx context.Context) (models.LocationSnapshot, error) {
		<-release
		return models.Resolved(21.028511, 105.804817, "Hanoi"), nil
	}))

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)
	if err := s.Capture(); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}

	close(release)
	s.wg.Wait()

	v := s.View()
	if v.State != StateReviewing {
		t.Fatalf("Expected reviewing, got %s", v.State)
	}
	if v.Location.Status != models.LocationResolving || v.Location.Address != "" {
		t.Errorf("Expected the location burned into the capture, got %+v", v.Location)
	}
}

func TestCaptureErrors(t *testing.T) {
	t.Run("idle session", func(t *testing.T) {
		s := newTestSession(t, &countingDevice{frame: solidFrame(32, 32)}, nil)
		if err := s.Capture(); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("no frame yet", func(t *testing.T) {
		s := newTestSession(t, &countingDevice{}, nil)
		s.camera.ReadyTimeout = 20 * time.Millisecond
		if err := s.Open(); err != nil {
			t.Fatalf("Open returned error: %v", err)
		}
		waitState(t, s, StateStreamReady)

		if err := s.Capture(); !errors.Is(err, ErrNotReady) {
			t.Fatalf("Expected ErrNotReady, got %v", err)
		}
		if v := s.View(); v.State != StateStreamReady {
			t.Errorf("Expected no state change, got %s", v.State)
		}
	})
}

func TestStreamErrorAndRetry(t *testing.T) {
	device := &countingDevice{frame: solidFrame(64, 48), err: camera.ErrPermissionDenied}
	device.fails.Store(1)
	s := newTestSession(t, device, nil)

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	v := waitState(t, s, StateStreamError)
	if v.StreamError != camera.Message(camera.ErrPermissionDenied) {
		t.Errorf("Unexpected stream error message %q", v.StreamError)
	}
	if v.Location.Status != models.LocationUnresolved {
		t.Errorf("Expected unresolved location without a resolver, got %s", v.Location.Status)
	}

	if err := s.Retry(); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	v = waitState(t, s, StateStreamReady)
	if v.StreamError != "" {
		t.Errorf("Expected retry to clear the error, got %q", v.StreamError)
	}
}

func TestRetakeDiscardsCapture(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	var resolves atomic.Int32
	s := newTestSession(t, device, resolverFunc(func(ctx context.Context) (models.LocationSnapshot, error) {
		resolves.Add(1)
		return models.Resolved(21.028511, 105.804817, ""), nil
	}))

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)
	if err := s.Capture(); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}

	if err := s.Retake(); err != nil {
		t.Fatalf("Retake returned error: %v", err)
	}
	v := s.View()
	if v.Preview != "" || v.Image != nil {
		t.Error("Expected the captured frame to be discarded")
	}
	if v.State != StateStreamLoading && v.State != StateStreamReady {
		t.Errorf("Expected the stream to restart, got %s", v.State)
	}

	waitState(t, s, StateStreamReady)
	if n := device.opens.Load(); n != 2 {
		t.Errorf("Expected the stream to restart, got %d opens", n)
	}
	if n := device.peak.Load(); n != 1 {
		t.Errorf("Expected at most one live stream, peak was %d", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := s.WaitFor(ctx, func(v View) bool { return resolves.Load() == 2 && v.Location.Status == models.LocationResolved }); err != nil {
		t.Errorf("Expected a fresh location resolution: %v", err)
	}
}

func TestLateLocationIsDiscarded(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	release := make(chan struct{})
	var calls atomic.Int32
	s := newTestSession(t, device, resolverFunc(func(ctx context.Context) (models.LocationSnapshot, error) {
		if calls.Add(1) == 1 {
			<-release
			return models.Resolved(1, 1, "stale"), nil
		}
		return models.Resolved(2, 2, ""), nil
	}))

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)
	if err := s.Capture(); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if err := s.Retake(); err != nil {
		t.Fatalf("Retake returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := s.WaitFor(ctx, func(v View) bool {
		return v.State == StateStreamReady && v.Location.Status == models.LocationResolved
	}); err != nil {
		t.Fatalf("Waiting for second generation: %v", err)
	}

	// only the first generation resolver is still running
	close(release)
	s.wg.Wait()

	if v := s.View(); v.Location.Latitude != 2 || v.Location.Address != "" {
		t.Errorf("Expected the stale location to be discarded, got %+v", v.Location)
	}
}

func TestConfirmSave(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	s := newTestSession(t, device, nil)

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)
	if err := s.Capture(); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	captured := s.View()

	err := s.ConfirmSave(context.Background(), func(ctx context.Context, file models.File, preview string) error {
		return errors.New("upload rejected")
	})
	if err == nil {
		t.Fatal("Expected the save error to be returned")
	}
	v := s.View()
	if v.State != StateReviewing || v.Preview != captured.Preview || v.Saving {
		t.Errorf("Expected the capture to be kept after a failed save, got %s saving=%v", v.State, v.Saving)
	}

	var saved models.File
	err = s.ConfirmSave(context.Background(), func(ctx context.Context, file models.File, preview string) error {
		saved = file
		if preview != captured.Preview {
			t.Error("Expected the preview to be handed to save")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ConfirmSave returned error: %v", err)
	}
	if saved.Name != "material-1710513000000.png" {
		t.Errorf("Unexpected file name %s", saved.Name)
	}
	if saved.ContentType != overlay.PNGContentType || !bytes.Equal(saved.Data, captured.Image) {
		t.Error("Expected the rendered PNG to be saved")
	}
	v = s.View()
	if v.State != StateIdle || v.Preview != "" || v.Image != nil {
		t.Errorf("Expected the capture to be cleared, got %s", v.State)
	}
}

func TestConfirmSaveBusy(t *testing.T) {
	s := newTestSession(t, &countingDevice{frame: solidFrame(320, 240)}, nil)
	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)
	if err := s.Capture(); err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.ConfirmSave(context.Background(), func(ctx context.Context, file models.File, preview string) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := s.ConfirmSave(context.Background(), func(ctx context.Context, file models.File, preview string) error {
		t.Error("Second save must not run")
		return nil
	}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if err := s.Retake(); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected retake to be blocked while saving, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("First save returned error: %v", err)
	}
}

func TestDispose(t *testing.T) {
	device := &countingDevice{frame: solidFrame(320, 240)}
	s := newTestSession(t, device, resolverFunc(func(ctx context.Context) (models.LocationSnapshot, error) {
		<-ctx.Done()
		return models.Unresolved("cancelled"), ctx.Err()
	}))

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	waitState(t, s, StateStreamReady)

	s.Dispose()
	s.Dispose()

	if n := device.active.Load(); n != 0 {
		t.Errorf("Expected no open tracks after dispose, got %d", n)
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{name: "open", op: s.Open},
		{name: "capture", op: s.Capture},
		{name: "retake", op: s.Retake},
		{name: "retry", op: s.Retry},
		{name: "save", op: func() error {
			return s.ConfirmSave(context.Background(), func(ctx context.Context, file models.File, preview string) error { return nil })
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, ErrDisposed) {
				t.Errorf("Expected ErrDisposed, got %v", err)
			}
		})
	}

	if _, err := s.WaitFor(context.Background(), func(v View) bool { return v.State == StateReviewing }); !errors.Is(err, ErrDisposed) {
		t.Errorf("Expected WaitFor to report disposal, got %v", err)
	}
}

// slowDevice ignores cancellation and hands back a track after release
type slowDevice struct {
	release chan struct{}
	inner   *countingDevice
}

func (d *slowDevice) Open(ctx context.Context, c camera.Constraints) ([]camera.Track, error) {
	select {
	case <-d.release:
	case <-ctx.Done():
	}
	return d.inner.Open(ctx, c)
}

func TestDisposeDuringStreamStart(t *testing.T) {
	inner := &countingDevice{frame: solidFrame(64, 48)}
	device := &slowDevice{release: make(chan struct{}), inner: inner}
	s := newTestSession(t, device, nil)

	if err := s.Open(); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.Dispose()

	if n := inner.active.Load(); n != 0 {
		t.Errorf("Expected the late stream to be stopped, %d tracks open", n)
	}
	if v := s.View(); !v.Disposed || v.State != StateIdle {
		t.Errorf("Unexpected view after dispose %+v", v)
	}
}
