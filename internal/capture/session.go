package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freeoffice/fieldcam/internal/camera"
	"github.com/freeoffice/fieldcam/internal/geo"
	"github.com/freeoffice/fieldcam/internal/models"
	"github.com/freeoffice/fieldcam/internal/overlay"
)

var (
	ErrDisposed     = errors.New("capture session disposed")
	ErrNotReady     = errors.New("camera has not delivered a frame yet")
	ErrBusy         = errors.New("save already in progress")
	ErrInvalidState = errors.New("operation not allowed in current state")
)

// State is the capture session lifecycle state
type State int

const (
	StateIdle State = iota
	StateStreamLoading
	StateStreamReady
	StateStreamError
	StateReviewing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreamLoading:
		return "stream_loading"
	case StateStreamReady:
		return "stream_ready"
	case StateStreamError:
		return "stream_error"
	case StateReviewing:
		return "reviewing"
	default:
		return "unknown"
	}
}

// LocationResolver produces the location snapshot burned into captures
type LocationResolver interface {
	Resolve(ctx context.Context) (models.LocationSnapshot, error)
}

// Renderer composites the overlay onto a captured frame
type Renderer interface {
	Render(frame image.Image, p overlay.Params) ([]byte, error)
}

// SaveFunc hands a confirmed capture to the owning form
type SaveFunc func(ctx context.Context, file models.File, preview string) error

// View is a point-in-time copy of the session state
type View struct {
	ID    string
	State State
	// Location is frozen at capture time while reviewing
	Location  models.LocationSnapshot
	Timestamp time.Time
	// StreamError is the user-facing message while in StateStreamError
	StreamError string
	// Image holds the rendered PNG while reviewing
	Image []byte
	// Preview is the data URI of Image
	Preview  string
	Saving   bool
	Disposed bool
}

// Session drives one "take a photo" interaction from stream start to save
type Session struct {
	Title       string
	Constraints camera.Constraints
	Now         func() time.Time

	camera   *camera.Controller
	resolver LocationResolver
	renderer Renderer

	mu        sync.Mutex
	id        string
	gen       uint64
	state     State
	stream    *camera.Stream
	streamErr error
	location  models.LocationSnapshot
	timestamp time.Time
	image     []byte
	preview   string
	saving    bool
	disposed  bool
	changed   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	genCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New creates an idle session. resolver may be nil when the device has no
// geolocation capability.
func New(cam *camera.Controller, resolver LocationResolver, renderer Renderer) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		Title:       overlay.DefaultTitle,
		Constraints: camera.DefaultConstraints(),
		Now:         time.Now,
		camera:      cam,
		resolver:    resolver,
		renderer:    renderer,
		id:          uuid.NewString(),
		state:       StateIdle,
		location:    models.Resolving(),
		changed:     make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Open starts the camera and location resolution
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.state != StateIdle {
		return fmt.Errorf("failed to open session in state %s: %w", s.state, ErrInvalidState)
	}
	s.enterLoading()
	return nil
}

// Retry restarts the stream after a start failure
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.state != StateStreamError {
		return fmt.Errorf("failed to retry in state %s: %w", s.state, ErrInvalidState)
	}
	s.enterLoading()
	return nil
}

// Retake discards the captured frame and restarts the stream and location
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.state != StateReviewing {
		return fmt.Errorf("failed to retake in state %s: %w", s.state, ErrInvalidState)
	}
	if s.saving {
		return ErrBusy
	}
	s.enterLoading()
	return nil
}

// enterLoading must be called with mu held
func (s *Session) enterLoading() {
	s.releaseStream()
	if s.genCancel != nil {
		s.genCancel()
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.genCancel = cancel

	s.state = StateStreamLoading
	s.streamErr = nil
	s.image = nil
	s.preview = ""
	s.timestamp = s.Now()

	s.wg.Add(1)
	go s.startStream(ctx, gen)

	if s.resolver == nil {
		s.location = models.Unresolved(geo.Message(geo.ErrUnsupported))
	} else {
		s.location = models.Resolving()
		s.wg.Add(1)
		go s.resolveLocation(ctx, gen)
	}

	slog.Debug("Capture session loading", "session_id", s.id, "generation", gen)
	s.notify()
}

func (s *Session) startStream(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	stream, err := s.camera.Start(ctx, s.Constraints)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || gen != s.gen {
		s.camera.Stop(stream)
		slog.Debug("Discarding stale camera start", "session_id", s.id, "generation", gen)
		return
	}
	if err != nil {
		slog.Error("Unable to start camera", "session_id", s.id, "error", err)
		s.state = StateStreamError
		s.streamErr = err
		s.notify()
		return
	}
	s.stream = stream
	s.state = StateStreamReady
	s.notify()
}

func (s *Session) resolveLocation(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	snapshot, _ := s.resolver.Resolve(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || gen != s.gen {
		slog.Debug("Discarding stale location", "session_id", s.id, "generation", gen)
		return
	}
	if s.state == StateReviewing || s.state == StateIdle {
		// the capture already burned in the location known at that instant
		slog.Debug("Discarding location resolved after capture", "session_id", s.id, "generation", gen)
		return
	}
	s.location = snapshot
	s.notify()
}

// Capture grabs the current frame, releases the camera and renders the
// overlay with whatever location is known at this instant
func (s *Session) Capture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.state != StateStreamReady {
		return fmt.Errorf("failed to capture in state %s: %w", s.state, ErrInvalidState)
	}
	if s.stream == nil {
		return ErrNotReady
	}
	frame, ok := s.stream.Frame()
	if !ok || frame.Bounds().Empty() {
		return ErrNotReady
	}

	s.releaseStream()

	data, err := s.renderer.Render(frame, overlay.Params{
		Title:     s.Title,
		Timestamp: s.timestamp,
		Location:  s.location,
	})
	if err != nil {
		// the stream is gone, so the only way forward is a fresh start
		s.state = StateStreamError
		s.streamErr = fmt.Errorf("failed to render capture: %w", err)
		s.notify()
		return s.streamErr
	}

	s.image = data
	s.preview = overlay.EncodeDataURI(data)
	s.state = StateReviewing
	b := frame.Bounds()
	slog.Info("Frame captured", "session_id", s.id, "width", b.Dx(), "height", b.Dy(), "location", s.location.Status.String(), "bytes", len(data))
	s.notify()
	return nil
}

// ConfirmSave converts the capture into a file and hands it to save. On
// success the capture is cleared and the session returns to idle. On
// failure the capture is kept so the save can be retried.
func (s *Session) ConfirmSave(ctx context.Context, save SaveFunc) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StateReviewing {
		s.mu.Unlock()
		return fmt.Errorf("failed to save in state %s: %w", s.state, ErrInvalidState)
	}
	if s.saving {
		s.mu.Unlock()
		return ErrBusy
	}
	s.saving = true
	gen := s.gen
	preview := s.preview
	s.notify()
	s.mu.Unlock()

	err := s.save(ctx, preview, save)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if s.disposed {
		return ErrDisposed
	}
	if gen != s.gen {
		return ErrInvalidState
	}
	if err != nil {
		slog.Error("Unable to save capture", "session_id", s.id, "error", err)
		s.notify()
		return err
	}

	s.image = nil
	s.preview = ""
	s.state = StateIdle
	s.notify()
	return nil
}

func (s *Session) save(ctx context.Context, preview string, save SaveFunc) error {
	file, err := overlay.NewFile(preview, s.Now())
	if err != nil {
		return fmt.Errorf("failed to prepare capture for upload: %w", err)
	}
	if err := save(ctx, file, preview); err != nil {
		return fmt.Errorf("failed to save capture: %w", err)
	}
	return nil
}

// Dispose stops the stream, cancels in-flight work and discards all state.
// It returns once no camera stream is held by the session.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.gen++
	s.cancel()
	s.releaseStream()
	s.image = nil
	s.preview = ""
	s.streamErr = nil
	s.state = StateIdle
	s.notify()
	s.mu.Unlock()

	s.wg.Wait()
	slog.Debug("Capture session disposed", "session_id", s.id)
}

// releaseStream must be called with mu held
func (s *Session) releaseStream() {
	if s.stream == nil {
		return
	}
	s.camera.Stop(s.stream)
	s.stream = nil
}

// notify must be called with mu held
func (s *Session) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// View returns a snapshot of the session
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	v := View{
		ID:        s.id,
		State:     s.state,
		Location:  s.location,
		Timestamp: s.timestamp,
		Image:     s.image,
		Preview:   s.preview,
		Saving:    s.saving,
		Disposed:  s.disposed,
	}
	if s.streamErr != nil {
		v.StreamError = camera.Message(s.streamErr)
	}
	return v
}

// WaitFor blocks until match reports true for the current view, the session
// is disposed or ctx is done
func (s *Session) WaitFor(ctx context.Context, match func(View) bool) (View, error) {
	for {
		s.mu.Lock()
		v := s.view()
		changed := s.changed
		s.mu.Unlock()

		if match(v) {
			return v, nil
		}
		if v.Disposed {
			return v, ErrDisposed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}
