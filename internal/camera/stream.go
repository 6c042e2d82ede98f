package camera

import (
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Stream is a live camera stream. A background pump keeps the most recent
// frame of the first track, which acts as the video sink.
type Stream struct {
	ID string

	tracks []Track

	mu    sync.RWMutex
	frame image.Image

	ready     chan struct{}
	readyOnce sync.Once

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newStream(tracks []Track) *Stream {
	s := &Stream{
		ID:     uuid.NewString(),
		tracks: tracks,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pump(tracks[0])
	return s
}

func (s *Stream) pump(track Track) {
	defer s.wg.Done()
	for {
		img, err := track.ReadFrame()
		if err != nil {
			select {
			case <-s.done:
			default:
				slog.Warn("Camera track stopped delivering frames", "stream_id", s.ID, "error", err)
			}
			return
		}
		if img == nil || img.Bounds().Empty() {
			continue
		}

		s.mu.Lock()
		s.frame = img
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

// Ready is closed once the sink holds a frame with non-zero dimensions
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// Active reports whether the stream has not been stopped
func (s *Stream) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Frame returns the most recent decodable frame
func (s *Stream) Frame() (image.Image, bool) {
	if !s.Active() {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// Dimensions returns the size of the latest frame, zero before the first one
func (s *Stream) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

// Stop closes every track and waits for the pump to exit
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		for _, t := range s.tracks {
			if err := t.Close(); err != nil {
				slog.Debug("Failed to close camera track", "stream_id", s.ID, "error", err)
			}
		}
		s.wg.Wait()
		slog.Debug("Camera stream stopped", "stream_id", s.ID)
	})
}
