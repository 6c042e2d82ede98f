package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	_ "golang.org/x/image/webp"
)

// StillDevice serves a single image as a live video stream. It backs
// headless captures where the photo was taken by another tool.
type StillDevice struct {
	Image    image.Image
	Interval time.Duration
}

// NewStillDevice wraps an already decoded image
func NewStillDevice(img image.Image) *StillDevice {
	return &StillDevice{
		Image:    img,
		Interval: 33 * time.Millisecond,
	}
}

// LoadStillDevice decodes the image at path
func LoadStillDevice(path string) (*StillDevice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("frame image %s has no pixels", path)
	}

	return NewStillDevice(img), nil
}

func (d *StillDevice) Open(ctx context.Context, constraints Constraints) ([]Track, error) {
	if d.Image == nil {
		return nil, fmt.Errorf("%w: no still image configured", ErrDeviceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	interval := d.Interval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return []Track{&stillTrack{
		img:      d.Image,
		interval: interval,
		closed:   make(chan struct{}),
	}}, nil
}

type stillTrack struct {
	img      image.Image
	interval time.Duration

	once   sync.Once
	closed chan struct{}
	sent   bool
	mu     sync.Mutex
}

func (t *stillTrack) ReadFrame() (image.Image, error) {
	t.mu.Lock()
	first := !t.sent
	t.sent = true
	t.mu.Unlock()

	if first {
		select {
		case <-t.closed:
			return nil, ErrTrackClosed
		default:
			return t.img, nil
		}
	}

	timer := time.NewTimer(t.interval)
	defer timer.Stop()
	select {
	case <-t.closed:
		return nil, ErrTrackClosed
	case <-timer.C:
		return t.img, nil
	}
}

func (t *stillTrack) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
