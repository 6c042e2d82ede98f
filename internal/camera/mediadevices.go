package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io/fs"
	"log/slog"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
)

// MediaDevice opens cameras through pion/mediadevices. A camera driver
// must be linked into the binary (see the camera build tag in cmd).
type MediaDevice struct{}

func (MediaDevice) Open(ctx context.Context, constraints Constraints) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// mediadevices has no facing mode selection, the first matching camera wins
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if constraints.Width > 0 {
				c.Width = prop.Int(constraints.Width)
			}
			if constraints.Height > 0 {
				c.Height = prop.Int(constraints.Height)
			}
		},
	})
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	var tracks []Track
	for _, t := range stream.GetVideoTracks() {
		vt, ok := t.(*mediadevices.VideoTrack)
		if !ok {
			_ = t.Close()
			continue
		}
		tracks = append(tracks, &mediaTrack{track: vt, reader: vt.NewReader(false)})
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no video track in media stream", ErrDeviceUnavailable)
	}

	slog.Debug("Opened media device stream", "tracks", len(tracks))
	return tracks, nil
}

type frameReader interface {
	Read() (image.Image, func(), error)
}

type mediaTrack struct {
	track  *mediadevices.VideoTrack
	reader frameReader
}

// ReadFrame copies the frame out of the driver buffer before releasing it
func (m *mediaTrack) ReadFrame() (image.Image, error) {
	img, release, err := m.reader.Read()
	if err != nil {
		return nil, err
	}
	defer release()

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

func (m *mediaTrack) Close() error {
	return m.track.Close()
}
