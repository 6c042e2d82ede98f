package overlay

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/freeoffice/fieldcam/internal/models"
)

const (
	PNGContentType = "image/png"
	dataURIPrefix  = "data:image/png;base64,"
)

var ErrEmptyFrame = errors.New("frame has no pixels")

// Compositor burns the capture overlay into video frames
type Compositor struct {
	fonts Fonts
}

// New creates a compositor using the bundled Go fonts
func New() (*Compositor, error) {
	fonts, err := GoFonts()
	if err != nil {
		return nil, err
	}
	return &Compositor{fonts: fonts}, nil
}

// NewWithFonts creates a compositor using the given fonts
func NewWithFonts(fonts Fonts) *Compositor {
	return &Compositor{fonts: fonts}
}

// Composite draws the frame and overlay onto a new opaque surface
func (c *Compositor) Composite(frame image.Image, p Params) (*image.RGBA, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	b := frame.Bounds()
	width, height := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Over)

	faces := newFaceCache(c.fonts)
	defer faces.Close()

	layout := ComputeLayout(width, height, p, faces)
	drawGradient(dst, layout)

	shadow := image.NewUniform(colorShadow)
	for _, line := range layout.Lines {
		faces.draw(dst, line, layout.Padding, shadow, shadowOffset, shadowOffset)
		faces.draw(dst, line, layout.Padding, image.NewUniform(line.Color), 0, 0)
	}

	if faces.err != nil {
		return nil, faces.err
	}
	return dst, nil
}

// Render composites the overlay and encodes the result as PNG
func (c *Compositor) Render(frame image.Image, p Params) ([]byte, error) {
	img, err := c.Composite(frame, p)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode overlay image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawGradient(dst *image.RGBA, layout Layout) {
	if layout.PanelHeight <= 0 {
		return
	}
	for y := layout.PanelTop; y < layout.Height; y++ {
		t := float64(layout.Height-y) / float64(layout.PanelHeight)
		a := uint8(gradientAlpha(t)*255 + 0.5)
		if a == 0 {
			continue
		}
		row := image.Rect(0, y, layout.Width, y+1)
		draw.Draw(dst, row, image.NewUniform(color.NRGBA{A: a}), image.Point{}, draw.Over)
	}
}

// EncodeDataURI wraps PNG bytes in a data URI
func EncodeDataURI(pngData []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(pngData)
}

// DecodeDataURI extracts the PNG bytes from a data URI
func DecodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, dataURIPrefix) {
		return nil, fmt.Errorf("not a PNG data URI")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataURIPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI: %w", err)
	}
	return data, nil
}

// NewFile converts a PNG data URI into an upload file named after at
func NewFile(uri string, at time.Time) (models.File, error) {
	data, err := DecodeDataURI(uri)
	if err != nil {
		return models.File{}, err
	}
	return models.File{
		Name:        models.CapturedFileName(at),
		ContentType: PNGContentType,
		Data:        data,
	}, nil
}
