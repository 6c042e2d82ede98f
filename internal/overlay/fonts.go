package overlay

import (
	"fmt"
	"image"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Fonts holds the regular and bold typefaces used for overlay text
type Fonts struct {
	Regular *opentype.Font
	Bold    *opentype.Font
}

var (
	goFontsOnce sync.Once
	goFonts     Fonts
	goFontsErr  error
)

// GoFonts returns the bundled Go fonts, parsed once per process
func GoFonts() (Fonts, error) {
	goFontsOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			goFontsErr = fmt.Errorf("failed to parse regular font: %w", err)
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			goFontsErr = fmt.Errorf("failed to parse bold font: %w", err)
			return
		}
		goFonts = Fonts{Regular: regular, Bold: bold}
	})
	return goFonts, goFontsErr
}

// LoadFontFile parses a TTF or OTF file and uses it for both weights
func LoadFontFile(path string) (Fonts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fonts{}, fmt.Errorf("failed to read font file: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return Fonts{}, fmt.Errorf("failed to parse font file %s: %w", path, err)
	}
	return Fonts{Regular: f, Bold: f}, nil
}

type faceKey struct {
	size float64
	bold bool
}

// faceCache creates faces lazily for one render and closes them afterwards
type faceCache struct {
	fonts Fonts
	faces map[faceKey]font.Face
	err   error
}

func newFaceCache(fonts Fonts) *faceCache {
	return &faceCache{fonts: fonts, faces: make(map[faceKey]font.Face)}
}

func (c *faceCache) face(size float64, bold bool) font.Face {
	key := faceKey{size: size, bold: bold}
	if f, ok := c.faces[key]; ok {
		return f
	}
	src := c.fonts.Regular
	if bold {
		src = c.fonts.Bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		if c.err == nil {
			c.err = fmt.Errorf("failed to create font face: %w", err)
		}
		return nil
	}
	c.faces[key] = f
	return f
}

func (c *faceCache) Measure(text string, size float64, bold bool) int {
	f := c.face(size, bold)
	if f == nil {
		return 0
	}
	return font.MeasureString(f, text).Ceil()
}

func (c *faceCache) Ascent(size float64, bold bool) int {
	f := c.face(size, bold)
	if f == nil {
		return int(size)
	}
	return f.Metrics().Ascent.Ceil()
}

func (c *faceCache) draw(dst *image.RGBA, line Line, x int, src image.Image, dx, dy int) {
	f := c.face(line.Size, line.Bold)
	if f == nil {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: f,
		Dot:  fixed.P(x+dx, line.Baseline+dy),
	}
	d.DrawString(line.Text)
}

func (c *faceCache) Close() {
	for _, f := range c.faces {
		_ = f.Close()
	}
	c.faces = nil
}
