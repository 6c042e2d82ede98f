package overlay

import (
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/freeoffice/fieldcam/internal/models"
)

const (
	DefaultTitle        = "Material Intake"
	ResolvingText       = "Fetching location..."
	LocationUnavailable = "Location unavailable"
	TimestampLayout     = "02/01/2006 15:04:05"
	lineGap             = 8
	basePanelPercent    = 28
	addressPanelPercent = 35
	shadowOffset        = 2
)

var (
	colorWhite  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	colorAmber  = color.NRGBA{R: 255, G: 200, B: 0, A: 217}
	colorRed    = color.NRGBA{R: 255, G: 82, B: 82, A: 255}
	colorGold   = color.NRGBA{R: 255, G: 215, B: 64, A: 255}
	colorShadow = color.NRGBA{R: 0, G: 0, B: 0, A: 153}
)

// Params are the inputs burned into a captured frame
type Params struct {
	Title     string
	Timestamp time.Time
	Location  models.LocationSnapshot
}

// Line is one positioned line of overlay text
type Line struct {
	Text     string
	Size     float64
	Bold     bool
	Color    color.NRGBA
	Baseline int
}

// Layout is the computed overlay geometry for a frame
type Layout struct {
	Width       int
	Height      int
	PanelTop    int
	PanelHeight int
	Padding     int
	Lines       []Line
}

// Measurer reports text metrics for a font size and weight
type Measurer interface {
	Measure(text string, size float64, bold bool) int
	Ascent(size float64, bold bool) int
}

// FontSizes returns the title, timestamp, location and coordinate sizes
// for a frame width
func FontSizes(width int) (title, timestamp, location, coords float64) {
	w := float64(width)
	return math.Max(w*0.04, 28), math.Max(w*0.032, 22), math.Max(w*0.028, 18), math.Max(w*0.024, 16)
}

// ComputeLayout places every overlay line for a frame of the given size
func ComputeLayout(width, height int, p Params, m Measurer) Layout {
	padding := width * 5 / 100
	paddingY := height * 4 / 100
	maxWidth := width - 2*padding
	if maxWidth < 1 {
		maxWidth = 1
	}

	titleSize, timeSize, locSize, coordSize := FontSizes(width)

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = DefaultTitle
	}

	lines := []Line{
		{Text: title, Size: titleSize, Bold: true, Color: colorWhite},
		{Text: p.Timestamp.Format(TimestampLayout), Size: timeSize, Color: colorWhite},
	}

	loc := p.Location
	switch loc.Status {
	case models.LocationResolving:
		lines = append(lines, Line{Text: ResolvingText, Size: locSize, Color: colorAmber})
	case models.LocationUnresolved:
		lines = append(lines, Line{Text: LocationUnavailable, Size: locSize, Color: colorRed})
	case models.LocationResolved:
		if loc.HasAddress() {
			measure := func(s string) int { return m.Measure(s, locSize, false) }
			for _, text := range wrapText(loc.Address, maxWidth, measure) {
				lines = append(lines, Line{Text: text, Size: locSize, Color: colorGold})
			}
		}
		coords := loc.Coordinates
		if coords == "" {
			coords = models.FormatCoordinates(loc.Latitude, loc.Longitude)
		}
		lines = append(lines, Line{Text: coords, Size: coordSize, Color: colorWhite})
	}

	content := 2 * paddingY
	for i, l := range lines {
		content += int(math.Ceil(l.Size))
		if i < len(lines)-1 {
			content += lineGap
		}
	}

	percent := basePanelPercent
	if loc.HasAddress() {
		percent = addressPanelPercent
	}
	panel := height * percent / 100
	if content > panel {
		panel = content
	}
	if panel > height {
		panel = height
	}
	top := height - panel

	cursor := top + paddingY
	for i := range lines {
		lines[i].Baseline = cursor + m.Ascent(lines[i].Size, lines[i].Bold)
		cursor += int(math.Ceil(lines[i].Size)) + lineGap
	}

	return Layout{
		Width:       width,
		Height:      height,
		PanelTop:    top,
		PanelHeight: panel,
		Padding:     padding,
		Lines:       lines,
	}
}

// wrapText breaks text into lines no wider than maxWidth. Words wider than
// maxWidth are split between runes.
func wrapText(text string, maxWidth int, measure func(string) int) []string {
	var lines []string
	current := ""

	flush := func() {
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
	}

	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}

		flush()
		if measure(word) <= maxWidth {
			current = word
			continue
		}

		for _, r := range word {
			next := current + string(r)
			if current != "" && measure(next) > maxWidth {
				flush()
				next = string(r)
			}
			current = next
		}
	}
	flush()

	return lines
}

// gradientAlpha returns the panel opacity at t, where 0 is the bottom edge
// and 1 the top edge
func gradientAlpha(t float64) float64 {
	switch {
	case t <= 0:
		return 0.85
	case t <= 0.7:
		return 0.85 + (0.45-0.85)*(t/0.7)
	case t < 1:
		return 0.45 * (1 - (t-0.7)/0.3)
	default:
		return 0
	}
}
