package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/freeoffice/fieldcam/internal/api"
	"github.com/freeoffice/fieldcam/internal/geo"
	"github.com/freeoffice/fieldcam/internal/overlay"
	"github.com/freeoffice/fieldcam/internal/storage"
)

// client opens the persisted session and returns an API client for it
func (a *app) client() (*api.Client, error) {
	store, err := storage.Open(a.cfg.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	c := api.NewClient(a.cfg.API.BaseURL, a.cfg.API.UploadURL, store)
	c.Init()
	return c, nil
}

// authedClient is client for commands that need a logged in staff member
func (a *app) authedClient() (*api.Client, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	if c.Token() == "" {
		return nil, fmt.Errorf("%w: run fieldcam login first", api.ErrNotAuthenticated)
	}
	return c, nil
}

// positionFlags let a command pin the device position
type positionFlags struct {
	lat, lon float64
	noGeo    bool
}

func (p *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&p.lat, "lat", 0, "Device latitude (overrides the configured position)")
	cmd.Flags().Float64Var(&p.lon, "lon", 0, "Device longitude (overrides the configured position)")
	cmd.Flags().BoolVar(&p.noGeo, "no-geocode", false, "Skip reverse geocoding, show coordinates only")
}

// resolver builds the location resolver. Without a position source the
// resolver reports geolocation as unsupported.
func (a *app) resolver(cmd *cobra.Command, p *positionFlags) *geo.Resolver {
	var locator geo.Locator
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		locator = geo.Fixed{Position: geo.Position{Latitude: p.lat, Longitude: p.lon}}
	} else if pos, ok := a.cfg.FixedPosition(); ok {
		locator = geo.Fixed{Position: pos}
	}

	var geocoder geo.Geocoder
	if !p.noGeo {
		geocoder = geo.NewNominatim(a.cfg.Geocoder.URL, a.cfg.Geocoder.UserAgent, a.cfg.Geocoder.Language)
	}

	r := geo.NewResolver(locator, geocoder)
	r.Timeout = a.cfg.Location.Timeout
	r.GeocodeTimeout = a.cfg.Geocoder.Timeout
	return r
}

func (a *app) compositor() (*overlay.Compositor, error) {
	if a.cfg.Overlay.FontPath == "" {
		return overlay.New()
	}
	fonts, err := overlay.LoadFontFile(a.cfg.Overlay.FontPath)
	if err != nil {
		return nil, err
	}
	return overlay.NewWithFonts(fonts), nil
}

// clock returns now in the configured overlay time zone
func (a *app) clock() (func() time.Time, error) {
	loc, err := a.cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	return func() time.Time { return time.Now().In(loc) }, nil
}

func printYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = w.Write(data)
	return err
}
