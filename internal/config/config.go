package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freeoffice/fieldcam/internal/api"
	"github.com/freeoffice/fieldcam/internal/camera"
	"github.com/freeoffice/fieldcam/internal/geo"
	"github.com/freeoffice/fieldcam/internal/overlay"
)

const EnvPrefix = "FIELDCAM_"

type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	UploadURL string `yaml:"upload_url"`
}

type GeocoderConfig struct {
	URL       string        `yaml:"url"`
	UserAgent string        `yaml:"user_agent"`
	Language  string        `yaml:"language"`
	Timeout   time.Duration `yaml:"timeout"`
}

type CameraConfig struct {
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	FacingMode   string        `yaml:"facing_mode"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
}

// LocationConfig holds the position request timeout and an optional fixed
// position for devices without a location source
type LocationConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Latitude  *float64      `yaml:"latitude"`
	Longitude *float64      `yaml:"longitude"`
}

type OverlayConfig struct {
	Title    string `yaml:"title"`
	FontPath string `yaml:"font_path"`
	TimeZone string `yaml:"time_zone"`
}

type Config struct {
	API         APIConfig      `yaml:"api"`
	SessionFile string         `yaml:"session_file"`
	Journal     string         `yaml:"journal"`
	Geocoder    GeocoderConfig `yaml:"geocoder"`
	Camera      CameraConfig   `yaml:"camera"`
	Location    LocationConfig `yaml:"location"`
	Overlay     OverlayConfig  `yaml:"overlay"`
}

// Default returns the built-in configuration
func Default() Config {
	constraints := camera.DefaultConstraints()
	return Config{
		API: APIConfig{
			BaseURL:   api.DefaultBaseURL,
			UploadURL: api.DefaultUploadURL,
		},
		SessionFile: defaultSessionFile(),
		Geocoder: GeocoderConfig{
			URL:       geo.DefaultNominatimURL,
			UserAgent: "fieldcam",
			Language:  "vi",
			Timeout:   geo.DefaultGeocodeTimeout,
		},
		Camera: CameraConfig{
			ReadyTimeout: camera.DefaultReadyTimeout,
			FacingMode:   constraints.FacingMode,
			Width:        constraints.Width,
			Height:       constraints.Height,
		},
		Location: LocationConfig{
			Timeout: geo.DefaultTimeout,
		},
		Overlay: OverlayConfig{
			Title:    overlay.DefaultTitle,
			TimeZone: "Local",
		},
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".fieldcam-session.yaml"
	}
	return filepath.Join(dir, "fieldcam", "session.yaml")
}

// Load layers the YAML file at path (when set) and FIELDCAM_* variables
// over the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"API_URL":         &c.API.BaseURL,
		"UPLOAD_URL":      &c.API.UploadURL,
		"SESSION_FILE":    &c.SessionFile,
		"JOURNAL":         &c.Journal,
		"NOMINATIM_URL":   &c.Geocoder.URL,
		"NOMINATIM_AGENT": &c.Geocoder.UserAgent,
		"LANGUAGE":        &c.Geocoder.Language,
		"CAMERA_FACING":   &c.Camera.FacingMode,
		"OVERLAY_TITLE":   &c.Overlay.Title,
		"FONT_PATH":       &c.Overlay.FontPath,
		"TIME_ZONE":       &c.Overlay.TimeZone,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"CAMERA_READY_TIMEOUT": &c.Camera.ReadyTimeout,
		"GEO_TIMEOUT":          &c.Location.Timeout,
		"GEOCODE_TIMEOUT":      &c.Geocoder.Timeout,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	floats := map[string]**float64{
		"LATITUDE":  &c.Location.Latitude,
		"LONGITUDE": &c.Location.Longitude,
	}
	for key, dst := range floats {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = &f
	}
	return nil
}

// Validate rejects settings the client cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api base_url is required"))
	}
	if c.API.UploadURL == "" {
		errs = append(errs, errors.New("api upload_url is required"))
	}
	if (c.Location.Latitude == nil) != (c.Location.Longitude == nil) {
		errs = append(errs, errors.New("location latitude and longitude must be set together"))
	}
	if lat := c.Location.Latitude; lat != nil && (*lat < -90 || *lat > 90) {
		errs = append(errs, fmt.Errorf("latitude %v out of range", *lat))
	}
	if lon := c.Location.Longitude; lon != nil && (*lon < -180 || *lon > 180) {
		errs = append(errs, fmt.Errorf("longitude %v out of range", *lon))
	}
	if _, err := c.TimeLocation(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TimeLocation is the zone overlay timestamps are rendered in
func (c Config) TimeLocation() (*time.Location, error) {
	if c.Overlay.TimeZone == "" || c.Overlay.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Overlay.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.Overlay.TimeZone, err)
	}
	return loc, nil
}

// FixedPosition returns the configured position, if any
func (c Config) FixedPosition() (geo.Position, bool) {
	if c.Location.Latitude == nil || c.Location.Longitude == nil {
		return geo.Position{}, false
	}
	return geo.Position{Latitude: *c.Location.Latitude, Longitude: *c.Location.Longitude}, true
}

// Constraints returns the camera request built from the configuration
func (c Config) Constraints() camera.Constraints {
	return camera.Constraints{
		FacingMode: c.Camera.FacingMode,
		Width:      c.Camera.Width,
		Height:     c.Camera.Height,
	}
}
