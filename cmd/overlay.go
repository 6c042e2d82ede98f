package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/camera"
	"github.com/freeoffice/fieldcam/internal/models"
	"github.com/freeoffice/fieldcam/internal/overlay"
)

func newOverlayCmd(a *app) *cobra.Command {
	var (
		pos   positionFlags
		out   string
		title string
		at    string
	)

	cmd := &cobra.Command{
		Use:   "overlay IMAGE",
		Short: "Burn the capture overlay into an existing photo",
		Long: `Renders the title, timestamp, address and coordinates overlay onto a photo
taken by another tool and writes the result as PNG.`,
		Example: `  # Overlay with a pinned position, written to ./material-<millis>.png
  fieldcam overlay photo.jpg --lat 10.762622 --lon 106.660172

  # Fixed timestamp and explicit output
  fieldcam overlay photo.jpg --at 2024-03-15T14:30:00+07:00 --out stamped.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			still, err := camera.LoadStillDevice(args[0])
			if err != nil {
				return err
			}

			now, err := a.clock()
			if err != nil {
				return err
			}
			timestamp := now()
			if at != "" {
				if timestamp, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at timestamp: %w", err)
				}
			}
			if title == "" {
				title = a.cfg.Overlay.Title
			}

			// geolocation failures only degrade the overlay
			loc, _ := a.resolver(cmd, &pos).Resolve(cmd.Context())

			comp, err := a.compositor()
			if err != nil {
				return err
			}
			data, err := comp.Render(still.Image, overlay.Params{
				Title:     title,
				Timestamp: timestamp,
				Location:  loc,
			})
			if err != nil {
				return fmt.Errorf("failed to render overlay: %w", err)
			}

			if out == "" {
				out = models.CapturedFileName(timestamp)
			}
			if err := writeOutput(out, data); err != nil {
				return err
			}

			slog.Info("Overlay written", "path", out, "bytes", len(data), "location", loc.Status.String())
			return printYAML(cmd.OutOrStdout(), map[string]any{
				"file":     out,
				"location": newLocationView(loc),
			})
		},
	}

	pos.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output PNG path (default material-<millis>.png)")
	cmd.Flags().StringVar(&title, "title", "", "Overlay title (default from configuration)")
	cmd.Flags().StringVar(&at, "at", "", "Capture time as RFC 3339 (default now)")

	return cmd
}

func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
