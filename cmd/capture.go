package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/camera"
	"github.com/freeoffice/fieldcam/internal/capture"
	"github.com/freeoffice/fieldcam/internal/journal"
	"github.com/freeoffice/fieldcam/internal/models"
	"github.com/freeoffice/fieldcam/internal/slots"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		pos          positionFlags
		form         formFlags
		framePath    string
		outDir       string
		slot         string
		title        string
		journalPath  string
		waitLocation time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a geotagged photo from the camera",
		Long: `Opens the camera, waits for the first frame and the device position, then
captures a photo with the overlay burned in. The photo is written to --out
and, with --slot, uploaded into that slot of the selected ticket form.

Without --frame the camera is opened through pion/mediadevices, which needs
a binary built with the camera build tag.`,
		Example: `  # Capture from a still image with a pinned position
  fieldcam capture --frame shot.jpg --lat 10.762622 --lon 106.660172

  # Capture from the camera straight into an export slot
  fieldcam capture --form export --slot ImageSign --journal captures.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var device camera.Device = camera.MediaDevice{}
			if framePath != "" {
				still, err := camera.LoadStillDevice(framePath)
				if err != nil {
					return err
				}
				device = still
			}

			controller := camera.NewController(device)
			controller.ReadyTimeout = a.cfg.Camera.ReadyTimeout

			comp, err := a.compositor()
			if err != nil {
				return err
			}
			now, err := a.clock()
			if err != nil {
				return err
			}

			session := capture.New(controller, a.resolver(cmd, &pos), comp)
			session.Constraints = a.cfg.Constraints()
			session.Now = now
			session.Title = a.cfg.Overlay.Title
			if title != "" {
				session.Title = title
			}
			defer session.Dispose()

			var manager *slots.Manager
			if slot != "" {
				c, err := a.authedClient()
				if err != nil {
					return err
				}
				if manager, err = form.manager(c, slots.NewPreviewRegistry()); err != nil {
					return err
				}
				defer manager.Close()
				if _, err := manager.Slot(slot); err != nil {
					return fmt.Errorf("slot %s: %w", slot, err)
				}
			}

			if journalPath == "" {
				journalPath = a.cfg.Journal
			}

			ctx := cmd.Context()
			if err := session.Open(); err != nil {
				return err
			}

			view, err := session.WaitFor(ctx, func(v capture.View) bool {
				return v.State == capture.StateStreamReady || v.State == capture.StateStreamError
			})
			if err != nil {
				return err
			}
			if view.State == capture.StateStreamError {
				return fmt.Errorf("camera failed: %s", view.StreamError)
			}

			if waitLocation > 0 {
				waitCtx, cancel := context.WithTimeout(ctx, waitLocation)
				_, err := session.WaitFor(waitCtx, func(v capture.View) bool {
					return v.Location.Status != models.LocationResolving
				})
				cancel()
				if err != nil && !errors.Is(err, context.DeadlineExceeded) {
					return err
				}
			}

			if err := captureWhenReady(ctx, session, a.cfg.Camera.ReadyTimeout); err != nil {
				return err
			}

			view = session.View()
			var saved savedCapture
			err = session.ConfirmSave(ctx, func(ctx context.Context, file models.File, preview string) error {
				saved = savedCapture{File: filepath.Join(outDir, file.Name), Location: newLocationView(view.Location)}
				if err := writeOutput(saved.File, file.Data); err != nil {
					return err
				}

				if manager != nil {
					path, err := manager.AssignCapturedFile(ctx, slot, file, slots.Reference(preview))
					if err != nil {
						return err
					}
					saved.Slot, saved.ServerPath = slot, path
				}

				if journalPath != "" {
					cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Data))
					if err != nil {
						return fmt.Errorf("failed to read capture size: %w", err)
					}
					entry := journal.NewEntry(view.ID, session.Title, file, view.Location, cfg.Width, cfg.Height, view.Timestamp)
					entry.Slot, entry.ServerPath = saved.Slot, saved.ServerPath
					if err := journal.Open(journalPath).Append(entry); err != nil {
						// the photo is already saved, a journal failure only logs
						slog.Error("Unable to record capture in journal", "path", journalPath, "error", err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			return printYAML(cmd.OutOrStdout(), saved)
		},
	}

	pos.register(cmd)
	form.registerKind(cmd)
	cmd.Flags().StringVar(&framePath, "frame", "", "Use this image as the camera (headless capture)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory the photo is written to")
	cmd.Flags().StringVar(&slot, "slot", "", "Upload the photo into this slot of --form")
	cmd.Flags().StringVar(&title, "title", "", "Overlay title (default from configuration)")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Parquet journal to record the capture in")
	cmd.Flags().DurationVar(&waitLocation, "wait-location", 5*time.Second, "How long to wait for the position before capturing (0 captures immediately)")

	return cmd
}

type savedCapture struct {
	File       string       `yaml:"file"`
	Slot       string       `yaml:"slot,omitempty"`
	ServerPath string       `yaml:"server_path,omitempty"`
	Location   locationView `yaml:"location"`
}

// captureWhenReady retries until the stream has delivered a frame or
// timeout passes
func captureWhenReady(ctx context.Context, s *capture.Session, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = camera.DefaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := s.Capture()
		if !errors.Is(err, capture.ErrNotReady) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no frame received from camera: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
