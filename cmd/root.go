package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/config"
)

// app carries what the persistent flags resolve to
type app struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "fieldcam",
		Short: "Field client for material tracking tickets with geotagged photo evidence",
		Long: `Fieldcam captures photo evidence for material intake and export tickets.

Photos get a burned-in overlay with the ticket title, the capture time, the
resolved street address and the GPS coordinates. They are uploaded into the
named image slots of a ticket, which can then be submitted to the FreeOffice API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if a.configPath == "" {
				a.configPath = os.Getenv(config.EnvPrefix + "CONFIG")
			}

			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML configuration file (or FIELDCAM_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newLoginCmd(a))
	cmd.AddCommand(newLogoutCmd(a))
	cmd.AddCommand(newWhoamiCmd(a))
	cmd.AddCommand(newGeocodeCmd(a))
	cmd.AddCommand(newOverlayCmd(a))
	cmd.AddCommand(newCaptureCmd(a))
	cmd.AddCommand(newUploadCmd(a))
	cmd.AddCommand(newLookupCmd(a))
	cmd.AddCommand(newBillsCmd(a))
	cmd.AddCommand(newReportCmd(a))
	cmd.AddCommand(newWorkflowsCmd(a))
	cmd.AddCommand(newJournalCmd(a))

	return cmd
}
