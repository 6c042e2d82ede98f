package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/journal"
)

type journalRow struct {
	CapturedAt string `yaml:"captured_at"`
	File       string `yaml:"file"`
	Title      string `yaml:"title"`
	Location   string `yaml:"location"`
	Address    string `yaml:"address,omitempty"`
	Size       string `yaml:"size"`
	Slot       string `yaml:"slot,omitempty"`
	ServerPath string `yaml:"server_path,omitempty"`
}

func newJournalCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal [PATH]",
		Short: "List the captures recorded in a parquet journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Journal
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no journal given and none configured")
			}

			entries, err := journal.Open(path).Entries()
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			rows := make([]journalRow, 0, len(entries))
			for _, e := range entries {
				location := e.Coordinates
				if location == "" {
					location = e.LocationStatus
					if e.Reason != "" {
						location += ": " + e.Reason
					}
				}
				rows = append(rows, journalRow{
					CapturedAt: e.Time().Format(time.RFC3339),
					File:       e.FileName,
					Title:      e.Title,
					Location:   location,
					Address:    e.Address,
					Size:       fmt.Sprintf("%dx%d, %d bytes", e.Width, e.Height, e.SizeBytes),
					Slot:       e.Slot,
					ServerPath: e.ServerPath,
				})
			}
			return printYAML(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the most recent entries (0 for all)")

	return cmd
}
