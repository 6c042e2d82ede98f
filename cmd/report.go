package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/api"
)

type savedReport struct {
	File  string `yaml:"file"`
	Bytes int    `yaml:"bytes"`
}

func newReportCmd(a *app) *cobra.Command {
	var (
		filters api.BillFilters
		out     string
	)

	cmd := &cobra.Command{
		Use:       "report import|export",
		Short:     "Download a ticket report as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{formImport, formExport},
		Example: `  # Export report of one source project, written to a named file
  fieldcam report export --from 3 --start 2024-03-01 -o march.json

  # Print the intake report
  fieldcam report import -o -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}

			var raw json.RawMessage
			switch args[0] {
			case formImport:
				raw, err = c.ImportReport(cmd.Context(), filters)
			case formExport:
				raw, err = c.ExportReport(cmd.Context(), filters)
			default:
				return fmt.Errorf("unknown ticket kind %q (expected import or export)", args[0])
			}
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if len(raw) == 0 {
				raw = json.RawMessage("null")
			}
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return fmt.Errorf("failed to format report: %w", err)
			}
			buf.WriteByte('\n')

			if out == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if out == "" {
				out = fmt.Sprintf("%s-report-%d.json", args[0], time.Now().UnixMilli())
			}
			if err := writeOutput(out, buf.Bytes()); err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), savedReport{File: out, Bytes: buf.Len()})
		},
	}

	registerBillFilters(cmd, &filters)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Report file, - for stdout (default <kind>-report-<time>.json)")

	return cmd
}
