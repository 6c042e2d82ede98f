package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/api"
	"github.com/freeoffice/fieldcam/internal/lookup"
)

func newBillsCmd(a *app) *cobra.Command {
	var (
		filters     api.BillFilters
		page, limit int
		latest      bool
	)

	cmd := &cobra.Command{
		Use:       "bills import|export",
		Short:     "Search submitted material tickets",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{formImport, formExport},
		Example: `  # Intake tickets of one project in March
  fieldcam bills import --project 3 --start 2024-03-01 --end 2024-03-31

  # The most recent intake ticket
  fieldcam bills import --latest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var items []lookup.Item
			switch args[0] {
			case formImport:
				if latest {
					bill, err := c.LatestTrackingBill(ctx)
					if err != nil {
						return err
					}
					return printYAML(cmd.OutOrStdout(), bill)
				}
				items, err = c.ImportBills(ctx, filters, page, limit)
			case formExport:
				if latest {
					return fmt.Errorf("--latest is only available for import tickets")
				}
				items, err = c.ExportBills(ctx, filters, page, limit)
			default:
				return fmt.Errorf("unknown ticket kind %q (expected import or export)", args[0])
			}
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), items)
		},
	}

	flags := cmd.Flags()
	registerBillFilters(cmd, &filters)
	flags.IntVar(&page, "page", 1, "Result page")
	flags.IntVar(&limit, "limit", 20, "Results per page")
	flags.BoolVar(&latest, "latest", false, "Import: show only the most recent ticket")

	return cmd
}

// registerBillFilters binds the ticket search filters to flags
func registerBillFilters(cmd *cobra.Command, f *api.BillFilters) {
	flags := cmd.Flags()
	flags.StringVar(&f.TimeStart, "start", "", "Earliest bill date")
	flags.StringVar(&f.TimeEnd, "end", "", "Latest bill date")
	flags.StringVar(&f.KeySearch, "search", "", "Search term")
	flags.IntVar(&f.ProjectID, "project", 0, "Project ID")
	flags.IntVar(&f.ProviderID, "provider", 0, "Provider ID")
	flags.IntVar(&f.TypeTrackingBillID, "type", 0, "Tracking bill type ID")
	flags.IntVar(&f.TypeVehicleID, "vehicle-type", 0, "Vehicle type ID")
	flags.IntVar(&f.DeliveryVehicleID, "vehicle", 0, "Delivery vehicle ID")
	flags.IntVar(&f.ProjectIDFrom, "from", 0, "Export: source project ID")
	flags.IntVar(&f.ProjectIDTo, "to", 0, "Export: destination project ID")
}
