package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/api"
	"github.com/freeoffice/fieldcam/internal/lookup"
)

// lookupSource fetches one entity list from the API
type lookupSource struct {
	table lookup.Table
	fetch func(ctx context.Context, c *api.Client, search string) ([]lookup.Item, error)
}

var lookupSources = map[string]lookupSource{
	"projects": {
		table: lookup.Project,
		fetch: func(ctx context.Context, c *api.Client, search string) ([]lookup.Item, error) {
			return c.Projects(ctx, search)
		},
	},
	"types": {
		table: lookup.TypeTrackingBill,
		fetch: func(ctx context.Context, c *api.Client, search string) ([]lookup.Item, error) {
			return c.TrackingTypes(ctx, search)
		},
	},
	"vehicles": {
		table: lookup.DeliveryVehicle,
		fetch: func(ctx context.Context, c *api.Client, _ string) ([]lookup.Item, error) {
			return c.DeliveryVehicles(ctx)
		},
	},
	"units": {
		table: lookup.Unit,
		fetch: func(ctx context.Context, c *api.Client, _ string) ([]lookup.Item, error) {
			return c.Units(ctx)
		},
	},
	"vehicle-types": {
		table: lookup.TypeVehicle,
		fetch: func(ctx context.Context, c *api.Client, _ string) ([]lookup.Item, error) {
			return c.VehicleTypes(ctx)
		},
	},
	"providers": {
		table: lookup.Provider,
		fetch: func(ctx context.Context, c *api.Client, search string) ([]lookup.Item, error) {
			return c.Providers(ctx, search)
		},
	},
}

func lookupNames() []string {
	names := make([]string, 0, len(lookupSources))
	for name := range lookupSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newLookupCmd(a *app) *cobra.Command {
	var (
		search string
		find   string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:       "lookup ENTITY",
		Short:     "List the id/label options of a ticket field",
		Long:      "Lists the options of a ticket field. ENTITY is one of: " + strings.Join(lookupNames(), ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: lookupNames(),
		Example: `  # Projects matching a search term
  fieldcam lookup projects --search cau

  # Check a unit by name
  fieldcam lookup units --find "m3"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, ok := lookupSources[args[0]]
			if !ok {
				return fmt.Errorf("unknown entity %q, expected one of %s", args[0], strings.Join(lookupNames(), ", "))
			}

			c, err := a.authedClient()
			if err != nil {
				return err
			}
			items, err := source.fetch(cmd.Context(), c, search)
			if err != nil {
				return err
			}
			if raw {
				return printYAML(cmd.OutOrStdout(), items)
			}

			options := source.table.Map(items)
			if find != "" {
				opt, ok := lookup.Find(options, find)
				if !ok {
					return fmt.Errorf("no %s matches %q", source.table.Entity, find)
				}
				return printYAML(cmd.OutOrStdout(), opt)
			}
			return printYAML(cmd.OutOrStdout(), options)
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Search term (projects, types and providers)")
	cmd.Flags().StringVar(&find, "find", "", "Print only the option with this label or id")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the unmapped API items")

	return cmd
}
