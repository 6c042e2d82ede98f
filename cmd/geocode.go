package cmd

import (
	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/geo"
	"github.com/freeoffice/fieldcam/internal/models"
)

// locationView is the printable form of a location snapshot
type locationView struct {
	Status      string   `yaml:"status"`
	Latitude    *float64 `yaml:"latitude,omitempty"`
	Longitude   *float64 `yaml:"longitude,omitempty"`
	Coordinates string   `yaml:"coordinates,omitempty"`
	Address     string   `yaml:"address,omitempty"`
	Reason      string   `yaml:"reason,omitempty"`
}

func newLocationView(loc models.LocationSnapshot) locationView {
	v := locationView{
		Status:      loc.Status.String(),
		Coordinates: loc.Coordinates,
		Address:     loc.Address,
		Reason:      loc.Reason,
	}
	if loc.Status == models.LocationResolved {
		lat, lon := loc.Latitude, loc.Longitude
		v.Latitude, v.Longitude = &lat, &lon
	}
	return v
}

func newGeocodeCmd(a *app) *cobra.Command {
	var pos positionFlags

	cmd := &cobra.Command{
		Use:     "geocode",
		Short:   "Resolve the device position and its street address",
		Example: `  fieldcam geocode --lat 10.762622 --lon 106.660172`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.resolver(cmd, &pos).Resolve(cmd.Context())
			if err != nil {
				cmd.PrintErrln(geo.Message(err))
			}
			return printYAML(cmd.OutOrStdout(), newLocationView(loc))
		},
	}
	pos.register(cmd)

	return cmd
}
