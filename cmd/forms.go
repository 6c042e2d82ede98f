package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/api"
	"github.com/freeoffice/fieldcam/internal/slots"
	"github.com/freeoffice/fieldcam/internal/trackingbill"
)

const (
	formImport = "import"
	formExport = "export"
)

// formFlags select a ticket form and, for submission, its field values
type formFlags struct {
	kind string

	title       string
	project     int
	from, to    int
	billType    int
	vehicle     int
	vehicleType int
	unit        int
	amount      float64
	driver      string
	cccd        string
	plate       string
	description string
	noCheck     bool
	noApprove   bool
	prefill     bool
	firstTitle  bool
}

func (f *formFlags) registerKind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "form", formImport, "Ticket form the slots belong to: import or export")
}

func (f *formFlags) registerFields(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.title, "title", "", "Import: ticket title (fetched from the server when empty)")
	flags.IntVar(&f.project, "project", 0, "Import: project ID")
	flags.IntVar(&f.from, "from", 0, "Export: source project ID")
	flags.IntVar(&f.to, "to", 0, "Export: destination project ID")
	flags.IntVar(&f.billType, "type", 0, "Tracking bill type ID")
	flags.IntVar(&f.vehicle, "vehicle", 0, "Delivery vehicle ID")
	flags.IntVar(&f.vehicleType, "vehicle-type", 0, "Export: vehicle type ID")
	flags.IntVar(&f.unit, "unit", 0, "Export: unit ID")
	flags.Float64Var(&f.amount, "amount", 0, "Amount (import defaults to the vehicle container count)")
	flags.StringVar(&f.driver, "driver", "", "Export: driver name")
	flags.StringVar(&f.cccd, "cccd", "", "Export: driver citizen ID, 9 to 12 digits")
	flags.StringVar(&f.plate, "plate", "", "Export: license plate")
	flags.StringVar(&f.description, "description", "", "Export: description")
	flags.BoolVar(&f.noCheck, "no-check", false, "Export: submit as not checked")
	flags.BoolVar(&f.noApprove, "no-approve", false, "Export: submit as not approved")
	flags.BoolVar(&f.prefill, "prefill", false, "Import: fill unset fields from the latest ticket")
	flags.BoolVar(&f.firstTitle, "first-title", false, "Import: request the first title of the day")
}

// slots returns the slot names and upload sub-directory of the form
func (f *formFlags) slots() ([]string, string, error) {
	switch f.kind {
	case formImport:
		return trackingbill.ImportSlots, trackingbill.ImportSubDirectory, nil
	case formExport:
		return trackingbill.ExportSlots, trackingbill.ExportSubDirectory, nil
	default:
		return nil, "", fmt.Errorf("unknown form %q (expected import or export)", f.kind)
	}
}

func (f *formFlags) manager(c *api.Client, previews slots.Previews) (*slots.Manager, error) {
	names, subDirectory, err := f.slots()
	if err != nil {
		return nil, err
	}
	m := slots.NewManager(c, previews, subDirectory, names...)
	err = m.Subscribe(slots.TopicFailed, func(slot slots.Slot, err error) {
		slog.Warn("Photo upload failed, capture it again", "slot", slot.Name, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to slot events: %w", err)
	}
	return m, nil
}

// submit validates the form against the uploaded paths and creates the ticket
func (f *formFlags) submit(ctx context.Context, c *api.Client, paths map[string]string) (json.RawMessage, error) {
	switch f.kind {
	case formImport:
		form, err := f.importForm(ctx, c)
		if err != nil {
			return nil, err
		}
		if err := form.Validate(paths); err != nil {
			return nil, err
		}
		return c.CreateTrackingBill(ctx, form.Payload(paths, time.Now()))
	case formExport:
		form := f.exportForm()
		if err := form.Validate(paths); err != nil {
			return nil, err
		}
		return c.CreateExportTrackingBill(ctx, form.Payload(paths))
	default:
		return nil, fmt.Errorf("unknown form %q (expected import or export)", f.kind)
	}
}

func (f *formFlags) importForm(ctx context.Context, c *api.Client) (trackingbill.Import, error) {
	form := trackingbill.Import{
		TitleBill:          f.title,
		ProjectID:          f.project,
		TypeTrackingBillID: f.billType,
		DeliveryVehicleID:  f.vehicle,
		Amount:             f.amount,
	}

	if f.prefill || (form.Amount <= 0 && form.DeliveryVehicleID != 0) {
		vehicles, err := c.DeliveryVehicles(ctx)
		if err != nil {
			return form, err
		}
		if f.prefill {
			latest, err := c.LatestTrackingBill(ctx)
			if err != nil {
				return form, err
			}
			form.ApplyLatest(latest, vehicles)
		}
		if form.Amount <= 0 {
			if n, ok := trackingbill.ContainerCount(vehicles, form.DeliveryVehicleID); ok {
				form.Amount = n
			}
		}
	}

	if form.TitleBill == "" && form.ProjectID != 0 && form.TypeTrackingBillID != 0 {
		title, err := c.TrackingBillTitle(ctx, api.TitleParams{
			ProjectID:          form.ProjectID,
			TypeTrackingBillID: form.TypeTrackingBillID,
			DeliveryVehicleID:  form.DeliveryVehicleID,
			IsFirst:            f.firstTitle,
		})
		if err != nil {
			return form, err
		}
		form.TitleBill = title
	}
	return form, nil
}

func (f *formFlags) exportForm() trackingbill.Export {
	form := trackingbill.NewExport()
	form.ProjectIDFrom = f.from
	form.ProjectIDTo = f.to
	form.TypeTrackingBillID = f.billType
	form.TypeVehicleID = f.vehicleType
	form.DeliveryVehicleID = f.vehicle
	form.UnitID = f.unit
	form.Amount = f.amount
	form.NameDriver = f.driver
	form.CCCD = f.cccd
	form.LicensePlate = f.plate
	form.Description = f.description
	form.IsCheck = !f.noCheck
	form.IsApprove = !f.noApprove
	return form
}

// decodeResponse turns an API response into a value yaml can print
func decodeResponse(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
