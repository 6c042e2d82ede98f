package trackingbill

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/freeoffice/fieldcam/internal/lookup"
)

const (
	ImportSubDirectory = "TrackingBill"
	ExportSubDirectory = "ExportTrackingBill"

	// DateLayout matches the millisecond UTC timestamps the API stores
	DateLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ImportSlots = []string{"ImageIn1", "ImageIn2", "ImageIn3"}
	ExportSlots = []string{"ImageExport1", "ImageExport2", "ImageExport3", "ImageSign"}

	cccdPattern = regexp.MustCompile(`^\d{9,12}$`)
)

// ValidationError lists every problem that blocks submission
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid form: " + strings.Join(e.Problems, " ")
}

func validationResult(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

func optional(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

// Import is an inbound material ticket being filled in
type Import struct {
	TitleBill          string
	ProjectID          int
	TypeTrackingBillID int
	DeliveryVehicleID  int
	Amount             float64
}

// ImportPayload is the body of create-tracking-bill
type ImportPayload struct {
	TitleBill          string  `json:"TitleBill"`
	TypeTrackingBillID *int    `json:"TypeTrackingBillID"`
	ProjectID          *int    `json:"ProjectID"`
	DeliveryVehicleID  *int    `json:"DeliveryVehicleID"`
	DateBill           string  `json:"DateBill"`
	Amount             float64 `json:"Amount"`
	ImageIn1           string  `json:"ImageIn1"`
	ImageIn2           string  `json:"ImageIn2"`
	ImageIn3           string  `json:"ImageIn3"`
	ImageOut1          string  `json:"ImageOut1"`
	ImageOut2          string  `json:"ImageOut2"`
	ImageOut3          string  `json:"ImageOut3"`
	FileReceive        string  `json:"FileReceive"`
	IsError            int     `json:"IsError"`
	Violate            int     `json:"Violate"`
	FileExact          string  `json:"FileExact"`
	ViolationRuleID    int     `json:"ViolationRuleID"`
	HandlingPlanID     int     `json:"HandlingPlanID"`
}

// Validate checks the form against the uploaded slot paths
func (f Import) Validate(paths map[string]string) error {
	var problems []string
	if f.ProjectID == 0 {
		problems = append(problems, "Select a project.")
	}
	if f.TypeTrackingBillID == 0 {
		problems = append(problems, "Select a material type.")
	}
	if f.DeliveryVehicleID == 0 {
		problems = append(problems, "Select a delivery vehicle.")
	}
	if f.TitleBill == "" {
		problems = append(problems, "The ticket title could not be generated, refresh and retry.")
	}
	if f.Amount <= 0 {
		problems = append(problems, "Amount must be greater than 0.")
	}

	hasImage := false
	for _, slot := range ImportSlots {
		if paths[slot] != "" {
			hasImage = true
			break
		}
	}
	if !hasImage {
		problems = append(problems, "Capture at least one material photo.")
	}
	return validationResult(problems)
}

// Payload builds the request body with the photo paths of the slots
func (f Import) Payload(paths map[string]string, now time.Time) ImportPayload {
	return ImportPayload{
		TitleBill:          f.TitleBill,
		TypeTrackingBillID: optional(f.TypeTrackingBillID),
		ProjectID:          optional(f.ProjectID),
		DeliveryVehicleID:  optional(f.DeliveryVehicleID),
		DateBill:           now.UTC().Format(DateLayout),
		Amount:             f.Amount,
		ImageIn1:           paths["ImageIn1"],
		ImageIn2:           paths["ImageIn2"],
		ImageIn3:           paths["ImageIn3"],
	}
}

// ApplyLatest prefills unset fields from the most recent ticket. When the
// ticket has no amount, the container count of its vehicle is used.
func (f *Import) ApplyLatest(latest lookup.Item, vehicles []lookup.Item) {
	if latest == nil {
		return
	}
	if v, ok := intField(latest, "ProjectID"); ok && f.ProjectID == 0 {
		f.ProjectID = v
	}
	if v, ok := intField(latest, "TypeTrackingBillID"); ok && f.TypeTrackingBillID == 0 {
		f.TypeTrackingBillID = v
	}
	if v, ok := intField(latest, "DeliveryVehicleID"); ok && f.DeliveryVehicleID == 0 {
		f.DeliveryVehicleID = v
	}
	if f.Amount > 0 {
		return
	}
	if amount, ok := lookup.ToOptionalNumber(latest["Amount"]); ok {
		f.Amount = amount
		return
	}
	if n, ok := ContainerCount(vehicles, f.DeliveryVehicleID); ok {
		f.Amount = n
	}
}

// ContainerCount returns the NumberContainer of the vehicle with id
func ContainerCount(vehicles []lookup.Item, id int) (float64, bool) {
	if id == 0 {
		return 0, false
	}
	for _, v := range vehicles {
		if vid, ok := intField(v, "DeliveryVehicleID"); ok && vid == id {
			return lookup.ToOptionalNumber(v["NumberContainer"])
		}
	}
	return 0, false
}

func intField(item lookup.Item, key string) (int, bool) {
	n, ok := lookup.ToOptionalNumber(item[key])
	if !ok || n == 0 {
		return 0, false
	}
	return int(n), true
}

// Export is an outbound material ticket being filled in
type Export struct {
	ExportTrackingBillID int
	ProjectIDFrom        int
	ProjectIDTo          int
	TypeTrackingBillID   int
	TypeVehicleID        int
	DeliveryVehicleID    int
	UnitID               int
	NameDriver           string
	CCCD                 string
	LicensePlate         string
	Description          string
	Amount               float64
	IsCheck              bool
	IsApprove            bool
}

// NewExport returns a form with the checked and approved flags set
func NewExport() Export {
	return Export{IsCheck: true, IsApprove: true}
}

// ExportPayload is the body of create-export-tracking-bill
type ExportPayload struct {
	ExportTrackingBillID int     `json:"ExportTrackingBillID"`
	ProjectIDFrom        *int    `json:"ProjectIDFrom"`
	ProjectIDTo          *int    `json:"ProjectIDTo"`
	TypeTrackingBillID   *int    `json:"TypeTrackingBillID"`
	NameDriver           string  `json:"NameDriver"`
	CCCD                 string  `json:"CCCD"`
	LicensePlate         string  `json:"LicensePlate"`
	UnitID               *int    `json:"UnitID"`
	Amount               float64 `json:"Amount"`
	Description          string  `json:"Description"`
	ImageExport1         string  `json:"ImageExport1"`
	ImageExport2         string  `json:"ImageExport2"`
	ImageExport3         string  `json:"ImageExport3"`
	ImageSign            string  `json:"ImageSign"`
	IsCheck              bool    `json:"IsCheck"`
	IsApprove            bool    `json:"IsApprove"`
	TypeVehicleID        *int    `json:"TypeVehicleID,omitempty"`
	DeliveryVehicleID    *int    `json:"DeliveryVehicleID,omitempty"`
}

// ExportSteps names the wizard steps Validate reports problems for
var ExportSteps = []string{"projects", "driver", "material", "photos"}

// StepError carries the first wizard step that failed validation
type StepError struct {
	Step int
	ValidationError
}

func (e *StepError) Error() string {
	return fmt.Sprintf("invalid %s step: %s", ExportSteps[e.Step], strings.Join(e.Problems, " "))
}

// ValidateStep checks a single wizard step
func (f Export) ValidateStep(step int, paths map[string]string) []string {
	var problems []string
	switch step {
	case 0:
		if f.ProjectIDFrom == 0 {
			problems = append(problems, "Select the source project.")
		}
		if f.ProjectIDTo == 0 {
			problems = append(problems, "Select the destination project.")
		}
		if f.ProjectIDFrom != 0 && f.ProjectIDFrom == f.ProjectIDTo {
			problems = append(problems, "Source and destination projects must differ.")
		}
	case 1:
		if strings.TrimSpace(f.NameDriver) == "" {
			problems = append(problems, "Enter the driver name.")
		}
		if !cccdPattern.MatchString(strings.TrimSpace(f.CCCD)) {
			problems = append(problems, "Citizen ID must be 9 to 12 digits.")
		}
		if strings.TrimSpace(f.LicensePlate) == "" {
			problems = append(problems, "Enter the license plate.")
		}
	case 2:
		if f.TypeTrackingBillID == 0 {
			problems = append(problems, "Select a ticket type.")
		}
		if f.UnitID == 0 {
			problems = append(problems, "Select a unit.")
		}
		if f.Amount <= 0 {
			problems = append(problems, "Amount must be greater than 0.")
		}
	case 3:
		if paths["ImageExport1"] == "" {
			problems = append(problems, "Add at least one material photo.")
		}
		if paths["ImageSign"] == "" {
			problems = append(problems, "Add the confirmation signature.")
		}
	}
	return problems
}

// Validate returns a StepError for the first step with problems
func (f Export) Validate(paths map[string]string) error {
	for step := range ExportSteps {
		if problems := f.ValidateStep(step, paths); len(problems) > 0 {
			return &StepError{Step: step, ValidationError: ValidationError{Problems: problems}}
		}
	}
	return nil
}

// Payload builds the request body with the photo paths of the slots
func (f Export) Payload(paths map[string]string) ExportPayload {
	return ExportPayload{
		ExportTrackingBillID: f.ExportTrackingBillID,
		ProjectIDFrom:        optional(f.ProjectIDFrom),
		ProjectIDTo:          optional(f.ProjectIDTo),
		TypeTrackingBillID:   optional(f.TypeTrackingBillID),
		NameDriver:           strings.TrimSpace(f.NameDriver),
		CCCD:                 strings.TrimSpace(f.CCCD),
		LicensePlate:         strings.TrimSpace(f.LicensePlate),
		UnitID:               optional(f.UnitID),
		Amount:               f.Amount,
		Description:          strings.TrimSpace(f.Description),
		ImageExport1:         paths["ImageExport1"],
		ImageExport2:         paths["ImageExport2"],
		ImageExport3:         paths["ImageExport3"],
		ImageSign:            paths["ImageSign"],
		IsCheck:              f.IsCheck,
		IsApprove:            f.IsApprove,
		TypeVehicleID:        optional(f.TypeVehicleID),
		DeliveryVehicleID:    optional(f.DeliveryVehicleID),
	}
}
