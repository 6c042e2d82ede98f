package trackingbill

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/freeoffice/fieldcam/internal/lookup"
)

func TestImportValidate(t *testing.T) {
	valid := Import{TitleBill: "PN-01", ProjectID: 3, TypeTrackingBillID: 1, DeliveryVehicleID: 5, Amount: 2}

	tests := []struct {
		name     string
		form     Import
		paths    map[string]string
		problems int
	}{
		{name: "valid", form: valid, paths: map[string]string{"ImageIn2": "/Upload/a.png"}},
		{name: "no photo", form: valid, paths: map[string]string{}, problems: 1},
		{name: "zero amount", form: Import{TitleBill: "PN-01", ProjectID: 3, TypeTrackingBillID: 1, DeliveryVehicleID: 5}, paths: map[string]string{"ImageIn1": "/a"}, problems: 1},
		{name: "empty form", form: Import{}, paths: nil, problems: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate(tt.paths)
			if tt.problems == 0 {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if len(verr.Problems) != tt.problems {
				t.Errorf("Expected %d problems, got %v", tt.problems, verr.Problems)
			}
		})
	}
}

func TestImportPayload(t *testing.T) {
	form := Import{TitleBill: "PN-01", ProjectID: 3, TypeTrackingBillID: 1, Amount: 4}
	now := time.Date(2024, 3, 15, 21, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	payload := form.Payload(map[string]string{"ImageIn1": "/Upload/TrackingBill/a.png"}, now)

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}

	if body["DateBill"] != "2024-03-15T14:30:00.000Z" {
		t.Errorf("Expected UTC DateBill, got %v", body["DateBill"])
	}
	if body["DeliveryVehicleID"] != nil {
		t.Errorf("Expected null DeliveryVehicleID, got %v", body["DeliveryVehicleID"])
	}
	if body["ImageIn1"] != "/Upload/TrackingBill/a.png" || body["ImageIn2"] != "" {
		t.Errorf("Unexpected image fields %v %v", body["ImageIn1"], body["ImageIn2"])
	}
	for _, key := range []string{"IsError", "Violate", "ViolationRuleID", "HandlingPlanID"} {
		if body[key] != float64(0) {
			t.Errorf("Expected %s to be 0, got %v", key, body[key])
		}
	}
	if _, ok := body["ImageOut1"]; !ok {
		t.Error("Expected ImageOut1 to be present")
	}
}

func TestApplyLatest(t *testing.T) {
	vehicles := []lookup.Item{
		{"DeliveryVehicleID": json.Number("5"), "NumberContainer": json.Number("3")},
		{"DeliveryVehicleID": json.Number("6"), "NumberContainer": json.Number("8")},
	}

	var form Import
	form.ApplyLatest(lookup.Item{"ProjectID": json.Number("3"), "DeliveryVehicleID": json.Number("6")}, vehicles)
	if form.ProjectID != 3 || form.DeliveryVehicleID != 6 {
		t.Errorf("Unexpected prefill %+v", form)
	}
	if form.Amount != 8 {
		t.Errorf("Expected amount from container count, got %v", form.Amount)
	}

	kept := Import{ProjectID: 9, Amount: 1}
	kept.ApplyLatest(lookup.Item{"ProjectID": json.Number("3"), "Amount": json.Number("40")}, vehicles)
	if kept.ProjectID != 9 || kept.Amount != 1 {
		t.Errorf("Expected set fields to be kept, got %+v", kept)
	}

	var none Import
	none.ApplyLatest(nil, vehicles)
	if none != (Import{}) {
		t.Errorf("Expected nil latest to change nothing, got %+v", none)
	}
}

func TestExportValidateSteps(t *testing.T) {
	complete := func() Export {
		f := NewExport()
		f.ProjectIDFrom, f.ProjectIDTo = 1, 2
		f.NameDriver, f.CCCD, f.LicensePlate = "Tran Van B", "012345678901", "51C-12345"
		f.TypeTrackingBillID, f.UnitID, f.Amount = 1, 2, 10
		return f
	}
	photos := map[string]string{"ImageExport1": "/a.png", "ImageSign": "/sign.png"}

	tests := []struct {
		name   string
		modify func(*Export)
		paths  map[string]string
		step   int
	}{
		{name: "complete", modify: func(*Export) {}, paths: photos, step: -1},
		{name: "same project", modify: func(f *Export) { f.ProjectIDTo = 1 }, paths: photos, step: 0},
		{name: "short citizen id", modify: func(f *Export) { f.CCCD = "12345" }, paths: photos, step: 1},
		{name: "letters in citizen id", modify: func(f *Export) { f.CCCD = "01234567A" }, paths: photos, step: 1},
		{name: "blank driver", modify: func(f *Export) { f.NameDriver = "   " }, paths: photos, step: 1},
		{name: "no unit", modify: func(f *Export) { f.UnitID = 0 }, paths: photos, step: 2},
		{name: "no signature", modify: func(*Export) {}, paths: map[string]string{"ImageExport1": "/a.png"}, step: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := complete()
			tt.modify(&f)
			err := f.Validate(tt.paths)
			if tt.step < 0 {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			var serr *StepError
			if !errors.As(err, &serr) {
				t.Fatalf("Expected StepError, got %v", err)
			}
			if serr.Step != tt.step {
				t.Errorf("Expected step %d, got %d (%v)", tt.step, serr.Step, serr)
			}
		})
	}
}

func TestExportPayloadTrimsFields(t *testing.T) {
	f := NewExport()
	f.ProjectIDFrom, f.ProjectIDTo = 1, 2
	f.NameDriver, f.CCCD, f.LicensePlate, f.Description = " Tran Van B ", " 012345678 ", " 51C ", "  note "

	p := f.Payload(map[string]string{"ImageSign": "/sign.png"})
	if p.NameDriver != "Tran Van B" || p.CCCD != "012345678" || p.LicensePlate != "51C" || p.Description != "note" {
		t.Errorf("Expected trimmed fields, got %+v", p)
	}
	if !p.IsCheck || !p.IsApprove {
		t.Error("Expected check and approve to default to true")
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "TypeVehicleID") {
		t.Errorf("Expected unset TypeVehicleID to be omitted, got %s", data)
	}
	if !strings.Contains(string(data), `"UnitID":null`) {
		t.Errorf("Expected null UnitID, got %s", data)
	}
}
