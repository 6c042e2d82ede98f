package lookup

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Item is one raw object returned by a list endpoint
type Item map[string]any

// Option is a normalised id/label pair. Value is a float64 when the raw id
// is numeric and a string otherwise.
type Option struct {
	Value any    `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// ID returns the numeric value of the option
func (o Option) ID() (int, bool) {
	f, ok := o.Value.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func (o Option) String() string {
	return fmt.Sprintf("%v\t%s", o.Value, o.Label)
}

// Table lists candidate keys for the id and label of an entity, in priority
// order
type Table struct {
	Entity    string
	ValueKeys []string
	LabelKeys []string
}

var (
	Project = Table{
		Entity:    "project",
		ValueKeys: []string{"ProjectID", "projectID", "ID", "Id"},
		LabelKeys: []string{"ProjectName", "ProjectShortName", "Name", "FullName", "label"},
	}
	TypeTrackingBill = Table{
		Entity:    "type_tracking_bill",
		ValueKeys: []string{"TypeTrackingBillID", "ID", "Id"},
		LabelKeys: []string{"TypeTrackingBillName", "TypeName", "Name", "label"},
	}
	DeliveryVehicle = Table{
		Entity:    "delivery_vehicle",
		ValueKeys: []string{"DeliveryVehicleID", "ID", "Id"},
		LabelKeys: []string{"DeliveryVehicleName", "NumberVehicle", "VehicleName", "Name", "label"},
	}
	Unit = Table{
		Entity:    "unit",
		ValueKeys: []string{"UnitID", "ID", "Id"},
		LabelKeys: []string{"UnitName", "Name", "label"},
	}
	TypeVehicle = Table{
		Entity:    "type_vehicle",
		ValueKeys: []string{"TypeVehicleID", "ID", "Id"},
		LabelKeys: []string{"TypeVehicleName", "Name", "label"},
	}
	Provider = Table{
		Entity:    "provider",
		ValueKeys: []string{"ProviderID", "providerID", "ID", "Id"},
		LabelKeys: []string{"ProviderName", "Name", "FullName", "label"},
	}
)

func hasValue(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

// Resolve picks the first present value key and, for it, the first present
// label key
func (t Table) Resolve(item Item) (Option, bool) {
	for _, vk := range t.ValueKeys {
		raw, ok := item[vk]
		if !ok || !hasValue(raw) {
			continue
		}
		for _, lk := range t.LabelKeys {
			label, ok := item[lk]
			if !ok || !hasValue(label) {
				continue
			}
			return Option{Value: normaliseValue(raw), Label: stringify(label)}, true
		}
	}
	return Option{}, false
}

// Map resolves every item, dropping those without an id and label
func (t Table) Map(items []Item) []Option {
	options := make([]Option, 0, len(items))
	for _, item := range items {
		if opt, ok := t.Resolve(item); ok {
			options = append(options, opt)
		}
	}
	return options
}

// Find returns the option with the given label or id, case-insensitively
func Find(options []Option, query string) (Option, bool) {
	q := strings.TrimSpace(query)
	for _, o := range options {
		if strings.EqualFold(o.Label, q) || stringify(o.Value) == q {
			return o, true
		}
	}
	return Option{}, false
}

// normaliseValue keeps numbers, converts non-zero numeric strings to
// numbers and leaves everything else as a string
func normaliseValue(v any) any {
	switch v.(type) {
	case float64, float32, int, int64, json.Number:
		if n, ok := ToOptionalNumber(v); ok {
			return n
		}
	}
	if n, ok := ToOptionalNumber(v); ok && n != 0 {
		return n
	}
	return stringify(v)
}

// ToOptionalNumber converts form input into a number. Empty and invalid
// values report false.
func ToOptionalNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			if x == "" {
				return 0, false
			}
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
