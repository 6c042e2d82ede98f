package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/freeoffice/fieldcam/internal/lookup"
)

var listKeys = []string{"data", "Data", "result", "Result", "items", "Items"}

// projectEndpoints are tried in order, deployments expose different routes
var projectEndpoints = []string{
	"/projects/list",
	"/project/listproject",
	"/project/listprojects",
	"/project/getlistproject",
	"/project/getprojects",
}

// NormaliseList extracts the item array of a list response. The array may
// be the body itself or wrapped in one of the usual envelope keys.
func NormaliseList(raw json.RawMessage) []lookup.Item {
	if len(raw) == 0 {
		return nil
	}

	var items []lookup.Item
	if err := decodeNumbers(raw, &items); err == nil {
		return items
	}

	var envelope map[string]json.RawMessage
	if err := decodeNumbers(raw, &envelope); err != nil {
		return nil
	}
	for _, key := range listKeys {
		value, ok := envelope[key]
		if !ok {
			continue
		}
		if err := decodeNumbers(value, &items); err == nil && items != nil {
			return items
		}
	}
	return nil
}

func decodeNumbers(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	return dec.Decode(out)
}

// buildQuery drops nil and blank values
func buildQuery(params map[string]any) string {
	q := url.Values{}
	for k, v := range params {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		q.Set(k, s)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) list(ctx context.Context, endpoint string, opts RequestOptions) ([]lookup.Item, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, endpoint, opts, &raw); err != nil {
		return nil, err
	}
	return NormaliseList(raw), nil
}

// Projects lists projects, trying each known route until one answers
func (c *Client) Projects(ctx context.Context, keySearch string) ([]lookup.Item, error) {
	query := buildQuery(map[string]any{"keySearch": keySearch})
	var lastErr error
	for _, endpoint := range projectEndpoints {
		items, err := c.list(ctx, endpoint+query, RequestOptions{})
		if err == nil {
			return items, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("unable to fetch project list: %w", lastErr)
}

func (c *Client) TrackingTypes(ctx context.Context, keySearch string) ([]lookup.Item, error) {
	endpoint := "/typetrackingbill/list-type-tracking-bill?" + url.Values{"keySearch": {keySearch}}.Encode()
	return c.list(ctx, endpoint, RequestOptions{Limit: DefaultLimit})
}

func (c *Client) DeliveryVehicles(ctx context.Context) ([]lookup.Item, error) {
	return c.list(ctx, "/deliveryvehicles/list", RequestOptions{})
}

func (c *Client) Providers(ctx context.Context, keySearch string) ([]lookup.Item, error) {
	return c.list(ctx, "/providervehicles/search"+buildQuery(map[string]any{"keySearch": keySearch}), RequestOptions{})
}

func (c *Client) VehicleTypes(ctx context.Context) ([]lookup.Item, error) {
	return c.list(ctx, "/typevehicles/all", RequestOptions{})
}

func (c *Client) Units(ctx context.Context) ([]lookup.Item, error) {
	return c.list(ctx, "/unit/getlistunit", RequestOptions{})
}

// BillFilters narrows tracking bill searches. Zero values are omitted.
type BillFilters struct {
	TimeStart          string
	TimeEnd            string
	KeySearch          string
	ProjectID          int
	ProviderID         int
	TypeTrackingBillID int
	TypeVehicleID      int
	DeliveryVehicleID  int
	ProjectIDFrom      int
	ProjectIDTo        int
}

func (f BillFilters) params() map[string]any {
	p := map[string]any{
		"timeStart": f.TimeStart,
		"timeEnd":   f.TimeEnd,
		"keySearch": f.KeySearch,
	}
	ids := map[string]int{
		"projectID":          f.ProjectID,
		"providerID":         f.ProviderID,
		"typeTrackingBillID": f.TypeTrackingBillID,
		"typeVehicleID":      f.TypeVehicleID,
		"deliveryVehicleID":  f.DeliveryVehicleID,
		"projectIdFrom":      f.ProjectIDFrom,
		"projectIDTo":        f.ProjectIDTo,
	}
	for k, v := range ids {
		if v != 0 {
			p[k] = v
		}
	}
	return p
}

// ImportBills searches inbound material tickets
func (c *Client) ImportBills(ctx context.Context, f BillFilters, page, limit int) ([]lookup.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.list(ctx, "/trackingbill/list-tracking-bill-search"+buildQuery(f.params()), RequestOptions{Page: page, Limit: limit})
}

// ExportBills searches outbound material tickets
func (c *Client) ExportBills(ctx context.Context, f BillFilters, page, limit int) ([]lookup.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.list(ctx, "/exporttrackingbill/list-export-tracking-bill-search"+buildQuery(f.params()), RequestOptions{Page: page, Limit: limit})
}

// TitleParams identify the bill whose generated title is requested
type TitleParams struct {
	ProjectID          int
	TypeTrackingBillID int
	DeliveryVehicleID  int
	IsFirst            bool
}

// TrackingBillTitle asks the server for the next bill title. The result is
// empty when the server has no suggestion.
func (c *Client) TrackingBillTitle(ctx context.Context, p TitleParams) (string, error) {
	query := buildQuery(map[string]any{
		"projectID":          p.ProjectID,
		"typeTrackingBillID": p.TypeTrackingBillID,
		"deliveryVehicleID":  p.DeliveryVehicleID,
		"isFirst":            fmt.Sprint(p.IsFirst),
	})

	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, "/trackingbill/get-title"+query, RequestOptions{}, &raw); err != nil {
		return "", fmt.Errorf("failed to fetch bill title: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}

	var title string
	if err := json.Unmarshal(raw, &title); err == nil {
		return title, nil
	}
	var wrapped struct {
		Data any `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if s, ok := wrapped.Data.(string); ok {
			return s, nil
		}
	}
	return "", nil
}

// LatestTrackingBill returns the most recent inbound ticket, or nil when the
// account has none
func (c *Client) LatestTrackingBill(ctx context.Context) (lookup.Item, error) {
	var wrapped struct {
		Data lookup.Item `json:"data"`
	}
	if err := c.Do(ctx, http.MethodGet, "/trackingbill/get-tracking-bill-lastest", RequestOptions{}, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to fetch latest tracking bill: %w", err)
	}
	return wrapped.Data, nil
}

// CreateTrackingBill submits an inbound material ticket
func (c *Client) CreateTrackingBill(ctx context.Context, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodPost, "/trackingbill/create-tracking-bill", RequestOptions{Body: payload}, &raw); err != nil {
		return nil, fmt.Errorf("failed to create tracking bill: %w", err)
	}
	return raw, nil
}

// CreateExportTrackingBill submits an outbound material ticket
func (c *Client) CreateExportTrackingBill(ctx context.Context, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodPost, "/exporttrackingbill/create-export-tracking-bill", RequestOptions{Body: payload}, &raw); err != nil {
		return nil, fmt.Errorf("failed to create export tracking bill: %w", err)
	}
	return raw, nil
}
