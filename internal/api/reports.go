package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ReportLimit is the row limit the report endpoints are queried with
const ReportLimit = 20000

// ImportReport returns the inbound ticket report for the filters as sent by
// the server
func (c *Client) ImportReport(ctx context.Context, f BillFilters) (json.RawMessage, error) {
	return c.report(ctx, "/trackingbill/report-tracking-bill-search", f)
}

// ExportReport returns the outbound ticket report for the filters
func (c *Client) ExportReport(ctx context.Context, f BillFilters) (json.RawMessage, error) {
	return c.report(ctx, "/exporttrackingbill/report-export-tracking-bill-search", f)
}

func (c *Client) report(ctx context.Context, endpoint string, f BillFilters) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, endpoint+buildQuery(f.params()), RequestOptions{Limit: ReportLimit}, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch report: %w", err)
	}
	return raw, nil
}
