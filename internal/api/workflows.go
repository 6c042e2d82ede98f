package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/freeoffice/fieldcam/internal/lookup"
)

// StatusAll lists workflows and processes in every status
const StatusAll = -100

// WorkflowListLimit is the page size of workflow and process lists
const WorkflowListLimit = 10

// ProcessList selects one of the request process listings
type ProcessList string

const (
	ProcessesAll          ProcessList = "all"
	ProcessesNeedApproval ProcessList = "need-approval"
	ProcessesCreatedByMe  ProcessList = "created-by-me"
)

// WorkflowSearch filters workflow and process lists
type WorkflowSearch struct {
	Status int
	Search string
	Page   int
	Limit  int
}

func (s WorkflowSearch) options() RequestOptions {
	limit := s.Limit
	if limit <= 0 {
		limit = WorkflowListLimit
	}
	return RequestOptions{Page: s.Page, Limit: limit}
}

// Workflows lists approval workflows
func (c *Client) Workflows(ctx context.Context, s WorkflowSearch) ([]lookup.Item, error) {
	q := url.Values{
		"typeWorkFlowID": {""},
		"keySearch":      {s.Search},
		"statusID":       {strconv.Itoa(s.Status)},
	}
	items, err := c.list(ctx, "/workflow/listWorkflowsearch?"+q.Encode(), s.options())
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return items, nil
}

// Processes lists request processes. Status only applies to ProcessesAll.
func (c *Client) Processes(ctx context.Context, list ProcessList, s WorkflowSearch) ([]lookup.Item, error) {
	var endpoint string
	switch list {
	case ProcessesAll, "":
		endpoint = "/requestprocess/listprocess?" + url.Values{
			"keySearch": {s.Search},
			"statusID":  {strconv.Itoa(s.Status)},
			"fromDate":  {""},
			"toDate":    {""},
			"userID":    {"null"},
		}.Encode()
	case ProcessesNeedApproval:
		endpoint = "/requestprocess/listprocessneedmyapproval?" + url.Values{"keySearch": {s.Search}}.Encode()
	case ProcessesCreatedByMe:
		endpoint = "/requestprocess/listprocesscreatedbyme?" + url.Values{"keySearch": {s.Search}}.Encode()
	default:
		return nil, fmt.Errorf("unknown process list %q", list)
	}

	items, err := c.list(ctx, endpoint, s.options())
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, endpoint, what string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, endpoint, RequestOptions{}, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", what, err)
	}
	return raw, nil
}

func (c *Client) Workflow(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("/workflow/getworkflowbyid/%d?workFlowID=%d", id, id), "workflow")
}

// WorkflowApprovals lists the approval steps of a workflow
func (c *Client) WorkflowApprovals(ctx context.Context, id int) ([]lookup.Item, error) {
	return c.list(ctx, fmt.Sprintf("/workflow/listworkflowapprove/%d?workFlowID=%d", id, id), RequestOptions{})
}

func (c *Client) WorkflowComments(ctx context.Context, id int) ([]lookup.Item, error) {
	return c.list(ctx, fmt.Sprintf("/requestcomment/getlistrequestcommentbyworkflowid/%d?workFlowID=%d", id, id), RequestOptions{})
}

func (c *Client) Process(ctx context.Context, id int) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("/requestprocess/getprocessbyid/%d?processID=%d", id, id), "process")
}

func (c *Client) ProcessComments(ctx context.Context, id int) ([]lookup.Item, error) {
	return c.list(ctx, fmt.Sprintf("/requestcomment/getrequestcommentchat?ProcessID=%d&CommentID=1", id), RequestOptions{})
}

// Attachments lists the files attached to a process or a workflow. Zero
// IDs are sent blank.
func (c *Client) Attachments(ctx context.Context, processID, workflowID int) ([]lookup.Item, error) {
	q := url.Values{"processID": {""}, "workFlowID": {""}}
	if processID != 0 {
		q.Set("processID", strconv.Itoa(processID))
	}
	if workflowID != 0 {
		q.Set("workFlowID", strconv.Itoa(workflowID))
	}
	return c.list(ctx, "/requestattachment/listattachments?"+q.Encode(), RequestOptions{})
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, what string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, method, endpoint, RequestOptions{Body: body}, &raw); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return raw, nil
}

func (c *Client) CommentWorkflow(ctx context.Context, id int, comment string) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/requestcomment/createrequestcommentworkflow?workFlowID=%d", id),
		map[string]any{"Comment": comment}, "comment on workflow")
}

func (c *Client) CommentProcess(ctx context.Context, id int, comment string, staffInfoID int) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/requestcomment/createrequestcomment?RequestProcessID=%d", id),
		map[string]any{"Comment": comment, "staffInforID": staffInfoID}, "comment on process")
}

// ApproveWorkflow sets the decision of one approval step
func (c *Client) ApproveWorkflow(ctx context.Context, approveID, status int) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPut, fmt.Sprintf("/workflow/updateworkflowisapprove?workFlowApproveID=%d", approveID),
		map[string]any{"IsApprove": status}, "update workflow approval")
}

// ForwardWorkflow hands a workflow to another staff member. The fixed path
// segment is part of the server route.
func (c *Client) ForwardWorkflow(ctx context.Context, id, staffID int) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPut, fmt.Sprintf("/workflow/forwardworkflow/4620?workFlowID=%d&userForwardID=%d", id, staffID),
		nil, "forward workflow")
}

// DepartmentStaff lists the staff a workflow can be forwarded to
func (c *Client) DepartmentStaff(ctx context.Context, departmentID int) ([]lookup.Item, error) {
	return c.list(ctx, fmt.Sprintf("/staff/getlistcompanystaffs?departmentID=%d", departmentID), RequestOptions{})
}
