package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/freeoffice/fieldcam/internal/api"
)

func newWorkflowsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Browse and act on approval workflows",
	}

	cmd.AddCommand(newWorkflowListCmd(a))
	cmd.AddCommand(newProcessListCmd(a))
	cmd.AddCommand(newWorkflowShowCmd(a))
	cmd.AddCommand(newProcessShowCmd(a))
	cmd.AddCommand(newWorkflowApproveCmd(a))
	cmd.AddCommand(newWorkflowForwardCmd(a))
	cmd.AddCommand(newWorkflowCommentCmd(a))
	cmd.AddCommand(newStaffCmd(a))

	return cmd
}

func registerWorkflowSearch(cmd *cobra.Command, s *api.WorkflowSearch, withStatus bool) {
	flags := cmd.Flags()
	flags.StringVar(&s.Search, "search", "", "Search term")
	flags.IntVar(&s.Page, "page", 1, "Result page")
	flags.IntVar(&s.Limit, "limit", api.WorkflowListLimit, "Results per page")
	if withStatus {
		flags.IntVar(&s.Status, "status", api.StatusAll, "Status ID (-100 for every status)")
	}
}

func parseID(arg, what string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q", what, arg)
	}
	return id, nil
}

func newWorkflowListCmd(a *app) *cobra.Command {
	var search api.WorkflowSearch

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			items, err := c.Workflows(cmd.Context(), search)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), items)
		},
	}
	registerWorkflowSearch(cmd, &search, true)
	return cmd
}

func newProcessListCmd(a *app) *cobra.Command {
	var (
		search api.WorkflowSearch
		list   string
	)

	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List request processes",
		Example: `  # Requests waiting for my approval
  fieldcam workflows processes --list need-approval`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			items, err := c.Processes(cmd.Context(), api.ProcessList(list), search)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), items)
		},
	}
	registerWorkflowSearch(cmd, &search, true)
	cmd.Flags().StringVar(&list, "list", string(api.ProcessesAll), "Which processes: all, need-approval or created-by-me")
	return cmd
}

type workflowDetail struct {
	Workflow    any `yaml:"workflow"`
	Approvals   any `yaml:"approvals"`
	Comments    any `yaml:"comments"`
	Attachments any `yaml:"attachments"`
}

func newWorkflowShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show WORKFLOW_ID",
		Short: "Show a workflow with its approval steps, comments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "workflow")
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			workflow, err := c.Workflow(ctx, id)
			if err != nil {
				return err
			}
			approvals, err := c.WorkflowApprovals(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch approval steps: %w", err)
			}
			comments, err := c.WorkflowComments(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch comments: %w", err)
			}
			attachments, err := c.Attachments(ctx, 0, id)
			if err != nil {
				return fmt.Errorf("failed to fetch attachments: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), workflowDetail{
				Workflow:    decodeResponse(workflow),
				Approvals:   approvals,
				Comments:    comments,
				Attachments: attachments,
			})
		},
	}
}

type processDetail struct {
	Process     any `yaml:"process"`
	Comments    any `yaml:"comments"`
	Attachments any `yaml:"attachments"`
}

func newProcessShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process PROCESS_ID",
		Short: "Show a request process with its comments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "process")
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			process, err := c.Process(ctx, id)
			if err != nil {
				return err
			}
			comments, err := c.ProcessComments(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch comments: %w", err)
			}
			attachments, err := c.Attachments(ctx, id, 0)
			if err != nil {
				return fmt.Errorf("failed to fetch attachments: %w", err)
			}
			return printYAML(cmd.OutOrStdout(), processDetail{
				Process:     decodeResponse(process),
				Comments:    comments,
				Attachments: attachments,
			})
		},
	}
}

func newWorkflowApproveCmd(a *app) *cobra.Command {
	var status int

	cmd := &cobra.Command{
		Use:   "approve APPROVE_ID",
		Short: "Record a decision on one approval step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "approval step")
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			resp, err := c.ApproveWorkflow(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), decodeResponse(resp))
		},
	}
	cmd.Flags().IntVar(&status, "status", 1, "Decision status ID")
	return cmd
}

func newWorkflowForwardCmd(a *app) *cobra.Command {
	var staff int

	cmd := &cobra.Command{
		Use:   "forward WORKFLOW_ID",
		Short: "Forward a workflow to another staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "workflow")
			if err != nil {
				return err
			}
			if staff <= 0 {
				return fmt.Errorf("--staff is required")
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			resp, err := c.ForwardWorkflow(cmd.Context(), id, staff)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), decodeResponse(resp))
		},
	}
	cmd.Flags().IntVar(&staff, "staff", 0, "Staff ID to forward to (see workflows staff)")
	return cmd
}

func newWorkflowCommentCmd(a *app) *cobra.Command {
	var process bool

	cmd := &cobra.Command{
		Use:   "comment ID MESSAGE",
		Short: "Comment on a workflow, or on a request process with --process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "workflow"
			if process {
				what = "process"
			}
			id, err := parseID(args[0], what)
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}

			var resp json.RawMessage
			if process {
				staffInfo := 0
				if user := c.User(); user.StaffInfoID != nil {
					staffInfo = *user.StaffInfoID
				}
				resp, err = c.CommentProcess(cmd.Context(), id, args[1], staffInfo)
			} else {
				resp, err = c.CommentWorkflow(cmd.Context(), id, args[1])
			}
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), decodeResponse(resp))
		},
	}
	cmd.Flags().BoolVar(&process, "process", false, "ID is a request process")
	return cmd
}

func newStaffCmd(a *app) *cobra.Command {
	var department int

	cmd := &cobra.Command{
		Use:   "staff",
		Short: "List the staff of a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if department <= 0 {
				if user := c.User(); user.DepartmentID != nil {
					department = *user.DepartmentID
				}
			}
			if department <= 0 {
				return fmt.Errorf("--department is required when the session has no department")
			}
			items, err := c.DepartmentStaff(cmd.Context(), department)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().IntVar(&department, "department", 0, "Department ID (default from the session)")
	return cmd
}
