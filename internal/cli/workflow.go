package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowActionCmd(clientFn, outputFn, "activate", "Activate a draft workflow"),
		newWorkflowActionCmd(clientFn, outputFn, "pause", "Pause an active workflow"),
		newWorkflowActionCmd(clientFn, outputFn, "resume", "Resume a paused workflow"),
		newWorkflowActionCmd(clientFn, outputFn, "cancel", "Cancel a workflow"),
		newWorkflowRetryFailedCmd(clientFn, outputFn),
		newWorkflowProgressCmd(clientFn, outputFn),
	)

	return cmd
}

var workflowHeaders = []string{"ID", "NAME", "TASK", "SCHEDULE", "STATUS", "CREATED"}

func workflowRow(w WorkflowResponse) []string {
	return []string{w.ID, w.Name, w.TaskType, w.ScheduleType, w.Status, w.CreatedAt}
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var groupID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows(groupID)
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = workflowRow(w)
			}

			out.Print(workflowHeaders, rows, workflows)
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group-id", "", "Filter by device group")

	return cmd
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateWorkflowRequest
	var paramsJSON, scheduleJSON string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow (in DRAFT status)",
		Long: `Create a workflow targeting a device group.

The workflow is created in DRAFT status and must be activated to run:

  fleetacs workflow create --group-id GROUP --name fw-upgrade \
    --task-type download --parameters '{"url":"http://fw/9.7.img"}' \
    --schedule-type recurring \
    --schedule-config '{"days":["monday"],"start_time":"02:00","end_time":"05:00","timezone":"America/Chicago"}' \
    --rate-limit 50 --retry-count 2 --stop-on-failure 25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &req.Parameters); err != nil {
					return fmt.Errorf("invalid --parameters JSON: %w", err)
				}
			}
			if scheduleJSON != "" {
				if err := json.Unmarshal([]byte(scheduleJSON), &req.ScheduleConfig); err != nil {
					return fmt.Errorf("invalid --schedule-config JSON: %w", err)
				}
			}

			wf, err := client.CreateWorkflow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.GroupID, "group-id", "", "Target device group (required)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Workflow name (required)")
	cmd.Flags().StringVar(&req.TaskType, "task-type", "", "Task type for the dispatcher (required)")
	cmd.Flags().StringVar(&paramsJSON, "parameters", "", "Task parameters as JSON object")
	cmd.Flags().StringVar(&req.ScheduleType, "schedule-type", "immediate", "immediate | scheduled | recurring | on_connect")
	cmd.Flags().StringVar(&scheduleJSON, "schedule-config", "", "Schedule config as JSON object")
	cmd.Flags().IntVar(&req.RateLimit, "rate-limit", 0, "Max enqueues per sliding hour (0 = unlimited)")
	cmd.Flags().IntVar(&req.MaxConcurrent, "max-concurrent", 0, "Max open tasks (0 = unlimited)")
	cmd.Flags().IntVar(&req.RetryCount, "retry-count", 0, "Retries after first failure")
	cmd.Flags().IntVar(&req.RetryDelayMinutes, "retry-delay", 0, "Minutes between retries")
	cmd.Flags().IntVar(&req.StopOnFailurePercent, "stop-on-failure", 0, "Circuit breaker threshold percent (0 = off)")
	cmd.Flags().BoolVar(&req.RunOncePerDevice, "run-once", false, "At most one run per device, ever")
	cmd.Flags().StringVar(&req.DependsOnWorkflowID, "depends-on", "", "Workflow that must complete per device first")
	cmd.MarkFlagRequired("group-id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("task-type")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var withExecutions bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			if !withExecutions {
				out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
				return nil
			}

			execs, err := client.ListExecutions(ListExecutionsOpts{WorkflowID: wf.ID})
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(map[string]any{"workflow": wf, "executions": execs})
				return nil
			}

			out.Table(workflowHeaders, [][]string{workflowRow(*wf)})
			fmt.Println()
			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = executionRow(e)
			}
			out.Table(executionHeaders, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withExecutions, "executions", false, "Include per-device executions")

	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow with its executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteWorkflow(args[0]); err != nil {
				return err
			}

			out.Success("Workflow deleted")
			return nil
		},
	}
}

func newWorkflowActionCmd(clientFn func() *Client, outputFn func() *Output, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var wf *WorkflowResponse
			var err error
			switch action {
			case "activate":
				wf, err = client.ActivateWorkflow(args[0])
			case "pause":
				wf, err = client.PauseWorkflow(args[0])
			case "resume":
				wf, err = client.ResumeWorkflow(args[0])
			case "cancel":
				wf, err = client.CancelWorkflow(args[0])
			}
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow %s: status is now %s", args[0], wf.Status))
			out.Print(workflowHeaders, [][]string{workflowRow(*wf)}, wf)
			return nil
		},
	}
}

func newWorkflowRetryFailedCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed ID",
		Short: "Re-arm all failed executions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.RetryFailed(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Re-armed %d failed executions", result.Rearmed))
			if out.jsonMode {
				out.JSON(result)
			}
			return nil
		},
	}
}

func newWorkflowProgressCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "progress ID",
		Short: "Show execution counts by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetProgress(args[0])
			if err != nil {
				return err
			}

			headers := []string{"PENDING", "QUEUED", "IN_PROGRESS", "COMPLETED", "FAILED", "SKIPPED", "CANCELLED", "TOTAL"}
			row := []string{
				strconv.Itoa(p.Pending), strconv.Itoa(p.Queued), strconv.Itoa(p.InProgress),
				strconv.Itoa(p.Completed), strconv.Itoa(p.Failed), strconv.Itoa(p.Skipped),
				strconv.Itoa(p.Cancelled), strconv.Itoa(p.Total),
			}

			out.Print(headers, [][]string{row}, p)
			return nil
		},
	}
}
