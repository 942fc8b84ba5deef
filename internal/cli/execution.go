package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для просмотра executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Inspect executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
	)

	return cmd
}

var executionHeaders = []string{"ID", "DEVICE", "STATUS", "ATTEMPT", "TASK_REF", "UPDATED"}

func executionRow(e ExecutionResponse) []string {
	return []string{e.ID, e.DeviceID, e.Status, strconv.Itoa(e.Attempt), dash(e.TaskRef), e.UpdatedAt}
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execs, err := client.ListExecutions(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = executionRow(e)
			}

			out.Print(executionHeaders, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow-id", "", "Filter by workflow")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "Filter by device")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "Max rows")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}
}

// NewLogCmd создаёт команду просмотра журнала активности.
func NewLogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListLogOpts

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the orchestrator activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, err := client.ListActivityLog(opts)
			if err != nil {
				return err
			}

			headers := []string{"TIME", "LEVEL", "DEVICE", "MESSAGE"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.CreatedAt, e.Level, dash(e.DeviceID), e.Message}
			}

			out.Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.WorkflowID, "workflow-id", "", "Filter by workflow")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "Filter by device")
	cmd.Flags().StringVar(&opts.Level, "level", "", "Filter by level: info | warning | error")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "Max rows")

	return cmd
}
