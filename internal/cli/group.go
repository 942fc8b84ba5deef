package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewGroupCmd создаёт группу команд для управления группами устройств.
func NewGroupCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage device groups",
	}

	cmd.AddCommand(
		newGroupListCmd(clientFn, outputFn),
		newGroupCreateCmd(clientFn, outputFn),
		newGroupShowCmd(clientFn, outputFn),
		newGroupUpdateCmd(clientFn, outputFn),
		newGroupDeleteCmd(clientFn, outputFn),
		newGroupDevicesCmd(clientFn, outputFn),
	)

	return cmd
}

func groupRow(g GroupResponse) []string {
	return []string{
		g.ID, g.Name, g.MatchType,
		strconv.Itoa(len(g.Rules)),
		strconv.FormatBool(g.IsActive),
		strconv.Itoa(g.Priority),
	}
}

var groupHeaders = []string{"ID", "NAME", "MATCH", "RULES", "ACTIVE", "PRIORITY"}

func newGroupListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all device groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			groups, err := client.ListGroups()
			if err != nil {
				return err
			}

			rows := make([][]string, len(groups))
			for i, g := range groups {
				rows[i] = groupRow(g)
			}

			out.Print(groupHeaders, rows, groups)
			return nil
		},
	}
}

func newGroupCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, matchType, rulesJSON string
	var priority int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new device group",
		Long: `Create a new device group.

Rules are passed as a JSON array:

  fleetacs group create --name calix-fleet \
    --rules '[{"field":"manufacturer","operator":"equals","value":"Calix","order":0}]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var rules []RuleRequest
			if rulesJSON != "" {
				if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
					return fmt.Errorf("invalid --rules JSON: %w", err)
				}
			}

			group, err := client.CreateGroup(CreateGroupRequest{
				Name:      name,
				MatchType: matchType,
				Rules:     rules,
				Priority:  priority,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Group created: %s", group.ID))
			out.Print(groupHeaders, [][]string{groupRow(*group)}, group)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Group name (required)")
	cmd.Flags().StringVar(&matchType, "match-type", "all", "Rule combination: all | any")
	cmd.Flags().StringVar(&rulesJSON, "rules", "", "Membership rules as JSON array")
	cmd.Flags().IntVar(&priority, "priority", 0, "Processing priority (higher first)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newGroupShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show group details with rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			group, err := client.GetGroup(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(group)
				return nil
			}

			out.Table(groupHeaders, [][]string{groupRow(*group)})
			if len(group.Rules) > 0 {
				fmt.Println()
				rows := make([][]string, len(group.Rules))
				for i, r := range group.Rules {
					rows[i] = []string{strconv.Itoa(r.Order), r.Field, r.Operator, r.Value}
				}
				out.Table([]string{"ORDER", "FIELD", "OPERATOR", "VALUE"}, rows)
			}
			return nil
		},
	}
}

func newGroupUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, matchType, rulesJSON string
	var priority int
	var active bool

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a device group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var req UpdateGroupRequest
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("match-type") {
				req.MatchType = &matchType
			}
			if cmd.Flags().Changed("priority") {
				req.Priority = &priority
			}
			if cmd.Flags().Changed("active") {
				req.IsActive = &active
			}
			if cmd.Flags().Changed("rules") {
				var rules []RuleRequest
				if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
					return fmt.Errorf("invalid --rules JSON: %w", err)
				}
				req.Rules = &rules
			}

			group, err := client.UpdateGroup(args[0], req)
			if err != nil {
				return err
			}

			out.Success("Group updated")
			out.Print(groupHeaders, [][]string{groupRow(*group)}, group)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New group name")
	cmd.Flags().StringVar(&matchType, "match-type", "", "Rule combination: all | any")
	cmd.Flags().StringVar(&rulesJSON, "rules", "", "Replacement rules as JSON array")
	cmd.Flags().IntVar(&priority, "priority", 0, "Processing priority")
	cmd.Flags().BoolVar(&active, "active", true, "Whether the group participates in orchestration")

	return cmd
}

func newGroupDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a group with its workflows and executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteGroup(args[0]); err != nil {
				return err
			}

			out.Success("Group deleted")
			return nil
		},
	}
}

func newGroupDevicesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "devices ID",
		Short: "Preview devices currently matching the group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			devices, err := client.PreviewGroupDevices(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(devices))
			for i, d := range devices {
				rows[i] = deviceRow(d)
			}

			out.Print(deviceHeaders, rows, devices)
			return nil
		},
	}
}
