// FleetACS CLI — инструмент командной строки для управления
// группами устройств и workflow через HTTP API.
//
// Использование:
//
//	fleetacs [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	group      Управление группами устройств
//	workflow   Управление workflow
//	execution  Просмотр executions
//	device     Инвентарь устройств
//	log        Журнал активности оркестратора
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcelg7/fleetacs/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "fleetacs",
		Short:         "FleetACS CLI — CPE fleet orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewGroupCmd(clientFn, outputFn),
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewDeviceCmd(clientFn, outputFn),
		cli.NewLogCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
