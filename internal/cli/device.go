package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDeviceCmd создаёт группу команд для работы с инвентарём устройств.
func NewDeviceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Inspect the device inventory",
	}

	cmd.AddCommand(
		newDeviceListCmd(clientFn, outputFn),
		newDeviceShowCmd(clientFn, outputFn),
		newDeviceConnectCmd(clientFn, outputFn),
	)

	return cmd
}

var deviceHeaders = []string{"DEVICE_ID", "MANUFACTURER", "MODEL", "SW", "IP", "ONLINE"}

func deviceRow(d DeviceResponse) []string {
	return []string{
		d.DeviceID, d.Manufacturer, d.ProductClass,
		d.SoftwareVersion, d.IPAddress, strconv.FormatBool(d.Online),
	}
}

func newDeviceListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			devices, err := client.ListDevices()
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

func newDeviceShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show DEVICE_ID",
		Short: "Show device snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			device, err := client.GetDevice(args[0])
			if err != nil {
				return err
			}

			out.Print(deviceHeaders, [][]string{deviceRow(*device)}, device)
			return nil
		},
	}
}

func newDeviceConnectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "connect DEVICE_ID",
		Short: "Inject a device-connect event (for on_connect workflows)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.SendDeviceConnect(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Connect event accepted for %s", args[0]))
			return nil
		},
	}
}
