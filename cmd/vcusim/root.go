package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "vcusim",
		Short: "Simulator for the VCU CAN mailbox core",
		Long: `vcusim registers inbound and outbound CAN mailboxes from a config file
and runs the periodic driver tick over a loopback or SocketCAN bus.

It can record all traffic to a CBOR trace and print traces back.`,
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default: ./vcusim.yaml, $VCUSIM_CONFIG)")
	root.AddCommand(newRunCmd(&cfgPath), newTraceCmd(), newVersionCmd())
	return root
}
