package main

import (
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/mechanic-dash/internal/config"
)

var (
	configPath string
	peerFlag   string
	demoFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "mechanicdash",
	Short: "Live vehicle telemetry gauges",
	Long: `mechanicdash reads CSV telemetry records from a paired peer and drives a
cluster of animated gauges (speed, rpm, load, temperature, fuel).

Peers:
  Serial / Bluetooth SPP:  --peer /dev/rfcomm0
  TCP:                     --peer tcp://192.168.0.10:35000
  WebSocket:               --peer ws://host/path
  Simulated:               --demo

The link reconnects on its own after any failure.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&peerFlag, "peer", "p", "", "Override the configured peer")
	rootCmd.PersistentFlags().BoolVar(&demoFlag, "demo", false, "Run against the simulated peer")

	rootCmd.AddCommand(serveCmd, tuiCmd, peersCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
