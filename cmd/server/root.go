package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "city-sim-stream",
	Short:         "Tick-based synthetic city state generator",
	Long:          "city-sim-stream generates coherent hourly city state (weather, events, traffic) for configured cities and serves it over HTTP and websockets.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the selected subcommand.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}

func setupLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
