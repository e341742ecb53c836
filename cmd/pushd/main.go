// Command pushd delivers queued push notifications to registered devices and
// serves the device registry API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pushd",
		Short:         "Push notification delivery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newProcessCmd(&configPath),
	)
	return root
}
