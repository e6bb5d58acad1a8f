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
		Use:           "vibe",
		Short:         "Scaffold websites from a prompt",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "config file (.json or .yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newParseCmd(),
		newBuildCmd(),
	)
	return root
}
