package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &client{}
	var verbose bool

	root := &cobra.Command{
		Use:           "quadsctl",
		Short:         "Manage clouds, hosts, schedules and interfaces through the quads API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := zap.NewDevelopmentConfig()
			if !verbose {
				cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
			}
			log, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			c.log = log
			c.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.base, "server", envOr("QUADS_SERVER", "http://localhost:8080"), "quads API base URL")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests")

	root.AddCommand(
		pingCmd(c),
		listCmd(c),
		saveCmd(c),
		deleteCmd(c),
		removeItemCmd(c),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
