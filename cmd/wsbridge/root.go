package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "wsbridge",
		Short:         "Bridge a device WebSocket to SSE/HTTP or stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (default ./wsbridge.toml)")
	flags.StringVar(&ctx.overrides.URL, "url", "", "Upstream device WebSocket URL")
	flags.StringVar(&ctx.overrides.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newHTTPCommand(ctx))
	rootCmd.AddCommand(newStdioCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
