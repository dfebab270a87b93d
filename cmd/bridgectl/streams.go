package main

import (
	"context"
	"errors"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/debugbridge/internal/client"
)

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Stream console output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, client.StreamConsole, nil)
		},
	}
}

func newErrorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "Stream console errors, uncaught exceptions and rejections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, client.StreamErrors, nil)
		},
	}
}

func newLogsCmd(a *app) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream the bridge's own logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, client.StreamLogs, url.Values{"level": {level}})
		},
	}
	cmd.Flags().StringVar(&level, "level", "info", "Minimum log level")
	return cmd
}

// stream prints every message until interrupted. Interrupting is a
// normal exit.
func (a *app) stream(cmd *cobra.Command, path string, query url.Values) error {
	ctx, cancel := a.streamContext(cmd.Context())
	defer cancel()

	a.logger.Debug("Streaming", "path", path, "query", query.Encode())
	err := a.client.Stream(ctx, path, query, a.printer.Stream)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
