package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/server"
)

type flags struct {
	host     string
	port     int
	mode     string
	pages    string
	appID    string
	token    string
	natsURL  string
	dev      bool
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "debugbridge",
		Short:         "Debug bridge for webview applications",
		Long:          "Serves eval, click, fill, snapshot and event streams for a headless or remotely connected webview.",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			applyFlags(cmd, cfg, f)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}

			srv, err := server.NewServer(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				return err
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.host, "addr", "", "Listen address (default 127.0.0.1)")
	fl.IntVar(&f.port, "port", 0, "Listen port (default 9229, 0 picks a free one)")
	fl.StringVar(&f.mode, "mode", "", "Host mode: headless or remote")
	fl.StringVar(&f.pages, "pages", "", "Directory of HTML pages for the headless host")
	fl.StringVar(&f.appID, "app-id", "", "Application id used for the discovery file")
	fl.StringVar(&f.token, "token", "", "Fixed auth token instead of a generated one")
	fl.StringVar(&f.natsURL, "nats", "", "Mirror relay streams to this NATS server")
	fl.BoolVar(&f.dev, "dev", false, "Development logging (console encoder, debug level, token logged)")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	return cmd
}

// applyFlags lets explicitly set flags override the environment
func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.Host = f.host
	}
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("mode") {
		cfg.Host.Mode = f.mode
	}
	if changed("pages") {
		cfg.Host.Headless.Dir = f.pages
	}
	if changed("app-id") {
		cfg.Server.AppID = f.appID
	}
	if changed("token") {
		cfg.Auth.Token = f.token
	}
	if changed("nats") {
		cfg.NATS.URL = f.natsURL
	}
	if changed("dev") && f.dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
}
