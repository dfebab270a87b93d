package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/debugbridge/internal/cli/output"
	"github.com/GriffinCanCode/debugbridge/internal/client"
)

// errReported means the failure was already printed
var errReported = errors.New("reported")

// app is the state shared by every subcommand
type app struct {
	opts    globalOptions
	logger  *log.Logger
	client  *client.Client
	printer *output.Printer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{logger: log.NewWithOptions(stderr, log.Options{Prefix: "bridgectl"})}

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			a.logger.Error(err)
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Drive a webview through its debug bridge",
		Long:          "Evaluates scripts, clicks and fills elements, takes snapshots and screenshots, and streams console, log and event output from a running debug bridge.",
		Version:       client.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.opts.URL, "url", "", "Bridge base URL (overrides --port and discovery)")
	pf.IntVarP(&a.opts.Port, "port", "p", 0, "Bridge port (overrides discovery)")
	pf.StringVarP(&a.opts.Token, "token", "t", "", "Auth token (overrides discovery and "+TokenEnv+")")
	pf.StringVarP(&a.opts.App, "app", "a", "", "App id whose discovery file to use")
	pf.StringVar(&a.opts.DiscoveryDir, "discovery-dir", "", "Directory holding discovery files")
	pf.StringVarP(&a.opts.Output, "output", "o", string(output.Text), "Output format: text, json or yaml")
	pf.StringVarP(&a.opts.Window, "window", "w", "", "Target window label (default main)")
	pf.DurationVar(&a.opts.Timeout, "timeout", 0, "Call timeout, or how long a stream runs (default per operation, streams until interrupted)")
	pf.StringVar(&a.opts.Config, "config", defaultSettingsPath(), "Settings file")
	pf.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "Log diagnostics to stderr")

	root.AddCommand(
		newConnectCmd(a),
		newScreenshotCmd(a),
		newSnapshotCmd(a),
		newClickCmd(a),
		newFillCmd(a),
		newRunJSCmd(a),
		newInvokeCmd(a),
		newStateCmd(a),
		newCommandsCmd(a),
		newWindowsCmd(a),
		newEventsCmd(a),
		newConsoleCmd(a),
		newErrorsCmd(a),
		newLogsCmd(a),
	)
	return root
}

// setup merges settings and builds the client and printer
func (a *app) setup(cmd *cobra.Command) error {
	if a.opts.Verbose {
		a.logger.SetLevel(log.DebugLevel)
	}

	s, err := loadSettings(a.opts.Config)
	if err != nil {
		return err
	}
	a.opts.merge(s, cmd.Flags().Changed, os.Getenv)

	format, err := output.ParseFormat(a.opts.Output)
	if err != nil {
		return err
	}
	a.printer = output.New(cmd.OutOrStdout(), format)

	conn, err := a.opts.resolve()
	if err != nil {
		return err
	}
	a.logger.Debug("Resolved bridge", "url", conn.BaseURL, "source", conn.Source, "token", conn.Token != "")

	a.client = client.New(client.Options{
		BaseURL: conn.BaseURL,
		Token:   conn.Token,
		Retries: 2,
	})
	return nil
}

// target is the window and timeout for calls
func (a *app) target() client.Target {
	return client.Target{Window: a.opts.Window, Timeout: a.opts.Timeout}
}

// outcome prints a call result and turns a sandbox failure into exit 1
func (a *app) outcome(success bool, value json.RawMessage, errText *string) error {
	ok, err := a.printer.Outcome(success, value, errText)
	if err != nil {
		return err
	}
	if !ok {
		return errReported
	}
	return nil
}

// streamContext ends when the user interrupts or, with --timeout, when
// the timeout passes
func (a *app) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.Timeout > 0 {
		return context.WithTimeout(ctx, a.opts.Timeout)
	}
	return context.WithCancel(ctx)
}
