package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/debugbridge/internal/client"
	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
	"github.com/GriffinCanCode/debugbridge/internal/host/headless"
)

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Check the connection to the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.CheckVersion(h.Version); err != nil {
				return err
			}
			return a.printer.Print(map[string]string{
				"status":  h.Status,
				"version": h.Version,
				"url":     a.client.BaseURL(),
			})
		},
	}
}

func newScreenshotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "screenshot [path]",
		Short: "Capture the window as an image",
		Long:  "Writes the image to path, or raw to stdout for piping when no path is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, contentType, err := a.client.Screenshot(cmd.Context(), a.opts.Window)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fmt.Errorf("write screenshot: %w", err)
			}
			a.logger.Debug("Screenshot written", "path", args[0], "bytes", len(data), "type", contentType)
			return a.printer.Done("Screenshot saved to %s", args[0])
		},
	}
}

func newSnapshotCmd(a *app) *cobra.Command {
	var (
		interactive bool
		file        string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the accessibility tree with element refs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				resp, err := walkFile(file)
				if err != nil {
					return err
				}
				if interactive {
					resp = resp.InteractiveOnly()
				}
				return a.printer.Print(resp)
			}

			resp, err := a.client.Snapshot(cmd.Context(), a.opts.Window, interactive)
			if err != nil {
				return err
			}
			return a.printer.Print(resp)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Only show interactive elements")
	cmd.Flags().StringVar(&file, "file", "", "Walk a local HTML file instead of asking the bridge")
	return cmd
}

// walkFile snapshots an HTML file without a running bridge
func walkFile(path string) (snapshot.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot.Response{}, err
	}
	if len(data) > headless.MaxPageSize {
		return snapshot.Response{}, fmt.Errorf("%s exceeds %d bytes", path, headless.MaxPageSize)
	}
	doc, err := headless.Parse(data)
	if err != nil {
		return snapshot.Response{}, fmt.Errorf("parse %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return snapshot.Walk(doc, snapshot.Options{URL: "file://" + filepath.ToSlash(abs)}), nil
}

func newClickCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "click <selector>",
		Short: "Click an element by @ref, xpath= expression or CSS selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := a.client.Click(cmd.Context(), a.target(), args[0])
			if err != nil {
				return err
			}
			return a.outcome(o.Success, o.Value, o.Error)
		},
	}
}

func newFillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fill <selector> <text>",
		Short: "Set the value of an input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := a.client.Fill(cmd.Context(), a.target(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.outcome(o.Success, o.Value, o.Error)
		},
	}
}

func newRunJSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run-js <code|->",
		Short: "Evaluate JavaScript in the window",
		Long:  "Evaluates code in the window and prints its value. Pass - to read the code from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			if code == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				code = string(data)
			}
			o, err := a.client.Eval(cmd.Context(), a.target(), code)
			if err != nil {
				return err
			}
			return a.outcome(o.Success, o.Value, o.Error)
		},
	}
}

func newInvokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <command> [args-json]",
		Short: "Call an application command",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if len(args) == 2 {
				var err error
				if payload, err = jsonArg("args", args[1]); err != nil {
					return err
				}
			}
			o, err := a.client.Invoke(cmd.Context(), a.target(), args[0], payload)
			if err != nil {
				return err
			}
			return a.outcome(o.Success, o.Value, o.Error)
		},
	}
}

// jsonArg rejects arguments that are not JSON before they reach the bridge
func jsonArg(name, s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("%s is not valid JSON: %s", name, s)
	}
	return json.RawMessage(s), nil
}

func newStateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Dump the application state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := a.client.State(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.Print(state)
		},
	}
}

func newCommandsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List application commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := a.client.Commands(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.Print(cmds)
		},
	}
}

func newWindowsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List open windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			windows, err := a.client.Windows(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.Print(windows)
		},
	}
}

func newEventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Emit, list and listen to application events",
	}

	emit := &cobra.Command{
		Use:   "emit <name> [payload-json]",
		Short: "Emit an event",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if len(args) == 2 {
				var err error
				if payload, err = jsonArg("payload", args[1]); err != nil {
					return err
				}
			}
			if err := a.client.Emit(cmd.Context(), args[0], payload); err != nil {
				return err
			}
			return a.printer.Done("Emitted %s", args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List events seen since the bridge started",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.client.EventNames(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.Print(names)
		},
	}

	listen := &cobra.Command{
		Use:   "listen <name>",
		Short: "Stream payloads of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, client.StreamEvents, map[string][]string{"name": {args[0]}})
		},
	}

	cmd.AddCommand(emit, list, listen)
	return cmd
}
