package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asbelov/alepiz-sub006/internal/actions"
)

// ActionOptions holds flags for the action command.
type ActionOptions struct {
	*RootOptions
	Params string
}

// NewActionCommand creates the action command.
func NewActionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "action <name>",
		Short: "Apply a bulk action to events",
		Long: fmt.Sprintf(`Apply a bulk action to a set of events.

Actions: %s

Parameters are a JSON object; unknown fields are rejected. Use --params -
to read them from stdin.

Examples:
  alepiz-events action addAsComment --params '{"eventIDs":[1,2],"user":"ops","comment":"same rack"}'
  alepiz-events action disableEvents --params '{"eventIDs":[1],"user":"admin",
    "disableUntil":"2026-10-17T00:00:00Z","intervals":[{"from":0,"to":3600000}]}'`,
			strings.Join(actions.Names(), ", ")),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Params, "params", "", "action parameters as JSON, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("params")

	return cmd
}

func runAction(opts *ActionOptions, name string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	params, err := readParams(opts.Params, cmd.InOrStdin())
	if err != nil {
		return err
	}

	return withEngine(opts.RootOptions, cmd, func(ctx context.Context, svc *service) error {
		formatter.VerboseLog("action %s: %s", name, params)
		summary, err := svc.processor.Dispatch(ctx, name, params)
		if err != nil {
			return callError(formatter, err)
		}
		if formatter.Format == "json" {
			return formatter.Success(summary)
		}
		return formatter.Success(formatSummary(summary))
	})
}

// readParams validates the --params JSON.
func readParams(flag string, stdin io.Reader) (json.RawMessage, error) {
	data := []byte(flag)
	if flag == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read parameters from stdin", err)
		}
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, NewExitError(ExitCommandError, "invalid --params JSON")
	}
	return json.RawMessage(data), nil
}

func formatSummary(s actions.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d event(s), %d OCID(s)", s.Action, s.Events, s.OCIDs)
	if s.CommentID != 0 {
		fmt.Fprintf(&b, ", comment %d", s.CommentID)
	}
	if s.Hints != 0 {
		fmt.Fprintf(&b, ", %d hint(s)", s.Hints)
	}
	if s.Solved != 0 {
		fmt.Fprintf(&b, ", %d solved", s.Solved)
	}
	return b.String()
}
