package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/audit"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Chamber  uint64 // optional - one chamber's events only
	Action   string // optional - filter by action
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the audit log",
		Long: `Print the audit log in sequence order.

With --chamber only events whose chamber_id field matches are shown. Events
that create chambers through fragment or merge carry the new or source ids
in list fields and are reported under the chamber named in chamber_id.

Examples:
  custody trace --db ./custody.db
  custody trace --db ./custody.db --chamber 3
  custody trace --db ./custody.db --action finalize --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Uint64Var(&opts.Chamber, "chamber", 0, "show events for one chamber id")
	cmd.Flags().StringVar(&opts.Action, "action", "", "show events for one action")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var events []audit.Event
	if opts.Chamber != 0 {
		events, err = st.ReadChamberEvents(ctx, opts.Chamber)
	} else {
		events, err = st.ReadEvents(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	views := make([]eventView, 0, len(events))
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		if opts.Action != "" && ev.Action != opts.Action {
			continue
		}
		views = append(views, viewEvent(ev))
		lines = append(lines, formatEvent(ev))
	}

	formatter.VerboseLog("%d of %d events shown", len(views), len(events))
	if len(lines) == 0 {
		return formatter.Success(views, "No events.")
	}
	return formatter.Success(views, strings.Join(lines, "\n"))
}
