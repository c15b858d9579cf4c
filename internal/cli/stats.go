package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/audit"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
}

// ActionStats are the counters for one action.
type ActionStats struct {
	Action   string  `json:"action"`
	Events   float64 `json:"events"`
	Released float64 `json:"released"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the audit log per action",
		Long: `Feed the stored audit log through the metrics sink and print, per action,
the number of events and the total quantity released from custody.

Example:
  custody stats --db ./custody.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	stats, err := CollectStats(ctx, events)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect metrics", err)
	}

	lines := make([]string, len(stats))
	for i, s := range stats {
		lines[i] = fmt.Sprintf("%-28s events=%.0f released=%.0f", s.Action, s.Events, s.Released)
	}
	if len(lines) == 0 {
		return formatter.Success(stats, "No events.")
	}
	return formatter.Success(stats, strings.Join(lines, "\n"))
}

// CollectStats replays events into a private registry and reads the
// counters back, sorted by action.
func CollectStats(ctx context.Context, events []audit.Event) ([]ActionStats, error) {
	reg := prometheus.NewRegistry()
	sink, err := audit.NewMetricsSink(reg)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := sink.Emit(ctx, ev); err != nil {
			return nil, err
		}
	}

	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	byAction := make(map[string]*ActionStats)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var action string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "action" {
					action = lp.GetValue()
				}
			}
			s, ok := byAction[action]
			if !ok {
				s = &ActionStats{Action: action}
				byAction[action] = s
			}
			switch mf.GetName() {
			case "custody_audit_events_total":
				s.Events = m.GetCounter().GetValue()
			case "custody_released_quantity_total":
				s.Released = m.GetCounter().GetValue()
			}
		}
	}

	out := make([]ActionStats, 0, len(byAction))
	for _, s := range byAction {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out, nil
}
