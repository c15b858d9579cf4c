package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/audit"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayProblem is one integrity failure in the audit log.
type ReplayProblem struct {
	Seq     int64  `json:"seq"`
	Problem string `json:"problem"`
}

// ReplayResult holds the audit log verification result.
type ReplayResult struct {
	Events   int             `json:"events"`
	Valid    bool            `json:"valid"`
	Problems []ReplayProblem `json:"problems,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-read the audit log and verify its integrity",
		Long: `Re-read the audit log in sequence order and verify it.

Each event's id is recomputed from its canonical content and compared with
the stored id, and sequence numbers must run 1, 2, 3, ... without gaps.

Exit codes:
  0 - Audit log verified
  1 - Verification failed (id mismatch or sequence gap)
  2 - Command error (database not found, etc.)

Examples:
  custody replay --db ./custody.db
  custody replay --db ./custody.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	result := VerifyEvents(events)
	for _, p := range result.Problems {
		formatter.VerboseLog("seq %d: %s", p.Seq, p.Problem)
	}

	if !result.Valid {
		if err := formatter.Error(ErrCodeInvalidLog, "", fmt.Sprintf("%d problem(s) in %d events", len(result.Problems), result.Events), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "audit log verification failed")
	}
	return formatter.Success(result, fmt.Sprintf("✓ %d events verified", result.Events))
}

// VerifyEvents checks ids and sequence continuity of an ordered event list.
func VerifyEvents(events []audit.Event) ReplayResult {
	result := ReplayResult{Events: len(events), Valid: true}
	add := func(seq int64, format string, args ...any) {
		result.Valid = false
		result.Problems = append(result.Problems, ReplayProblem{Seq: seq, Problem: fmt.Sprintf(format, args...)})
	}

	for i, ev := range events {
		if want := int64(i + 1); ev.Seq != want {
			add(ev.Seq, "sequence gap: expected seq %d", want)
		}
		id, err := audit.EventID(ev)
		if err != nil {
			add(ev.Seq, "cannot recompute id: %v", err)
			continue
		}
		if id != ev.ID {
			add(ev.Seq, "id mismatch: stored %s, computed %s", ev.ID, id)
		}
	}
	return result
}
