package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [chamber-id]",
		Short: "Show chamber records",
		Long: `Show one chamber record, or every record when no id is given.

Examples:
  custody show 3 --db ./custody.db
  custody show --db ./custody.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 0 {
		chambers, err := st.List(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list chambers", err)
		}
		lines := make([]string, len(chambers))
		for i, c := range chambers {
			lines[i] = formatChamber(c)
		}
		if len(lines) == 0 {
			return formatter.Success(chambers, "No chambers.")
		}
		return formatter.Success(chambers, strings.Join(lines, "\n"))
	}

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, "", fmt.Sprintf("invalid chamber id %q", args[0]), nil)
		return WrapExitError(ExitCommandError, "invalid chamber id", err)
	}

	c, err := st.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error("NOT_FOUND", "", fmt.Sprintf("chamber %d not found", id), nil)
		return WrapExitError(ExitFailure, "chamber not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read chamber", err)
	}
	return formatter.Success(c, formatChamber(c))
}

func formatChamber(c chamber.Chamber) string {
	return fmt.Sprintf("#%d %s %s -> %s item=%d quantity=%d ticks=[%d, %d]",
		c.ID, c.Status, c.Initiator, c.Beneficiary, c.ItemID, c.Quantity, c.CreatedAt, c.ExpiresAt)
}
