package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/engine"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Database string
	Ledger   string
	Config   string
	Caller   string
	Tick     uint64
	Args     string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	return newInvokeCommand(rootOpts)
}

// newInvokeCommand passes engOpts to the engine of every invocation.
func newInvokeCommand(rootOpts *RootOptions, engOpts ...engine.Option) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <operation>",
		Short: "Run one engine operation",
		Long: `Run one engine operation against the database and ledger file.

Arguments are a JSON object with the operation's named arguments. The ledger
file holds account balances and is rewritten after a committed operation.

Exit codes:
  0 - Operation committed
  1 - Operation rejected by the engine
  2 - Command error (bad flags, unreadable files, etc.)

Operations:
  ` + strings.Join(operationNames(), "\n  ") + `

Example:
  custody invoke create-vault --db ./custody.db --ledger ./ledger.yaml \
    --caller alice --tick 10 --args '{"beneficiary":"bob","quantity":400,"duration":50}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeOperation(opts, args[0], cmd, engOpts...)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to ledger YAML file")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to config file (.yaml or .cue)")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "authenticated caller account (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().Uint64Var(&opts.Tick, "tick", 0, "host clock tick for the operation")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "operation arguments as JSON")

	return cmd
}

func invokeOperation(opts *InvokeOptions, op string, cmd *cobra.Command, engOpts ...engine.Option) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	args, err := parseArgs(opts.Args)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, "", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts.Database, opts.Ledger, opts.Config, opts.Tick, opts.Verbose, cmd.ErrOrStderr(), engOpts...)
	if err != nil {
		return err
	}
	defer s.close()

	formatter.VerboseLog("invoking %s as %s at tick %d", op, opts.Caller, opts.Tick)
	ev, err := s.engine.Invoke(ctx, chamber.Op(op), chamber.AccountID(opts.Caller), args)
	if err != nil && engine.Committed(err) {
		// The record change and the transfers are in; keep the ledger file
		// in step before reporting the audit failure.
		if saveErr := s.save(); saveErr != nil {
			return saveErr
		}
		_ = formatter.Error(ErrCodeInvalidLog, "", err.Error(), nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s committed but its audit event failed", op), err)
	}
	if err != nil {
		if engine.CodeOf(err) == "" {
			// Store failure, not a rejection.
			return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", op), err)
		}
		return formatter.Rejection(err)
	}

	if err := s.save(); err != nil {
		return err
	}
	return formatter.Success(viewEvent(ev), formatEvent(ev))
}

// parseArgs decodes a JSON object keeping numbers exact.
func parseArgs(raw string) (engine.Args, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid --args JSON: %w", err)
	}
	if args == nil {
		return nil, fmt.Errorf("invalid --args JSON: want an object")
	}
	return engine.Args(args), nil
}

func operationNames() []string {
	ops := engine.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}
	return names
}
