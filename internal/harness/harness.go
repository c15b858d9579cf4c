package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
	"github.com/roach88/custody/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real engine with a manual clock and
// deterministic request ids.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	book   *ledger.Book
	clock  *testutil.ManualClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Build the config from defaults plus scenario overrides
// 2. Create a fresh in-memory store and a ledger seeded with the balances
// 3. Dispatch each step through engine.Invoke at its tick
// 4. Evaluate assertions
// 5. Return result with pass/fail, trace and errors
//
// A returned error means the scenario could not be executed at all; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario.Config)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	balances := make(map[chamber.AccountID]uint64, len(scenario.Balances))
	for id, v := range scenario.Balances {
		balances[chamber.AccountID(id)] = v
	}

	ctx := context.Background()
	h := &Harness{
		store:  st,
		book:   ledger.NewBook(balances),
		clock:  testutil.NewManualClock(0),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.engine, err = engine.New(ctx, st, h.book, h.clock, cfg,
		engine.WithRequestIDs(testutil.NewSequentialIDs(scenario.RequestIDPrefix)),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for id, v := range h.book.Balances() {
		result.Balances[string(id)] = v
	}

	actx := &AssertionContext{
		Store: st,
		Book:  h.book,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// scenarioConfig overlays the scenario's overrides on config.Default by
// round-tripping them through the YAML config decoder, so scenarios reject
// the same unknown keys a config file would.
func scenarioConfig(overrides map[string]any) (config.Config, error) {
	if len(overrides) == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(overrides)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode config overrides: %w", err)
	}
	cfg, err := config.ParseYAML(data)
	if err != nil {
		return config.Config{}, fmt.Errorf("config overrides: %w", err)
	}
	return cfg, nil
}

// executeSteps runs every step and checks its expectation.
//
// Each step:
// 1. Moves the clock to the step's tick (if given)
// 2. Invokes the operation by name
// 3. Records the committed event or the rejection in the trace
// 4. Compares the outcome with the expect clause
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		if step.Tick != nil {
			h.clock.Set(*step.Tick)
		}
		tick := h.clock.CurrentTick()

		ev, err := h.engine.Invoke(ctx, chamber.Op(step.Op), chamber.AccountID(step.Caller), engine.Args(step.Args))
		code := string(engine.CodeOf(err))
		if err != nil && code == "" {
			// Not a guard rejection: the store or a sink failed.
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}

		if err != nil {
			result.AddRejected(i, step.Op, step.Caller, tick, code, engine.ReasonOf(err))
		} else {
			result.AddCommitted(i, ev)
		}

		if msg := checkExpect(i, step, ev, err); msg != "" {
			result.AddError(msg)
		}

		h.logger.Info("step completed",
			"step", i,
			"op", step.Op,
			"caller", step.Caller,
			"tick", tick,
			"code", code,
		)
	}
	return nil
}

// checkExpect returns a failure message, or "" if the outcome matches.
func checkExpect(i int, step Step, ev audit.Event, err error) string {
	want := Expect{Code: CodeOK}
	if step.Expect != nil {
		want = *step.Expect
	}

	got := CodeOK
	if err != nil {
		got = string(engine.CodeOf(err))
	}
	if got != want.Code {
		return fmt.Sprintf("step %d (%s): expected %s, got %s: %v", i, step.Op, want.Code, got, err)
	}
	if want.Reason != "" && engine.ReasonOf(err) != want.Reason {
		return fmt.Sprintf("step %d (%s): expected reason %q, got %q", i, step.Op, want.Reason, engine.ReasonOf(err))
	}
	if err == nil && !matchFields(ev.Fields, want.Fields) {
		return fmt.Sprintf("step %d (%s): expected fields %v, got %v", i, step.Op, want.Fields, ev.Fields)
	}
	return ""
}
