package harness

import "github.com/roach88/custody/internal/audit"

// TraceEvent records the outcome of one step.
// A committed step carries its audit event; a rejected one its error code.
type TraceEvent struct {
	Step   int    `json:"step"`
	Op     string `json:"op"`
	Caller string `json:"caller"`
	Tick   uint64 `json:"tick"`

	// Set when the step committed.
	Seq       int64        `json:"seq,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Fields    audit.Fields `json:"fields,omitempty"`

	// Set when the step was rejected.
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Committed reports whether the step produced an audit event.
func (e TraceEvent) Committed() bool {
	return e.Code == ""
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one entry per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Balances is the final ledger state.
	Balances map[string]uint64 `json:"balances,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Balances: make(map[string]uint64),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCommitted adds a committed step to the trace.
func (r *Result) AddCommitted(step int, ev audit.Event) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:      step,
		Op:        ev.Action,
		Caller:    ev.Caller,
		Tick:      ev.Tick,
		Seq:       ev.Seq,
		RequestID: ev.RequestID,
		Fields:    ev.Fields,
	})
}

// AddRejected adds a rejected step to the trace.
func (r *Result) AddRejected(step int, op, caller string, tick uint64, code, reason string) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:   step,
		Op:     op,
		Caller: caller,
		Tick:   tick,
		Code:   code,
		Reason: reason,
	})
}
