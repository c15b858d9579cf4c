// Package control implements the guardian control surface: panic mode,
// circuit breakers, frequency limits and scheduled operations.
//
// Every call is guardian-only, validates its own parameters and yields the
// audit fields the engine emits. Once the event is in the audit log the engine
// folds it into the register with Apply, so the register and a Restore from
// the log always agree. No lifecycle guard reads it: the signals are
// advisory and enforcement, if any, belongs to whoever consumes the audit log.
package control

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/config"
)

// Panic reasons accepted by SetPanicMode.
const (
	ReasonSecurityIncident = "security-incident"
	ReasonOracleFailure    = "oracle-failure"
	ReasonGovernanceAction = "governance-action"
	ReasonMaintenance      = "maintenance"
)

// Operation types accepted by ScheduleOperation.
const (
	ScheduleFeeUpdate        = "fee-update"
	ScheduleGuardianRotation = "guardian-rotation"
	ScheduleParameterChange  = "parameter-change"
	ScheduleEmergencyRelease = "emergency-release"
)

// MaxCallsLimit is the upper bound for a frequency limit's max_calls.
const MaxCallsLimit = 1000

var panicReasons = map[string]bool{
	ReasonSecurityIncident: true,
	ReasonOracleFailure:    true,
	ReasonGovernanceAction: true,
	ReasonMaintenance:      true,
}

var scheduleTypes = map[string]bool{
	ScheduleFeeUpdate:        true,
	ScheduleGuardianRotation: true,
	ScheduleParameterChange:  true,
	ScheduleEmergencyRelease: true,
}

// Event field names.
const (
	FieldEnabled       = "enabled"
	FieldReason        = "reason"
	FieldOperation     = "operation"
	FieldCooldown      = "cooldown"
	FieldJustification = "justification"
	FieldResetsAt      = "resets_at"
	FieldMaxCalls      = "max_calls"
	FieldWindow        = "window"
	FieldOperationType = "operation_type"
	FieldExecuteAt     = "execute_at"
	FieldScheduleID    = "schedule_id"
)

// Breaker is a tripped circuit breaker.
type Breaker struct {
	Cooldown      uint64 `json:"cooldown"`
	TrippedAt     uint64 `json:"tripped_at"`
	ResetsAt      uint64 `json:"resets_at"`
	Justification string `json:"justification"`
}

// Limit is a configured frequency limit.
type Limit struct {
	MaxCalls uint64 `json:"max_calls"`
	Window   uint64 `json:"window"`
}

// Scheduled is a registered scheduled operation.
type Scheduled struct {
	ID            uint64 `json:"id"`
	Type          string `json:"operation_type"`
	ExecuteAt     uint64 `json:"execute_at"`
	Justification string `json:"justification"`
	ScheduledAt   uint64 `json:"scheduled_at"`
}

// Snapshot is a copy of the advisory register.
type Snapshot struct {
	PanicMode   bool                   `json:"panic_mode"`
	PanicReason string                 `json:"panic_reason,omitempty"`
	Breakers    map[chamber.Op]Breaker `json:"breakers"`
	Limits      map[chamber.Op]Limit   `json:"limits"`
	Scheduled   []Scheduled            `json:"scheduled"`
}

// Surface validates guardian signals and keeps the register of those that
// were recorded.
//
// Thread-safety: Surface is safe for concurrent use via internal mutex.
type Surface struct {
	cfg config.Config

	mu          sync.Mutex
	panicMode   bool
	panicReason string
	breakers    map[chamber.Op]Breaker
	limits      map[chamber.Op]Limit
	scheduled   []Scheduled
}

// New creates an empty surface bound to cfg.
func New(cfg config.Config) *Surface {
	return &Surface{
		cfg:      cfg,
		breakers: make(map[chamber.Op]Breaker),
		limits:   make(map[chamber.Op]Limit),
	}
}

// SetPanicMode toggles panic mode.
func (s *Surface) SetPanicMode(caller chamber.AccountID, enabled bool, reason string) (audit.Fields, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	if !panicReasons[reason] {
		return nil, invalid("panic-reason", "unknown reason %q", reason)
	}

	return audit.Fields{FieldEnabled: enabled, FieldReason: reason}, nil
}

// TripCircuitBreaker records a breaker on a lifecycle operation.
func (s *Surface) TripCircuitBreaker(caller chamber.AccountID, now uint64, op chamber.Op, cooldown uint64, justification string) (audit.Fields, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	if err := checkOperation(op); err != nil {
		return nil, err
	}
	if err := s.checkCooldown("cooldown-range", cooldown); err != nil {
		return nil, err
	}
	if err := s.checkJustification(justification); err != nil {
		return nil, err
	}
	resetsAt, ok := chamber.AddTicks(now, cooldown)
	if !ok {
		return nil, invalid("cooldown-range", "cooldown %d overflows tick %d", cooldown, now)
	}

	return audit.Fields{
		FieldOperation:     string(op),
		FieldCooldown:      cooldown,
		FieldJustification: justification,
		FieldResetsAt:      resetsAt,
	}, nil
}

// ResetCircuitBreaker clears a tripped breaker.
func (s *Surface) ResetCircuitBreaker(caller chamber.AccountID, op chamber.Op) (audit.Fields, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	if err := checkOperation(op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, tripped := s.breakers[op]
	s.mu.Unlock()
	if !tripped {
		return nil, invalid("breaker-not-tripped", "no breaker on %s", op)
	}

	return audit.Fields{FieldOperation: string(op)}, nil
}

// ConfigureFrequencyLimit records a call-rate limit on a lifecycle operation.
func (s *Surface) ConfigureFrequencyLimit(caller chamber.AccountID, op chamber.Op, maxCalls, window uint64) (audit.Fields, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	if err := checkOperation(op); err != nil {
		return nil, err
	}
	if maxCalls < 1 || maxCalls > MaxCallsLimit {
		return nil, invalid("max-calls-range", "max_calls %d outside [1, %d]", maxCalls, MaxCallsLimit)
	}
	if err := s.checkCooldown("window-range", window); err != nil {
		return nil, err
	}

	return audit.Fields{
		FieldOperation: string(op),
		FieldMaxCalls:  maxCalls,
		FieldWindow:    window,
	}, nil
}

// ScheduleOperation registers an operation to run no earlier than executeAt.
func (s *Surface) ScheduleOperation(caller chamber.AccountID, now uint64, opType string, executeAt uint64, justification string) (audit.Fields, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	if !scheduleTypes[opType] {
		return nil, invalid("operation-type", "unknown operation type %q", opType)
	}
	earliest, ok := chamber.AddTicks(now, s.cfg.MinScheduleDelay)
	if !ok || executeAt < earliest {
		return nil, invalid("schedule-delay", "execute_at %d is before %d", executeAt, earliest)
	}
	if err := s.checkJustification(justification); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := uint64(len(s.scheduled)) + 1
	s.mu.Unlock()

	return audit.Fields{
		FieldScheduleID:    id,
		FieldOperationType: opType,
		FieldExecuteAt:     executeAt,
		FieldJustification: justification,
	}, nil
}

// Snapshot returns a copy of the register.
func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		PanicMode:   s.panicMode,
		PanicReason: s.panicReason,
		Breakers:    make(map[chamber.Op]Breaker, len(s.breakers)),
		Limits:      make(map[chamber.Op]Limit, len(s.limits)),
		Scheduled:   make([]Scheduled, len(s.scheduled)),
	}
	for op, b := range s.breakers {
		snap.Breakers[op] = b
	}
	for op, l := range s.limits {
		snap.Limits[op] = l
	}
	copy(snap.Scheduled, s.scheduled)
	return snap
}

// Restore rebuilds the register from an audit log. Events for other
// actions are skipped.
func (s *Surface) Restore(events []audit.Event) {
	for _, ev := range events {
		s.Apply(ev)
	}
}

// Apply folds a recorded signal into the register. The validation methods
// never touch the register; only events that reached the audit log do.
func (s *Surface) Apply(ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, tick := ev.Fields, ev.Tick
	switch chamber.Op(ev.Action) {
	case chamber.OpSetPanicMode:
		s.panicMode, _ = f[FieldEnabled].(bool)
		s.panicReason, _ = f[FieldReason].(string)
		if !s.panicMode {
			s.panicReason = ""
		}
	case chamber.OpTripCircuitBreaker:
		target := chamber.Op(str(f, FieldOperation))
		s.breakers[target] = Breaker{
			Cooldown:      num(f, FieldCooldown),
			TrippedAt:     tick,
			ResetsAt:      num(f, FieldResetsAt),
			Justification: str(f, FieldJustification),
		}
	case chamber.OpResetCircuitBreaker:
		delete(s.breakers, chamber.Op(str(f, FieldOperation)))
	case chamber.OpConfigureFrequencyLimit:
		target := chamber.Op(str(f, FieldOperation))
		s.limits[target] = Limit{MaxCalls: num(f, FieldMaxCalls), Window: num(f, FieldWindow)}
	case chamber.OpScheduleOperation:
		s.scheduled = append(s.scheduled, Scheduled{
			ID:            num(f, FieldScheduleID),
			Type:          str(f, FieldOperationType),
			ExecuteAt:     num(f, FieldExecuteAt),
			Justification: str(f, FieldJustification),
			ScheduledAt:   tick,
		})
	}
}

func (s *Surface) authorize(caller chamber.AccountID) error {
	if caller != s.cfg.Guardian {
		return &Violation{Kind: Unauthorized, Reason: "guardian-only", Message: fmt.Sprintf("caller %s is not the guardian", caller)}
	}
	return nil
}

func (s *Surface) checkCooldown(reason string, v uint64) error {
	if v < s.cfg.MinCooldown || v > s.cfg.MaxCooldown {
		return invalid(reason, "%d outside [%d, %d]", v, s.cfg.MinCooldown, s.cfg.MaxCooldown)
	}
	return nil
}

func (s *Surface) checkJustification(j string) error {
	n := utf8.RuneCountInString(j)
	if n < s.cfg.MinJustification || n > s.cfg.MaxJustification {
		return invalid("justification-length", "length %d outside [%d, %d]", n, s.cfg.MinJustification, s.cfg.MaxJustification)
	}
	return nil
}

func checkOperation(op chamber.Op) error {
	if !chamber.IsLifecycleOp(op) {
		return invalid("unknown-operation", "%q is not a lifecycle operation", op)
	}
	return nil
}

func str(f audit.Fields, key string) string {
	v, _ := f[key].(string)
	return v
}

func num(f audit.Fields, key string) uint64 {
	v, _ := f[key].(uint64)
	return v
}
