package engine

import (
	"context"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/control"
	"github.com/roach88/custody/internal/store"
)

// SetPanicMode records the panic-mode signal. Advisory only.
func (e *Engine) SetPanicMode(ctx context.Context, caller chamber.AccountID, enabled bool, reason string) error {
	_, err := e.signal(ctx, chamber.OpSetPanicMode, caller, func(uint64) (audit.Fields, error) {
		return e.control.SetPanicMode(caller, enabled, reason)
	})
	return err
}

// TripCircuitBreaker records a breaker on op for cooldown ticks. Advisory only.
func (e *Engine) TripCircuitBreaker(ctx context.Context, caller chamber.AccountID, op chamber.Op, cooldown uint64, justification string) error {
	_, err := e.signal(ctx, chamber.OpTripCircuitBreaker, caller, func(now uint64) (audit.Fields, error) {
		return e.control.TripCircuitBreaker(caller, now, op, cooldown, justification)
	})
	return err
}

// ResetCircuitBreaker clears the breaker on op.
func (e *Engine) ResetCircuitBreaker(ctx context.Context, caller chamber.AccountID, op chamber.Op) error {
	_, err := e.signal(ctx, chamber.OpResetCircuitBreaker, caller, func(uint64) (audit.Fields, error) {
		return e.control.ResetCircuitBreaker(caller, op)
	})
	return err
}

// ConfigureFrequencyLimit records a call-rate limit on op. Advisory only.
func (e *Engine) ConfigureFrequencyLimit(ctx context.Context, caller chamber.AccountID, op chamber.Op, maxCalls, window uint64) error {
	_, err := e.signal(ctx, chamber.OpConfigureFrequencyLimit, caller, func(uint64) (audit.Fields, error) {
		return e.control.ConfigureFrequencyLimit(caller, op, maxCalls, window)
	})
	return err
}

// ScheduleOperation registers an administrative operation for executeAt.
func (e *Engine) ScheduleOperation(ctx context.Context, caller chamber.AccountID, opType string, executeAt uint64, justification string) error {
	_, err := e.signal(ctx, chamber.OpScheduleOperation, caller, func(now uint64) (audit.Fields, error) {
		return e.control.ScheduleOperation(caller, now, opType, executeAt, justification)
	})
	return err
}

// signal runs a control call under the engine lock and maps its violations
// onto engine error codes. The register changes only once the event is in
// the audit log.
func (e *Engine) signal(ctx context.Context, op chamber.Op, caller chamber.AccountID, fn func(now uint64) (audit.Fields, error)) (audit.Event, error) {
	return e.runThen(ctx, op, caller, func(_ *store.Tx, now uint64) (audit.Fields, error) {
		f, err := fn(now)
		if err == nil {
			return f, nil
		}
		v, ok := control.AsViolation(err)
		if !ok {
			return nil, err
		}
		code := ErrCodeInvalidArgument
		if v.Kind == control.Unauthorized {
			code = ErrCodePermissionDenied
		}
		return nil, invalidArg(code, op, 0, v.Reason, "%s", v.Message)
	}, e.control.Apply)
}
