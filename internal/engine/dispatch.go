package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/ledger"
)

// Args are named operation arguments as decoded from JSON or YAML.
type Args map[string]any

// handler decodes Args and runs one operation.
type handler func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error)

// handlers maps every operation name to its decoder. Argument names match
// the audit field names where both exist.
var handlers = map[chamber.Op]handler{
	chamber.OpCreateVault: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		ben, q, d := r.account(FieldBeneficiary), r.uint(FieldQuantity), r.uint("duration")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.create(ctx, chamber.OpCreateVault, caller, ben, chamber.GenericItem, q, d, chamber.StatusPending)
		return ev, err
	},
	chamber.OpCreateIncremental: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		ben, item, q, d := r.account(FieldBeneficiary), r.uint(FieldItemID), r.uint(FieldQuantity), r.uint("duration")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.create(ctx, chamber.OpCreateIncremental, caller, ben, item, q, d, chamber.StatusPending)
		return ev, err
	},
	chamber.OpCreateTimelocked: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		ben, q, d := r.account(FieldBeneficiary), r.uint(FieldQuantity), r.uint("duration")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.create(ctx, chamber.OpCreateTimelocked, caller, ben, chamber.GenericItem, q, d, chamber.StatusTimelocked)
		return ev, err
	},
	chamber.OpFinalize:         drainHandler(chamber.OpFinalize, chamber.StatusCompleted, beneficiaryOf),
	chamber.OpReturn:           drainHandler(chamber.OpReturn, chamber.StatusReturned, initiatorOf),
	chamber.OpNullify:          drainHandler(chamber.OpNullify, chamber.StatusNullified, initiatorOf),
	chamber.OpCollectExpired:   drainHandler(chamber.OpCollectExpired, chamber.StatusExpired, initiatorOf),
	chamber.OpProcessRetrieval: drainHandler(chamber.OpProcessRetrieval, chamber.StatusRetrieved, initiatorOf),
	chamber.OpChallenge:        markHandler(chamber.OpChallenge, chamber.StatusChallenged),
	chamber.OpCancelChallenge:  markHandler(chamber.OpCancelChallenge, chamber.StatusActive),
	chamber.OpLock:             markHandler(chamber.OpLock, chamber.StatusLocked),
	chamber.OpRequestRetrieval: markHandler(chamber.OpRequestRetrieval, chamber.StatusRetrievalPending),
	chamber.OpProlong: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id, ext := r.uint(FieldChamberID), r.uint(FieldExtension)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.prolong(ctx, caller, id, ext)
		return ev, err
	},
	chamber.OpTransferControl: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id, to := r.uint(FieldChamberID), r.account(FieldNewInitiator)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.transferControl(ctx, caller, id, to)
		return ev, err
	},
	chamber.OpFragment: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id, pcts := r.uint(FieldChamberID), r.uints(FieldPercentages)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.fragment(ctx, caller, id, pcts)
		return ev, err
	},
	chamber.OpMerge: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		a, b := r.uint("first"), r.uint("second")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.merge(ctx, caller, a, b)
		return ev, err
	},
	chamber.OpMediate: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id, alloc := r.uint(FieldChamberID), r.uint(FieldAllocation)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.mediate(ctx, caller, id, alloc)
		return ev, err
	},
	chamber.OpAdjustFee: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id, fee := r.uint(FieldChamberID), r.uint(FieldFeePercentage)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.adjustFee(ctx, caller, id, fee)
		return ev, err
	},
	chamber.OpDisclose: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		seed, path := r.digest(FieldSeed), r.digests(FieldPath)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.disclose(ctx, caller, seed, path)
		return ev, err
	},
	chamber.OpVerifySignature: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		msg, sig, declared := r.str("message"), r.hexBytes("signature"), r.account(FieldDeclaredSignatory)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.verifySignatureClaim(ctx, caller, []byte(msg), sig, declared)
		return ev, err
	},
	chamber.OpSetPanicMode: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		enabled, reason := r.boolean("enabled"), r.str("reason")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		return e.signal(ctx, chamber.OpSetPanicMode, caller, func(uint64) (audit.Fields, error) {
			return e.control.SetPanicMode(caller, enabled, reason)
		})
	},
	chamber.OpTripCircuitBreaker: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		op, cooldown, just := chamber.Op(r.str("operation")), r.uint("cooldown"), r.str("justification")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		return e.signal(ctx, chamber.OpTripCircuitBreaker, caller, func(now uint64) (audit.Fields, error) {
			return e.control.TripCircuitBreaker(caller, now, op, cooldown, just)
		})
	},
	chamber.OpResetCircuitBreaker: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		op := chamber.Op(r.str("operation"))
		if r.err != nil {
			return audit.Event{}, r.err
		}
		return e.signal(ctx, chamber.OpResetCircuitBreaker, caller, func(uint64) (audit.Fields, error) {
			return e.control.ResetCircuitBreaker(caller, op)
		})
	},
	chamber.OpConfigureFrequencyLimit: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		op, maxCalls, window := chamber.Op(r.str("operation")), r.uint("max_calls"), r.uint("window")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		return e.signal(ctx, chamber.OpConfigureFrequencyLimit, caller, func(uint64) (audit.Fields, error) {
			return e.control.ConfigureFrequencyLimit(caller, op, maxCalls, window)
		})
	},
	chamber.OpScheduleOperation: func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		opType, at, just := r.str("operation_type"), r.uint("execute_at"), r.str("justification")
		if r.err != nil {
			return audit.Event{}, r.err
		}
		return e.signal(ctx, chamber.OpScheduleOperation, caller, func(now uint64) (audit.Fields, error) {
			return e.control.ScheduleOperation(caller, now, opType, at, just)
		})
	},
}

func drainHandler(op chamber.Op, to chamber.Status, recipient func(chamber.Chamber) chamber.AccountID) handler {
	return func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id := r.uint(FieldChamberID)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.drain(ctx, op, caller, id, to, recipient)
		return ev, err
	}
}

func markHandler(op chamber.Op, to chamber.Status) handler {
	return func(ctx context.Context, e *Engine, caller chamber.AccountID, r *argReader) (audit.Event, error) {
		id := r.uint(FieldChamberID)
		if r.err != nil {
			return audit.Event{}, r.err
		}
		_, ev, err := e.mark(ctx, op, caller, id, to)
		return ev, err
	}
}

// Operations lists every operation Invoke accepts, lifecycle first.
func Operations() []chamber.Op {
	ops := append([]chamber.Op(nil), chamber.LifecycleOps...)
	return append(ops,
		chamber.OpDisclose,
		chamber.OpVerifySignature,
		chamber.OpSetPanicMode,
		chamber.OpTripCircuitBreaker,
		chamber.OpResetCircuitBreaker,
		chamber.OpConfigureFrequencyLimit,
		chamber.OpScheduleOperation,
	)
}

// Invoke runs op by name and returns the emitted audit event.
//
// Argument decoding happens before any guard: a missing or malformed
// argument is reported as INVALID_ARGUMENT with reason "malformed-args".
func (e *Engine) Invoke(ctx context.Context, op chamber.Op, caller chamber.AccountID, args Args) (audit.Event, error) {
	h, ok := handlers[op]
	if !ok {
		return audit.Event{}, invalidArg(ErrCodeInvalidArgument, op, 0, "unknown-operation", "no operation named %q", op)
	}
	return h(ctx, e, caller, &argReader{op: op, args: args})
}

// argReader decodes Args, keeping the first error.
type argReader struct {
	op   chamber.Op
	args Args
	err  error
}

func (r *argReader) fail(name, format string, v ...any) {
	if r.err == nil {
		r.err = invalidArg(ErrCodeInvalidArgument, r.op, 0, "malformed-args", "%s: %s", name, fmt.Sprintf(format, v...))
	}
}

func (r *argReader) get(name string) (any, bool) {
	v, ok := r.args[name]
	if !ok || v == nil {
		r.fail(name, "missing")
		return nil, false
	}
	return v, true
}

func (r *argReader) uint(name string) uint64 {
	v, ok := r.get(name)
	if !ok {
		return 0
	}
	u, err := toUint(v)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return u
}

func (r *argReader) uints(name string) []uint64 {
	v, ok := r.get(name)
	if !ok {
		return nil
	}
	list, ok := asList(v)
	if !ok {
		r.fail(name, "want a list, got %T", v)
		return nil
	}
	out := make([]uint64, len(list))
	for i, item := range list {
		u, err := toUint(item)
		if err != nil {
			r.fail(name, "element %d: %v", i, err)
			return nil
		}
		out[i] = u
	}
	return out
}

func (r *argReader) str(name string) string {
	v, ok := r.get(name)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(name, "want a string, got %T", v)
	}
	return s
}

func (r *argReader) account(name string) chamber.AccountID {
	return chamber.AccountID(r.str(name))
}

func (r *argReader) boolean(name string) bool {
	v, ok := r.get(name)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(name, "want a bool, got %T", v)
	}
	return b
}

func (r *argReader) hexBytes(name string) []byte {
	s := r.str(name)
	if r.err != nil {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return b
}

func (r *argReader) digest(name string) ledger.Digest {
	s := r.str(name)
	if r.err != nil {
		return ledger.Digest{}
	}
	d, err := ledger.ParseDigest(s)
	if err != nil {
		r.fail(name, "%v", err)
	}
	return d
}

func (r *argReader) digests(name string) []ledger.Digest {
	v, ok := r.get(name)
	if !ok {
		return nil
	}
	list, ok := asList(v)
	if !ok {
		r.fail(name, "want a list, got %T", v)
		return nil
	}
	out := make([]ledger.Digest, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			r.fail(name, "element %d: want a string, got %T", i, item)
			return nil
		}
		d, err := ledger.ParseDigest(s)
		if err != nil {
			r.fail(name, "element %d: %v", i, err)
			return nil
		}
		out[i] = d
	}
	return out
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []uint64:
		out := make([]any, len(l))
		for i, u := range l {
			out[i] = u
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// toUint accepts the integer shapes produced by encoding/json (with
// UseNumber or not), yaml.v3 and Go callers.
func toUint(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
			return 0, fmt.Errorf("not a non-negative integer: %v", n)
		}
		return uint64(n), nil
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not a non-negative integer: %s", n)
		}
		return u, nil
	default:
		return 0, fmt.Errorf("want an integer, got %T", v)
	}
}
