package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/control"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
)

// Engine is the single-writer chamber lifecycle engine.
//
// Every operation takes the engine lock, reads the host tick once, and runs
// guard evaluation, the record write and any ledger transfer inside one store
// transaction. The audit event is sealed and emitted only after commit.
//
// Ledger transfers run inside that transaction, before the commit. The
// ledger is the host's: a store commit failing after a transfer succeeded
// leaves value moved with the record unchanged, and reconciling that is the
// host's job. The engine only guarantees the reverse, that a failed transfer
// never leaves a record change behind.
//
// Thread-safety: all exported methods are safe for concurrent use; they are
// serialized by the engine lock.
type Engine struct {
	mu sync.Mutex

	store   *store.Store
	ledger  ledger.Transferer
	clock   ledger.Clock
	cfg     config.Config
	control *control.Surface

	extra      audit.Fanout
	logger     *slog.Logger
	requestIDs RequestIDGenerator
	hasher     ledger.Hasher
	recoverer  ledger.SignerRecoverer
	seq        *Sequence
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink adds audit sinks. The store always receives each event first;
// these receive it after the store has written it.
func WithSink(sinks ...audit.Sink) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, sinks...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRequestIDs sets the request id generator. Default: UUIDv7Generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) {
		e.requestIDs = g
	}
}

// WithHasher sets the digest collaborator. Default: ledger.StandardHasher.
func WithHasher(h ledger.Hasher) Option {
	return func(e *Engine) {
		e.hasher = h
	}
}

// WithRecoverer sets the signer recovery collaborator.
// Default: ledger.Ed25519Recoverer over the engine's hasher.
func WithRecoverer(r ledger.SignerRecoverer) Option {
	return func(e *Engine) {
		e.recoverer = r
	}
}

// New creates an Engine over an open store.
//
// The event sequence resumes after the store's last event and the control
// register is rebuilt from the stored audit log, so reopening a database
// continues where the previous process stopped.
func New(
	ctx context.Context,
	s *store.Store,
	l ledger.Transferer,
	clock ledger.Clock,
	cfg config.Config,
	opts ...Option,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine{
		store:      s,
		ledger:     l,
		clock:      clock,
		cfg:        cfg,
		control:    control.New(cfg),
		logger:     slog.Default(),
		requestIDs: UUIDv7Generator{},
		hasher:     ledger.StandardHasher{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recoverer == nil {
		e.recoverer = ledger.Ed25519Recoverer{Hasher: e.hasher}
	}

	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume sequence: %w", err)
	}
	e.seq = NewSequenceAt(last)

	events, err := s.ReadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore control register: %w", err)
	}
	e.control.Restore(events)

	return e, nil
}

// Config returns the engine parameters.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Control returns a copy of the advisory control register.
func (e *Engine) Control() control.Snapshot {
	return e.control.Snapshot()
}

// step is the body of one operation, run inside the store transaction.
type step func(tx *store.Tx, now uint64) (audit.Fields, error)

// run executes one operation atomically and emits its audit event.
func (e *Engine) run(ctx context.Context, op chamber.Op, caller chamber.AccountID, fn step) (audit.Event, error) {
	return e.runThen(ctx, op, caller, fn, nil)
}

// runThen is run with a hook called, still under the engine lock, once the
// event is in the store's audit log.
func (e *Engine) runThen(ctx context.Context, op chamber.Op, caller chamber.AccountID, fn step, stored func(audit.Event)) (audit.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.CurrentTick()

	var fields audit.Fields
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		fields, err = fn(tx, now)
		return err
	})
	if err != nil {
		e.logger.Debug("operation rejected",
			"op", op,
			"caller", caller,
			"tick", now,
			"code", CodeOf(err),
			"error", err,
		)
		return audit.Event{}, err
	}

	ev, err := e.emit(ctx, op, caller, now, fields)
	if stored != nil && storedInLog(err) {
		stored(ev)
	}
	return ev, err
}

// emit seals and delivers the event for a committed operation.
//
// The seq is taken only once the store has written the event. A failed
// store write leaves the number for the next event.
func (e *Engine) emit(ctx context.Context, op chamber.Op, caller chamber.AccountID, now uint64, fields audit.Fields) (audit.Event, error) {
	ev, err := audit.Seal(audit.Event{
		Seq:       e.seq.Peek(),
		RequestID: e.requestIDs.Generate(),
		Action:    string(op),
		Caller:    string(caller),
		Tick:      now,
		Fields:    fields,
	})
	if err != nil {
		e.logger.Error("audit seal failed", "op", op, "seq", ev.Seq, "error", err)
		return ev, &EmitError{Event: ev, Err: fmt.Errorf("seal: %w", err)}
	}

	if err := e.store.Emit(ctx, ev); err != nil {
		e.logger.Error("audit log write failed",
			"op", op,
			"seq", ev.Seq,
			"error", err,
		)
		return ev, &EmitError{Event: ev, Err: err}
	}
	e.seq.Next()

	if err := e.extra.Emit(ctx, ev); err != nil {
		e.logger.Error("audit emit failed",
			"op", op,
			"seq", ev.Seq,
			"error", err,
		)
		return ev, &EmitError{Event: ev, Stored: true, Err: err}
	}

	e.logger.Debug("operation committed",
		"op", op,
		"caller", caller,
		"tick", now,
		"seq", ev.Seq,
	)
	return ev, nil
}

// release sends the non-empty legs to the ledger. Several legs go through
// MoveBatch when the ledger supports it so they commit together.
func (e *Engine) release(ctx context.Context, op chamber.Op, id uint64, moves ...ledger.Move) error {
	legs := make([]ledger.Move, 0, len(moves))
	for _, m := range moves {
		if m.Amount > 0 {
			legs = append(legs, m)
		}
	}
	if len(legs) == 0 {
		return nil
	}

	if batch, ok := e.ledger.(ledger.BatchTransferer); ok && len(legs) > 1 {
		if err := batch.MoveBatch(ctx, legs); err != nil {
			return transferFailed(op, id, err)
		}
		return nil
	}
	for _, m := range legs {
		if err := e.ledger.MoveValue(ctx, m.Amount, m.From, m.To); err != nil {
			return transferFailed(op, id, err)
		}
	}
	return nil
}

// payout is a single leg out of custody.
func (e *Engine) payout(amount uint64, to chamber.AccountID) ledger.Move {
	return ledger.Move{Amount: amount, From: e.cfg.Custody, To: to}
}
