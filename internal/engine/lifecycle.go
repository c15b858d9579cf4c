package engine

import (
	"context"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
)

// CreateVault opens a generic (item 0) pending chamber funded by caller.
func (e *Engine) CreateVault(ctx context.Context, caller, beneficiary chamber.AccountID, quantity, duration uint64) (chamber.Chamber, error) {
	c, _, err := e.create(ctx, chamber.OpCreateVault, caller, beneficiary, chamber.GenericItem, quantity, duration, chamber.StatusPending)
	return c, err
}

// CreateIncrementalChamber opens a pending chamber tagged with itemID.
func (e *Engine) CreateIncrementalChamber(ctx context.Context, caller, beneficiary chamber.AccountID, itemID, quantity, duration uint64) (chamber.Chamber, error) {
	c, _, err := e.create(ctx, chamber.OpCreateIncremental, caller, beneficiary, itemID, quantity, duration, chamber.StatusPending)
	return c, err
}

// CreateTimelockedVault opens a chamber in status timelocked. No transition
// accepts timelocked as a source status, so its value stays in custody.
func (e *Engine) CreateTimelockedVault(ctx context.Context, caller, beneficiary chamber.AccountID, quantity, duration uint64) (chamber.Chamber, error) {
	c, _, err := e.create(ctx, chamber.OpCreateTimelocked, caller, beneficiary, chamber.GenericItem, quantity, duration, chamber.StatusTimelocked)
	return c, err
}

func (e *Engine) create(
	ctx context.Context,
	op chamber.Op,
	caller, beneficiary chamber.AccountID,
	itemID, quantity, duration uint64,
	status chamber.Status,
) (chamber.Chamber, audit.Event, error) {
	var out chamber.Chamber
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		if caller == "" || beneficiary == "" {
			return nil, invalidArg(ErrCodeInvalidParty, op, 0, "party-empty", "initiator and beneficiary are required")
		}
		if beneficiary == caller {
			return nil, invalidArg(ErrCodeInvalidParty, op, 0, "self-beneficiary", "beneficiary must differ from initiator %s", caller)
		}
		if quantity == 0 {
			return nil, invalidArg(ErrCodeInvalidQuantity, op, 0, "quantity-zero", "quantity must be positive")
		}
		if duration == 0 || duration > e.cfg.MaxDuration {
			return nil, invalidArg(ErrCodeInvalidArgument, op, 0, "duration-range", "duration %d outside [1, %d]", duration, e.cfg.MaxDuration)
		}
		expires, ok := chamber.AddTicks(now, duration)
		if !ok {
			return nil, invalidArg(ErrCodeInvalidArgument, op, 0, "duration-overflow", "tick %d + duration %d overflows", now, duration)
		}

		c, err := tx.Insert(ctx, chamber.Chamber{
			Initiator:   caller,
			Beneficiary: beneficiary,
			ItemID:      itemID,
			Quantity:    quantity,
			Status:      status,
			CreatedAt:   now,
			ExpiresAt:   expires,
		})
		if err != nil {
			return nil, err
		}
		if err := e.release(ctx, op, 0, ledger.Move{Amount: quantity, From: caller, To: e.cfg.Custody}); err != nil {
			return nil, err
		}
		out = c
		return recordFields(c), nil
	})
	return out, ev, err
}

// Finalize pays the full quantity to the beneficiary.
func (e *Engine) Finalize(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.drain(ctx, chamber.OpFinalize, caller, id, chamber.StatusCompleted, beneficiaryOf)
	return c, err
}

// Return refunds the full quantity to the initiator. Guardian only.
func (e *Engine) Return(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.drain(ctx, chamber.OpReturn, caller, id, chamber.StatusReturned, initiatorOf)
	return c, err
}

// Nullify lets the initiator withdraw before expiration.
func (e *Engine) Nullify(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.drain(ctx, chamber.OpNullify, caller, id, chamber.StatusNullified, initiatorOf)
	return c, err
}

// CollectExpired refunds the initiator once the expiration has passed.
func (e *Engine) CollectExpired(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.drain(ctx, chamber.OpCollectExpired, caller, id, chamber.StatusExpired, initiatorOf)
	return c, err
}

// ProcessDelayedRetrieval refunds the initiator of a retrieval-pending
// chamber once RetrievalDelay ticks have passed since creation.
func (e *Engine) ProcessDelayedRetrieval(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.drain(ctx, chamber.OpProcessRetrieval, caller, id, chamber.StatusRetrieved, initiatorOf)
	return c, err
}

func initiatorOf(c chamber.Chamber) chamber.AccountID   { return c.Initiator }
func beneficiaryOf(c chamber.Chamber) chamber.AccountID { return c.Beneficiary }

// drain moves the whole quantity to one party and leaves the record in a
// terminal status with quantity 0.
func (e *Engine) drain(
	ctx context.Context,
	op chamber.Op,
	caller chamber.AccountID,
	id uint64,
	to chamber.Status,
	recipient func(chamber.Chamber) chamber.AccountID,
) (chamber.Chamber, audit.Event, error) {
	var out chamber.Chamber
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		c, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}

		next := c.Drained(to)
		if err := tx.Put(ctx, next); err != nil {
			return nil, err
		}
		dest := recipient(c)
		if err := e.release(ctx, op, id, e.payout(c.Quantity, dest)); err != nil {
			return nil, err
		}
		out = next
		return releaseFields(next, dest, c.Quantity), nil
	})
	return out, ev, err
}

// Challenge disputes a chamber before its expiration.
func (e *Engine) Challenge(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.mark(ctx, chamber.OpChallenge, caller, id, chamber.StatusChallenged)
	return c, err
}

// CancelChallenge withdraws a challenge. The chamber moves to active.
func (e *Engine) CancelChallenge(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.mark(ctx, chamber.OpCancelChallenge, caller, id, chamber.StatusActive)
	return c, err
}

// Lock freezes a chamber.
func (e *Engine) Lock(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.mark(ctx, chamber.OpLock, caller, id, chamber.StatusLocked)
	return c, err
}

// RequestDelayedRetrieval starts the retrieval delay on a pending chamber.
func (e *Engine) RequestDelayedRetrieval(ctx context.Context, caller chamber.AccountID, id uint64) (chamber.Chamber, error) {
	c, _, err := e.mark(ctx, chamber.OpRequestRetrieval, caller, id, chamber.StatusRetrievalPending)
	return c, err
}

// mark changes only the status.
func (e *Engine) mark(ctx context.Context, op chamber.Op, caller chamber.AccountID, id uint64, to chamber.Status) (chamber.Chamber, audit.Event, error) {
	var out chamber.Chamber
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		c, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}
		next := c.WithStatus(to)
		if err := tx.Put(ctx, next); err != nil {
			return nil, err
		}
		out = next

		f := statusFields(next)
		if op == chamber.OpRequestRetrieval {
			at, _ := chamber.AddTicks(next.CreatedAt, e.cfg.RetrievalDelay)
			f[FieldAvailableAt] = at
		}
		return f, nil
	})
	return out, ev, err
}

// Prolong extends the expiration by extension ticks. Status is unchanged.
func (e *Engine) Prolong(ctx context.Context, caller chamber.AccountID, id, extension uint64) (chamber.Chamber, error) {
	c, _, err := e.prolong(ctx, caller, id, extension)
	return c, err
}

func (e *Engine) prolong(ctx context.Context, caller chamber.AccountID, id, extension uint64) (chamber.Chamber, audit.Event, error) {
	const op = chamber.OpProlong
	var out chamber.Chamber
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		c, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}
		if extension == 0 || extension > e.cfg.MaxDuration {
			return nil, invalidArg(ErrCodeInvalidArgument, op, id, "extension-range", "extension %d outside [1, %d]", extension, e.cfg.MaxDuration)
		}
		expires, ok := chamber.AddTicks(c.ExpiresAt, extension)
		if !ok {
			return nil, invalidArg(ErrCodeInvalidArgument, op, id, "extension-overflow", "expiration %d + %d overflows", c.ExpiresAt, extension)
		}

		next := c.WithExpiration(expires)
		if err := tx.Put(ctx, next); err != nil {
			return nil, err
		}
		out = next
		return audit.Fields{
			FieldChamberID:          id,
			FieldExtension:          extension,
			FieldPreviousExpiration: c.ExpiresAt,
			FieldExpirationTick:     expires,
		}, nil
	})
	return out, ev, err
}

// TransferControl hands the initiator role to newInitiator.
func (e *Engine) TransferControl(ctx context.Context, caller chamber.AccountID, id uint64, newInitiator chamber.AccountID) (chamber.Chamber, error) {
	c, _, err := e.transferControl(ctx, caller, id, newInitiator)
	return c, err
}

func (e *Engine) transferControl(ctx context.Context, caller chamber.AccountID, id uint64, newInitiator chamber.AccountID) (chamber.Chamber, audit.Event, error) {
	const op = chamber.OpTransferControl
	var out chamber.Chamber
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		c, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}
		switch newInitiator {
		case "":
			return nil, invalidArg(ErrCodeInvalidParty, op, id, "party-empty", "new initiator is required")
		case c.Initiator:
			return nil, invalidArg(ErrCodeInvalidParty, op, id, "same-initiator", "%s already controls chamber %d", newInitiator, id)
		case c.Beneficiary:
			return nil, invalidArg(ErrCodeInvalidParty, op, id, "self-beneficiary", "new initiator must differ from beneficiary")
		}

		next := c.WithInitiator(newInitiator)
		if err := tx.Put(ctx, next); err != nil {
			return nil, err
		}
		out = next
		return audit.Fields{
			FieldChamberID:         id,
			FieldPreviousInitiator: string(c.Initiator),
			FieldNewInitiator:      string(newInitiator),
		}, nil
	})
	return out, ev, err
}
