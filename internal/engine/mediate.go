package engine

import (
	"context"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/store"
)

// Mediation is the outcome of Mediate.
type Mediation struct {
	Chamber            chamber.Chamber
	InitiatorPortion   uint64
	BeneficiaryPortion uint64
}

// Mediate resolves a challenged chamber. allocation is the initiator's
// percentage; the beneficiary receives the remainder by subtraction, so the
// two portions always sum to the original quantity.
func (e *Engine) Mediate(ctx context.Context, caller chamber.AccountID, id, allocation uint64) (Mediation, error) {
	m, _, err := e.mediate(ctx, caller, id, allocation)
	return m, err
}

// Split returns floor(q * allocation / 100) and the remainder.
func Split(q, allocation uint64) (initiator, beneficiary uint64) {
	initiator = chamber.PercentOf(q, allocation)
	return initiator, q - initiator
}

func (e *Engine) mediate(ctx context.Context, caller chamber.AccountID, id, allocation uint64) (Mediation, audit.Event, error) {
	const op = chamber.OpMediate
	var out Mediation
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		c, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}
		if allocation > 100 {
			return nil, invalidArg(ErrCodeInvalidArgument, op, id, "allocation-range", "allocation %d exceeds 100", allocation)
		}

		toInitiator, toBeneficiary := Split(c.Quantity, allocation)
		next := c.Drained(chamber.StatusMediated)
		if err := tx.Put(ctx, next); err != nil {
			return nil, err
		}
		if err := e.release(ctx, op, id,
			e.payout(toInitiator, c.Initiator),
			e.payout(toBeneficiary, c.Beneficiary),
		); err != nil {
			return nil, err
		}

		out = Mediation{Chamber: next, InitiatorPortion: toInitiator, BeneficiaryPortion: toBeneficiary}
		return audit.Fields{
			FieldChamberID:          id,
			FieldStatus:             string(next.Status),
			FieldAllocation:         allocation,
			FieldInitiatorPortion:   toInitiator,
			FieldBeneficiaryPortion: toBeneficiary,
			FieldReleased:           c.Quantity,
		}, nil
	})
	return out, ev, err
}
