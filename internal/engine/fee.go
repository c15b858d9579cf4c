package engine

import (
	"context"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/store"
)

// FeeAdjustment is the outcome of AdjustFee.
type FeeAdjustment struct {
	Chamber   chamber.Chamber
	FeeAmount uint64
}

// AdjustFee deducts floor(quantity * feePercentage / 100) from a pending
// chamber's recorded quantity. The fee is reported, not transferred: it
// leaves the record's accounted value and stays in the custody account.
func (e *Engine) AdjustFee(ctx context.Context, caller chamber.AccountID, id, feePercentage uint64) (FeeAdjustment, error) {
	f, _, err := e.adjustFee(ctx, caller, id, feePercentage)
	return f, err
}

func (e *Engine) adjustFee(ctx context.Context, caller chamber.AccountID, id, feePercentage uint64) (FeeAdjustment, audit.Event, error) {
	const op = chamber.OpAdjustFee
	var out FeeAdjustment
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		c, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}
		if feePercentage > e.cfg.MaxFeePercentage {
			return nil, invalidArg(ErrCodeInvalidArgument, op, id, "fee-range", "fee %d%% exceeds %d%%", feePercentage, e.cfg.MaxFeePercentage)
		}
		fee := chamber.PercentOf(c.Quantity, feePercentage)
		adjusted := c.Quantity - fee
		if adjusted == 0 {
			return nil, invalidArg(ErrCodeInvalidQuantity, op, id, "adjusted-zero", "fee leaves no quantity")
		}

		next := c.WithQuantity(adjusted)
		if err := tx.Put(ctx, next); err != nil {
			return nil, err
		}
		out = FeeAdjustment{Chamber: next, FeeAmount: fee}
		return audit.Fields{
			FieldChamberID:        id,
			FieldFeePercentage:    feePercentage,
			FieldFeeAmount:        fee,
			FieldAdjustedQuantity: adjusted,
		}, nil
	})
	return out, ev, err
}
