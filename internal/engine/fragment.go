package engine

import (
	"context"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/store"
)

// Fragmentation is the outcome of Fragment.
type Fragmentation struct {
	Parent   chamber.Chamber
	Children []chamber.Chamber
	// Residual is parent quantity minus the sum of child quantities. It stays
	// in custody and belongs to no record.
	Residual uint64
}

// Fragment splits a pending chamber into one child per percentage.
//
// Each child holds floor(quantity * p / 100), computed independently, so the
// children may sum to less than the parent. The parent is always left
// fragmented with quantity 0.
func (e *Engine) Fragment(ctx context.Context, caller chamber.AccountID, id uint64, percentages []uint64) (Fragmentation, error) {
	f, _, err := e.fragment(ctx, caller, id, percentages)
	return f, err
}

func (e *Engine) fragment(ctx context.Context, caller chamber.AccountID, id uint64, percentages []uint64) (Fragmentation, audit.Event, error) {
	const op = chamber.OpFragment
	var out Fragmentation
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		parent, err := e.admit(ctx, tx, op, caller, id, now)
		if err != nil {
			return nil, err
		}
		if err := e.checkPercentages(op, id, percentages); err != nil {
			return nil, err
		}

		children := make([]chamber.Chamber, 0, len(percentages))
		var distributed uint64
		for _, p := range percentages {
			child, err := tx.Insert(ctx, chamber.Chamber{
				Initiator:   parent.Initiator,
				Beneficiary: parent.Beneficiary,
				ItemID:      parent.ItemID,
				Quantity:    chamber.PercentOf(parent.Quantity, p),
				Status:      chamber.StatusPending,
				CreatedAt:   now,
				ExpiresAt:   parent.ExpiresAt,
			})
			if err != nil {
				return nil, err
			}
			children = append(children, child)
			distributed += child.Quantity
		}

		drained := parent.Drained(chamber.StatusFragmented)
		if err := tx.Put(ctx, drained); err != nil {
			return nil, err
		}

		out = Fragmentation{
			Parent:   drained,
			Children: children,
			Residual: parent.Quantity - distributed,
		}
		return audit.Fields{
			FieldChamberID:       id,
			FieldQuantity:        parent.Quantity,
			FieldPercentages:     append([]uint64(nil), percentages...),
			FieldChildren:        ids(children),
			FieldChildQuantities: quantities(children),
			FieldResidual:        out.Residual,
		}, nil
	})
	return out, ev, err
}

func (e *Engine) checkPercentages(op chamber.Op, id uint64, percentages []uint64) error {
	if len(percentages) == 0 || len(percentages) > e.cfg.MaxFragments {
		return invalidArg(ErrCodeInvalidArgument, op, id, "fragment-count", "%d percentages, want 1 to %d", len(percentages), e.cfg.MaxFragments)
	}
	var sum uint64
	for _, p := range percentages {
		if p > 100 {
			return invalidArg(ErrCodeInvalidArgument, op, id, "percentage-range", "percentage %d exceeds 100", p)
		}
		sum += p
	}
	if sum != 100 {
		return invalidArg(ErrCodeInvalidArgument, op, id, "percentage-sum", "percentages sum to %d, want 100", sum)
	}
	return nil
}

// Merge combines two pending chambers with the same beneficiary and item
// into a new pending chamber holding their exact sum. Both sources are left
// merged with quantity 0. The expiration is the later of the two.
func (e *Engine) Merge(ctx context.Context, caller chamber.AccountID, first, second uint64) (chamber.Chamber, error) {
	c, _, err := e.merge(ctx, caller, first, second)
	return c, err
}

func (e *Engine) merge(ctx context.Context, caller chamber.AccountID, first, second uint64) (chamber.Chamber, audit.Event, error) {
	const op = chamber.OpMerge
	var out chamber.Chamber
	ev, err := e.run(ctx, op, caller, func(tx *store.Tx, now uint64) (audit.Fields, error) {
		a, err := e.admit(ctx, tx, op, caller, first, now)
		if err != nil {
			return nil, err
		}
		b, err := e.admit(ctx, tx, op, caller, second, now)
		if err != nil {
			return nil, err
		}
		if first == second {
			return nil, invalidArg(ErrCodeInvalidArgument, op, first, "duplicate-chamber", "cannot merge chamber %d with itself", first)
		}
		if a.Beneficiary != b.Beneficiary {
			return nil, invalidArg(ErrCodeInvalidParty, op, second, "beneficiary-mismatch", "beneficiaries %s and %s differ", a.Beneficiary, b.Beneficiary)
		}
		if a.ItemID != b.ItemID {
			return nil, invalidArg(ErrCodeInvalidArgument, op, second, "item-mismatch", "items %d and %d differ", a.ItemID, b.ItemID)
		}
		total, ok := chamber.AddQuantity(a.Quantity, b.Quantity)
		if !ok {
			return nil, invalidArg(ErrCodeInvalidQuantity, op, second, "quantity-overflow", "%d + %d overflows", a.Quantity, b.Quantity)
		}

		merged, err := tx.Insert(ctx, chamber.Chamber{
			Initiator:   a.Initiator,
			Beneficiary: a.Beneficiary,
			ItemID:      a.ItemID,
			Quantity:    total,
			Status:      chamber.StatusPending,
			CreatedAt:   now,
			ExpiresAt:   max(a.ExpiresAt, b.ExpiresAt),
		})
		if err != nil {
			return nil, err
		}
		for _, src := range []chamber.Chamber{a, b} {
			if err := tx.Put(ctx, src.Drained(chamber.StatusMerged)); err != nil {
				return nil, err
			}
		}

		out = merged
		f := recordFields(merged)
		f[FieldSources] = []uint64{first, second}
		return f, nil
	})
	return out, ev, err
}
