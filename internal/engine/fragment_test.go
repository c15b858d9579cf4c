package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/ledger"
)

func TestFragment(t *testing.T) {
	f := newFixture(t)
	c, err := f.eng.CreateIncrementalChamber(f.ctx, alice, bob, 9, 1000, 40)
	require.NoError(t, err)

	f.clock.Set(3)
	fr, err := f.eng.Fragment(f.ctx, alice, c.ID, []uint64{50, 25, 25})
	require.NoError(t, err)

	require.Len(t, fr.Children, 3)
	assert.Equal(t, []uint64{2, 3, 4}, ids(fr.Children))
	assert.Equal(t, []uint64{500, 250, 250}, quantities(fr.Children))
	assert.Zero(t, fr.Residual)
	for _, child := range fr.Children {
		assert.Equal(t, alice, child.Initiator)
		assert.Equal(t, bob, child.Beneficiary)
		assert.Equal(t, uint64(9), child.ItemID)
		assert.Equal(t, chamber.StatusPending, child.Status)
		assert.Equal(t, uint64(3), child.CreatedAt)
		assert.Equal(t, uint64(40), child.ExpiresAt, "children inherit the parent expiration")
		assert.Equal(t, child, f.get(child.ID))
	}

	ev, _ := f.rec.Last()
	assert.Equal(t, []uint64{2, 3, 4}, ev.Fields[FieldChildren])
	assert.Equal(t, []uint64{50, 25, 25}, ev.Fields[FieldPercentages])
	assert.Equal(t, uint64(0), ev.Fields[FieldResidual])
}

func TestFragment_SingleChild(t *testing.T) {
	f := newFixture(t)
	c := f.vault(77, 10)

	fr, err := f.eng.Fragment(f.ctx, alice, c.ID, []uint64{100})
	require.NoError(t, err)
	require.Len(t, fr.Children, 1)
	assert.Equal(t, uint64(77), fr.Children[0].Quantity)
}

func TestFragment_Validation(t *testing.T) {
	tests := []struct {
		name        string
		percentages []uint64
		reason      string
	}{
		{"empty", nil, "fragment-count"},
		{"too many", []uint64{20, 20, 20, 20, 10, 10}, "fragment-count"},
		{"above 100", []uint64{101}, "percentage-range"},
		{"sum below 100", []uint64{50, 49}, "percentage-sum"},
		{"sum above 100", []uint64{50, 51}, "percentage-sum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.vault(100, 10)

			_, err := f.eng.Fragment(f.ctx, alice, c.ID, tt.percentages)
			requireReason(t, err, ErrCodeInvalidArgument, tt.reason)
			assert.Equal(t, chamber.StatusPending, f.get(c.ID).Status)

			n, err := f.store.Counter(f.ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), n, "no child ids consumed")
		})
	}
}

func TestFragment_OnlyInitiator(t *testing.T) {
	f := newFixture(t)
	c := f.vault(100, 10)

	for _, caller := range []chamber.AccountID{bob, guardian} {
		_, err := f.eng.Fragment(f.ctx, caller, c.ID, []uint64{100})
		requireCode(t, err, ErrCodePermissionDenied)
	}
}

func TestFragment_ZeroQuantityChildren(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1, 10)

	fr, err := f.eng.Fragment(f.ctx, alice, c.ID, []uint64{50, 50})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 0}, quantities(fr.Children))
	assert.Equal(t, uint64(1), fr.Residual)

	// Releasing a zero child moves nothing and still completes it.
	done, err := f.eng.Finalize(f.ctx, alice, fr.Children[0].ID)
	require.NoError(t, err)
	assert.Equal(t, chamber.StatusCompleted, done.Status)
	assert.Zero(t, f.balance(bob))
	assert.Empty(t, f.book.Moves()[1:], "only the deposit moved value")
}

func TestMerge(t *testing.T) {
	f := newFixture(t)
	a := f.vault(300, 10)
	b := f.vault(200, 50)

	f.clock.Set(5)
	m, err := f.eng.Merge(f.ctx, alice, a.ID, b.ID)
	require.NoError(t, err)

	assert.Equal(t, chamber.Chamber{
		ID:          3,
		Initiator:   alice,
		Beneficiary: bob,
		ItemID:      chamber.GenericItem,
		Quantity:    500,
		Status:      chamber.StatusPending,
		CreatedAt:   5,
		ExpiresAt:   50,
	}, m)
	for _, id := range []uint64{a.ID, b.ID} {
		src := f.get(id)
		assert.Equal(t, chamber.StatusMerged, src.Status)
		assert.Zero(t, src.Quantity)
	}
	assert.Equal(t, uint64(500), f.balance(custody))

	ev, _ := f.rec.Last()
	assert.Equal(t, []uint64{1, 2}, ev.Fields[FieldSources])
	assert.Equal(t, uint64(3), ev.Fields[FieldChamberID])

	_, err = f.eng.Finalize(f.ctx, alice, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), f.balance(bob))
}

func TestMerge_Validation(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		f := newFixture(t)
		a := f.vault(300, 10)
		_, err := f.eng.Merge(f.ctx, alice, a.ID, a.ID)
		requireReason(t, err, ErrCodeInvalidArgument, "duplicate-chamber")
	})

	t.Run("beneficiary mismatch", func(t *testing.T) {
		f := newFixture(t)
		a := f.vault(300, 10)
		b, err := f.eng.CreateVault(f.ctx, alice, carol, 100, 10)
		require.NoError(t, err)
		_, err = f.eng.Merge(f.ctx, alice, a.ID, b.ID)
		requireReason(t, err, ErrCodeInvalidParty, "beneficiary-mismatch")
	})

	t.Run("item mismatch", func(t *testing.T) {
		f := newFixture(t)
		a := f.vault(300, 10)
		b, err := f.eng.CreateIncrementalChamber(f.ctx, alice, bob, 7, 100, 10)
		require.NoError(t, err)
		_, err = f.eng.Merge(f.ctx, alice, a.ID, b.ID)
		requireReason(t, err, ErrCodeInvalidArgument, "item-mismatch")
	})

	t.Run("caller must initiate both", func(t *testing.T) {
		f := newFixture(t)
		a := f.vault(300, 10)
		b, err := f.eng.CreateVault(f.ctx, carol, bob, 100, 10)
		require.NoError(t, err)
		_, err = f.eng.Merge(f.ctx, alice, a.ID, b.ID)
		requireCode(t, err, ErrCodePermissionDenied)
	})

	t.Run("source must be pending", func(t *testing.T) {
		f := newFixture(t)
		a := f.vault(300, 10)
		b := f.vault(100, 10)
		_, err := f.eng.Finalize(f.ctx, alice, b.ID)
		require.NoError(t, err)
		_, err = f.eng.Merge(f.ctx, alice, a.ID, b.ID)
		requireCode(t, err, ErrCodeAlreadyProcessed)
		assert.Equal(t, chamber.StatusPending, f.get(a.ID).Status)
	})

	t.Run("overflow", func(t *testing.T) {
		// Custody on a Book can never hold more than MaxUint64, so the sum
		// only overflows against a ledger that does not track balances.
		f := newFixture(t)
		eng, err := New(f.ctx, f.store, acceptAll{}, f.clock, config.Default())
		require.NoError(t, err)

		a, err := eng.CreateVault(f.ctx, alice, bob, math.MaxUint64, 10)
		require.NoError(t, err)
		b, err := eng.CreateVault(f.ctx, alice, bob, 1, 10)
		require.NoError(t, err)

		_, err = eng.Merge(f.ctx, alice, a.ID, b.ID)
		requireReason(t, err, ErrCodeInvalidQuantity, "quantity-overflow")
	})
}

// acceptAll is a ledger that approves every move.
type acceptAll struct{}

func (acceptAll) MoveValue(context.Context, uint64, chamber.AccountID, chamber.AccountID) error {
	return nil
}

func TestMediate_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1000, 10)

	_, err := f.eng.Mediate(f.ctx, guardian, c.ID, 50)
	requireCode(t, err, ErrCodeAlreadyProcessed)

	_, err = f.eng.Challenge(f.ctx, alice, c.ID)
	require.NoError(t, err)

	_, err = f.eng.Mediate(f.ctx, alice, c.ID, 50)
	requireCode(t, err, ErrCodePermissionDenied)
	_, err = f.eng.Mediate(f.ctx, guardian, c.ID, 101)
	requireReason(t, err, ErrCodeInvalidArgument, "allocation-range")

	f.clock.Set(11)
	_, err = f.eng.Mediate(f.ctx, guardian, c.ID, 50)
	requireCode(t, err, ErrCodeTimeout)
}

func TestMediate_SecondLegFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1000, 10)
	_, err := f.eng.Challenge(f.ctx, bob, c.ID)
	require.NoError(t, err)

	f.book.RejectTo(bob, true)
	_, err = f.eng.Mediate(f.ctx, guardian, c.ID, 40)
	requireCode(t, err, ErrCodeTransferFailed)
	assert.ErrorIs(t, err, ledger.ErrTransferRejected)

	got := f.get(c.ID)
	assert.Equal(t, chamber.StatusChallenged, got.Status)
	assert.Equal(t, uint64(1000), got.Quantity)
	assert.Equal(t, startingBalance-1000, f.balance(alice), "first leg must not land alone")
	assert.Equal(t, uint64(1000), f.balance(custody))

	f.book.RejectTo(bob, false)
	m, err := f.eng.Mediate(f.ctx, guardian, c.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), m.InitiatorPortion)
	assert.Equal(t, uint64(600), m.BeneficiaryPortion)
}

func TestMediate_FullAllocationSkipsEmptyLeg(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1000, 10)
	_, err := f.eng.Challenge(f.ctx, bob, c.ID)
	require.NoError(t, err)

	// The beneficiary leg is empty, so a reject on bob never fires.
	f.book.RejectTo(bob, true)
	m, err := f.eng.Mediate(f.ctx, guardian, c.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), m.InitiatorPortion)
	assert.Zero(t, m.BeneficiaryPortion)
	assert.Equal(t, startingBalance, f.balance(alice))
}

func TestAdjustFee_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1000, 10)

	_, err := f.eng.AdjustFee(f.ctx, alice, c.ID, 5)
	requireCode(t, err, ErrCodePermissionDenied)
	_, err = f.eng.AdjustFee(f.ctx, guardian, c.ID, 11)
	requireReason(t, err, ErrCodeInvalidArgument, "fee-range")

	adj, err := f.eng.AdjustFee(f.ctx, guardian, c.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, adj.FeeAmount)
	assert.Equal(t, uint64(1000), adj.Chamber.Quantity)
}

func TestAdjustFee_AdjustedZero(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1, 10)
	fr, err := f.eng.Fragment(f.ctx, alice, c.ID, []uint64{50, 50})
	require.NoError(t, err)

	_, err = f.eng.AdjustFee(f.ctx, guardian, fr.Children[0].ID, 10)
	requireReason(t, err, ErrCodeInvalidQuantity, "adjusted-zero")
}
