package engine

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/chamber"
)

func TestSplit_ConservesQuantity(t *testing.T) {
	for _, q := range []uint64{0, 1, 7, 99, 100, 999, 1000, 123_456_789, math.MaxUint64} {
		for a := uint64(0); a <= 100; a++ {
			toInitiator, toBeneficiary := Split(q, a)
			require.Equal(t, q, toInitiator+toBeneficiary, "q=%d a=%d", q, a)
			require.Equal(t, chamber.PercentOf(q, a), toInitiator, "q=%d a=%d", q, a)
		}
	}
}

func TestMediate_ConservesBalances(t *testing.T) {
	for _, a := range []uint64{0, 1, 33, 50, 99, 100} {
		t.Run(fmt.Sprintf("allocation=%d", a), func(t *testing.T) {
			f := newFixture(t)
			c := f.vault(999, 10)
			_, err := f.eng.Challenge(f.ctx, bob, c.ID)
			require.NoError(t, err)

			m, err := f.eng.Mediate(f.ctx, guardian, c.ID, a)
			require.NoError(t, err)
			assert.Equal(t, uint64(999), m.InitiatorPortion+m.BeneficiaryPortion)
			assert.Equal(t, chamber.StatusMediated, m.Chamber.Status)
			assert.Zero(t, m.Chamber.Quantity)

			assert.Zero(t, f.balance(custody))
			assert.Equal(t, startingBalance-999+m.InitiatorPortion, f.balance(alice))
			assert.Equal(t, m.BeneficiaryPortion, f.balance(bob))
		})
	}
}

func TestFragment_ResidualStaysInCustody(t *testing.T) {
	f := newFixture(t)
	c := f.vault(10, 50)

	fr, err := f.eng.Fragment(f.ctx, alice, c.ID, []uint64{33, 33, 34})
	require.NoError(t, err)

	require.Len(t, fr.Children, 3)
	for _, child := range fr.Children {
		assert.Equal(t, uint64(3), child.Quantity)
	}
	assert.Equal(t, uint64(1), fr.Residual)
	assert.Equal(t, chamber.StatusFragmented, f.get(c.ID).Status)
	assert.Zero(t, f.get(c.ID).Quantity)
	assert.Equal(t, uint64(10), f.balance(custody), "no value leaves custody")

	// Draining every child releases 9; the residual unit is stranded.
	for _, child := range fr.Children {
		_, err := f.eng.Finalize(f.ctx, alice, child.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(9), f.balance(bob))
	assert.Equal(t, uint64(1), f.balance(custody))
}

func TestAdjustFee_ReducesReleasedValue(t *testing.T) {
	f := newFixture(t)
	c := f.vault(1000, 10)

	adj, err := f.eng.AdjustFee(f.ctx, guardian, c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), adj.FeeAmount)
	assert.Equal(t, uint64(950), adj.Chamber.Quantity)
	assert.Equal(t, chamber.StatusPending, adj.Chamber.Status)

	done, err := f.eng.Finalize(f.ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Zero(t, done.Quantity)
	assert.Equal(t, uint64(950), f.balance(bob))
	assert.Equal(t, uint64(50), f.balance(custody), "the fee stays in custody")

	ev, _ := f.rec.Last()
	assert.Equal(t, uint64(950), ev.Fields[FieldReleased])
}

func TestIdentifierZero_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Finalize(f.ctx, alice, 0)
	requireCode(t, err, ErrCodeNotFound)

	f.vault(10, 10)
	_, err = f.eng.Lock(f.ctx, alice, 0)
	requireCode(t, err, ErrCodeNotFound)
}

func TestIdentifierAboveCounter_InvalidIdentifier(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Finalize(f.ctx, alice, 1)
	requireCode(t, err, ErrCodeInvalidIdentifier)

	f.vault(10, 10)
	_, err = f.eng.Finalize(f.ctx, alice, 2)
	requireCode(t, err, ErrCodeInvalidIdentifier)
	_, err = f.eng.Finalize(f.ctx, alice, math.MaxUint64)
	requireCode(t, err, ErrCodeInvalidIdentifier)
}

// Each case violates its expected guard and every guard after it, so only
// the evaluation order picks the reported code.
func TestGuardOrder(t *testing.T) {
	tests := []struct {
		name   string
		caller chamber.AccountID
		id     func(f *fixture) uint64
		code   ErrorCode
	}{
		{
			name:   "identifier before everything",
			caller: mallory,
			id:     func(*fixture) uint64 { return 99 },
			code:   ErrCodeInvalidIdentifier,
		},
		{
			name:   "existence before permission",
			caller: mallory,
			id:     func(*fixture) uint64 { return 0 },
			code:   ErrCodeNotFound,
		},
		{
			name:   "permission before status",
			caller: mallory,
			id:     func(*fixture) uint64 { return 2 },
			code:   ErrCodePermissionDenied,
		},
		{
			name:   "status before time",
			caller: alice,
			id:     func(*fixture) uint64 { return 2 },
			code:   ErrCodeAlreadyProcessed,
		},
		{
			name:   "time before transfer",
			caller: alice,
			id:     func(*fixture) uint64 { return 1 },
			code:   ErrCodeTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.vault(100, 10) // 1: pending
			done := f.vault(100, 10)
			_, err := f.eng.Finalize(f.ctx, alice, done.ID) // 2: completed
			require.NoError(t, err)

			f.clock.Set(11)
			f.book.FailNext(1)
			_, err = f.eng.Finalize(f.ctx, tt.caller, tt.id(f))
			requireCode(t, err, tt.code)
		})
	}
}

func TestGuardOrder_StatusBeforeArguments(t *testing.T) {
	f := newFixture(t)
	c := f.vault(100, 10)
	_, err := f.eng.Lock(f.ctx, alice, c.ID)
	require.NoError(t, err)

	_, err = f.eng.Fragment(f.ctx, alice, c.ID, []uint64{1})
	requireCode(t, err, ErrCodeAlreadyProcessed)
	_, err = f.eng.AdjustFee(f.ctx, guardian, c.ID, 99)
	requireCode(t, err, ErrCodeAlreadyProcessed)
	_, err = f.eng.Prolong(f.ctx, alice, c.ID, 0)
	requireCode(t, err, ErrCodeAlreadyProcessed)
}

func TestTimelocked_RejectsLifecycle(t *testing.T) {
	f := newFixture(t)
	c, err := f.eng.CreateTimelockedVault(f.ctx, alice, bob, 500, 10)
	require.NoError(t, err)

	attempts := []struct {
		name string
		tick uint64
		call func() error
	}{
		{"finalize", 0, func() error { _, err := f.eng.Finalize(f.ctx, alice, c.ID); return err }},
		{"return", 0, func() error { _, err := f.eng.Return(f.ctx, guardian, c.ID); return err }},
		{"nullify", 0, func() error { _, err := f.eng.Nullify(f.ctx, alice, c.ID); return err }},
		{"challenge", 0, func() error { _, err := f.eng.Challenge(f.ctx, bob, c.ID); return err }},
		{"lock", 0, func() error { _, err := f.eng.Lock(f.ctx, bob, c.ID); return err }},
		{"prolong", 0, func() error { _, err := f.eng.Prolong(f.ctx, alice, c.ID, 5); return err }},
		{"fragment", 0, func() error { _, err := f.eng.Fragment(f.ctx, alice, c.ID, []uint64{100}); return err }},
		{"adjust-fee", 0, func() error { _, err := f.eng.AdjustFee(f.ctx, guardian, c.ID, 1); return err }},
		{"request-delayed-retrieval", 0, func() error { _, err := f.eng.RequestDelayedRetrieval(f.ctx, alice, c.ID); return err }},
		{"collect-expired", 11, func() error { _, err := f.eng.CollectExpired(f.ctx, alice, c.ID); return err }},
	}
	for _, a := range attempts {
		f.clock.Set(a.tick)
		requireCode(t, a.call(), ErrCodeAlreadyProcessed)
	}

	got := f.get(c.ID)
	assert.Equal(t, chamber.StatusTimelocked, got.Status)
	assert.Equal(t, uint64(500), got.Quantity)
	assert.Equal(t, uint64(500), f.balance(custody))
}

func TestTerminalStates_RejectRepeats(t *testing.T) {
	type drain func(f *fixture, id uint64) error

	finalize := func(f *fixture, id uint64) error { _, err := f.eng.Finalize(f.ctx, alice, id); return err }
	ret := func(f *fixture, id uint64) error { _, err := f.eng.Return(f.ctx, guardian, id); return err }
	nullify := func(f *fixture, id uint64) error { _, err := f.eng.Nullify(f.ctx, alice, id); return err }
	collect := func(f *fixture, id uint64) error {
		f.clock.Set(11)
		_, err := f.eng.CollectExpired(f.ctx, alice, id)
		return err
	}
	mediate := func(f *fixture, id uint64) error { _, err := f.eng.Mediate(f.ctx, guardian, id, 50); return err }
	process := func(f *fixture, id uint64) error {
		f.clock.Set(100)
		_, err := f.eng.ProcessDelayedRetrieval(f.ctx, alice, id)
		return err
	}

	tests := []struct {
		status chamber.Status
		setup  func(f *fixture, id uint64)
		op     drain
	}{
		{chamber.StatusCompleted, nil, finalize},
		{chamber.StatusReturned, nil, ret},
		{chamber.StatusNullified, nil, nullify},
		{chamber.StatusExpired, nil, collect},
		{chamber.StatusMediated, func(f *fixture, id uint64) {
			_, err := f.eng.Challenge(f.ctx, bob, id)
			require.NoError(f.t, err)
		}, mediate},
		{chamber.StatusRetrieved, func(f *fixture, id uint64) {
			_, err := f.eng.RequestDelayedRetrieval(f.ctx, alice, id)
			require.NoError(f.t, err)
		}, process},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			c := f.vault(1000, 10)
			if tt.setup != nil {
				tt.setup(f, c.ID)
			}
			require.NoError(t, tt.op(f, c.ID))
			assert.Equal(t, tt.status, f.get(c.ID).Status)
			assert.True(t, tt.status.Terminal())

			aliceBal, bobBal := f.balance(alice), f.balance(bob)
			events := len(f.rec.Events())

			requireCode(t, tt.op(f, c.ID), ErrCodeAlreadyProcessed)
			requireCode(t, tt.op(f, c.ID), ErrCodeAlreadyProcessed)
			// Return carries no time guard, so it reaches the status check at any tick.
			requireCode(t, ret(f, c.ID), ErrCodeAlreadyProcessed)

			assert.Zero(t, f.get(c.ID).Quantity)
			assert.Equal(t, aliceBal, f.balance(alice))
			assert.Equal(t, bobBal, f.balance(bob))
			assert.Zero(t, f.balance(custody))
			assert.Len(t, f.rec.Events(), events)
		})
	}
}
