package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
	"github.com/roach88/custody/internal/testutil"
)

const (
	alice    chamber.AccountID = "alice"
	bob      chamber.AccountID = "bob"
	carol    chamber.AccountID = "carol"
	mallory  chamber.AccountID = "mallory"
	guardian chamber.AccountID = "guardian"
	custody  chamber.AccountID = "custody"

	startingBalance uint64 = 100_000
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
	book  *ledger.Book
	clock *testutil.ManualClock
	rec   *audit.Recorder
	eng   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, config.Default())
}

func newFixtureWith(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: s,
		book: ledger.NewBook(map[chamber.AccountID]uint64{
			alice: startingBalance,
			carol: startingBalance,
		}),
		clock: testutil.NewManualClock(0),
		rec:   audit.NewRecorder(),
	}
	f.eng, err = New(f.ctx, s, f.book, f.clock, cfg,
		WithSink(f.rec),
		WithRequestIDs(testutil.NewSequentialIDs("t")),
	)
	require.NoError(t, err)
	return f
}

// vault creates an alice -> bob vault at the current tick.
func (f *fixture) vault(quantity, duration uint64) chamber.Chamber {
	f.t.Helper()
	c, err := f.eng.CreateVault(f.ctx, alice, bob, quantity, duration)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) get(id uint64) chamber.Chamber {
	f.t.Helper()
	c, err := f.store.Get(f.ctx, id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) balance(id chamber.AccountID) uint64 {
	return f.book.Balance(id)
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, CodeOf(err), "error: %v", err)
}

func requireReason(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	requireCode(t, err, code)
	assert.Equal(t, reason, ReasonOf(err), "error: %v", err)
}
