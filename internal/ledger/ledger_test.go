package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"github.com/roach88/custody/internal/chamber"
)

func TestBook_MoveValue(t *testing.T) {
	ctx := context.Background()
	b := NewBook(map[chamber.AccountID]uint64{"alice": 100})

	require.NoError(t, b.MoveValue(ctx, 40, "alice", "bob"))
	assert.Equal(t, uint64(60), b.Balance("alice"))
	assert.Equal(t, uint64(40), b.Balance("bob"))
	assert.Equal(t, []Move{{Amount: 40, From: "alice", To: "bob"}}, b.Moves())
	assert.Equal(t, map[chamber.AccountID]uint64{"alice": 60, "bob": 40}, b.Balances())
}

func TestBook_InsufficientFundsLeavesBalances(t *testing.T) {
	ctx := context.Background()
	b := NewBook(map[chamber.AccountID]uint64{"alice": 10})

	err := b.MoveValue(ctx, 11, "alice", "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, uint64(11), te.Amount)

	assert.Equal(t, uint64(10), b.Balance("alice"))
	assert.Zero(t, b.Balance("bob"))
	assert.Empty(t, b.Moves())
}

func TestBook_FailureInjection(t *testing.T) {
	ctx := context.Background()
	b := NewBook(map[chamber.AccountID]uint64{"alice": 100})

	b.FailNext(1)
	assert.ErrorIs(t, b.MoveValue(ctx, 1, "alice", "bob"), ErrTransferRejected)
	require.NoError(t, b.MoveValue(ctx, 1, "alice", "bob"))

	b.RejectTo("carol", true)
	assert.ErrorIs(t, b.MoveValue(ctx, 1, "alice", "carol"), ErrTransferRejected)
	b.RejectTo("carol", false)
	require.NoError(t, b.MoveValue(ctx, 1, "alice", "carol"))
}

func TestBook_ZeroAmountIsNoop(t *testing.T) {
	b := NewBook(nil)
	require.NoError(t, b.MoveValue(context.Background(), 0, "nobody", "bob"))
	assert.Empty(t, b.Moves())
}

func TestBook_MoveBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	b := NewBook(map[chamber.AccountID]uint64{"custody": 100})

	b.RejectTo("bob", true)
	err := b.MoveBatch(ctx, []Move{
		{Amount: 40, From: "custody", To: "alice"},
		{Amount: 60, From: "custody", To: "bob"},
	})
	assert.ErrorIs(t, err, ErrTransferRejected)
	assert.Equal(t, uint64(100), b.Balance("custody"))
	assert.Zero(t, b.Balance("alice"))
	assert.Empty(t, b.Moves())

	b.RejectTo("bob", false)
	require.NoError(t, b.MoveBatch(ctx, []Move{
		{Amount: 40, From: "custody", To: "alice"},
		{Amount: 0, From: "custody", To: "carol"},
		{Amount: 60, From: "custody", To: "bob"},
	}))
	assert.Zero(t, b.Balance("custody"))
	assert.Len(t, b.Moves(), 2)
}

func TestBook_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBook(map[chamber.AccountID]uint64{"alice": 5})
	assert.ErrorIs(t, b.MoveValue(ctx, 1, "alice", "bob"), context.Canceled)
}

func TestBook_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")

	missing, err := LoadBook(path)
	require.NoError(t, err)
	assert.Zero(t, missing.Balance("alice"))

	b := NewBook(map[chamber.AccountID]uint64{"alice": 7, "bob": 9})
	require.NoError(t, b.Save(path))

	loaded, err := LoadBook(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.Balance("alice"))
	assert.Equal(t, uint64(9), loaded.Balance("bob"))
}

func TestStandardHasher_Sizes(t *testing.T) {
	h := StandardHasher{}
	d20 := h.Digest([]byte("abc"))
	d32 := h.Digest32([]byte("abc"))

	assert.Len(t, d20.String(), 40)
	assert.Len(t, d32.String(), 64)
	// SHA3-256("abc")
	assert.Equal(t, "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532", d32.String())
	assert.Equal(t, d20, h.Digest([]byte("abc")))
	assert.NotEqual(t, d20, h.Digest([]byte("abd")))
}

func TestParseDigest(t *testing.T) {
	d := StandardHasher{}.Digest32([]byte("x"))
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("abcd")
	assert.Error(t, err)
	_, err = ParseDigest("zz")
	assert.Error(t, err)
}

func TestEd25519Recoverer(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := StandardHasher{}.Digest32([]byte("release chamber 1"))
	sig := SignClaim(priv, msg)

	r := Ed25519Recoverer{}
	signer, err := r.RecoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, AccountForKey(StandardHasher{}, pub), signer)

	other := StandardHasher{}.Digest32([]byte("something else"))
	_, err = r.RecoverSigner(other, sig)
	assert.Error(t, err)

	_, err = r.RecoverSigner(msg, sig[:10])
	assert.Error(t, err)
}
