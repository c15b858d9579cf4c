// Package ledger defines the host collaborators the custody engine relies on
// and ships small implementations of them.
//
// The host ledger owns the logical clock and the atomic value-transfer
// primitive. The engine never reimplements either; it only calls through
// these interfaces and treats any transfer error as a hard abort.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/roach88/custody/internal/chamber"
)

// Clock supplies the host's monotonic logical tick for the current request.
type Clock interface {
	CurrentTick() uint64
}

// Transferer moves value between accounts atomically (all-or-nothing).
type Transferer interface {
	MoveValue(ctx context.Context, amount uint64, from, to chamber.AccountID) error
}

// BatchTransferer is implemented by ledgers that can commit several moves as
// one unit. The engine prefers it for multi-leg releases (mediation).
type BatchTransferer interface {
	Transferer
	MoveBatch(ctx context.Context, moves []Move) error
}

// Hasher provides the host's content-addressed digest functions.
type Hasher interface {
	Digest(b []byte) Digest20
	Digest32(b []byte) Digest
}

// SignerRecoverer recovers the account that produced a signature over a
// message digest.
type SignerRecoverer interface {
	RecoverSigner(msg Digest, sig []byte) (chamber.AccountID, error)
}

// Digest is a 32-byte digest.
type Digest [32]byte

// Digest20 is a 20-byte digest.
type Digest20 [20]byte

// String returns the lowercase hex encoding.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// String returns the lowercase hex encoding.
func (d Digest20) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest decodes a 64-character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("parse digest: want %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ErrInsufficientFunds is returned when the source account cannot cover a move.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrTransferRejected is returned by an injected failure.
var ErrTransferRejected = errors.New("transfer rejected")

// TransferError reports a failed MoveValue call.
type TransferError struct {
	Amount uint64
	From   chamber.AccountID
	To     chamber.AccountID
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("move %d from %s to %s: %v", e.Amount, e.From, e.To, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
