package ledger

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/custody/internal/chamber"
)

// Book is an in-memory balance sheet implementing Transferer and BatchTransferer.
//
// It stands in for the host ledger in tests, scenarios and the CLI. Moves are
// all-or-nothing: a failed move leaves both balances untouched.
//
// Thread-safety: Book is safe for concurrent use via internal mutex.
type Book struct {
	mu       sync.Mutex
	balances map[chamber.AccountID]uint64
	rejects  map[chamber.AccountID]bool
	failLeft int
	moves    []Move
}

// Move records one successful transfer.
type Move struct {
	Amount uint64            `yaml:"amount"`
	From   chamber.AccountID `yaml:"from"`
	To     chamber.AccountID `yaml:"to"`
}

// NewBook creates a book seeded with the given balances.
func NewBook(balances map[chamber.AccountID]uint64) *Book {
	b := &Book{
		balances: make(map[chamber.AccountID]uint64, len(balances)),
		rejects:  make(map[chamber.AccountID]bool),
	}
	for id, v := range balances {
		b.balances[id] = v
	}
	return b
}

// MoveValue debits from and credits to. A zero amount is a no-op.
func (b *Book) MoveValue(ctx context.Context, amount uint64, from, to chamber.AccountID) error {
	return b.MoveBatch(ctx, []Move{{Amount: amount, From: from, To: to}})
}

// MoveBatch applies every move or none of them. Implements BatchTransferer.
func (b *Book) MoveBatch(ctx context.Context, moves []Move) error {
	if err := ctx.Err(); err != nil {
		m := first(moves)
		return &TransferError{Amount: m.Amount, From: m.From, To: m.To, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	scratch := make(map[chamber.AccountID]uint64, len(b.balances))
	for id, v := range b.balances {
		scratch[id] = v
	}
	var applied []Move
	for _, m := range moves {
		if err := b.apply(scratch, m); err != nil {
			return err
		}
		if m.Amount > 0 {
			applied = append(applied, m)
		}
	}

	b.balances = scratch
	b.moves = append(b.moves, applied...)
	return nil
}

// apply performs one move against bal. Caller holds b.mu.
func (b *Book) apply(bal map[chamber.AccountID]uint64, m Move) error {
	if b.failLeft > 0 {
		b.failLeft--
		return &TransferError{Amount: m.Amount, From: m.From, To: m.To, Err: ErrTransferRejected}
	}
	if b.rejects[m.To] {
		return &TransferError{Amount: m.Amount, From: m.From, To: m.To, Err: ErrTransferRejected}
	}
	if m.Amount == 0 {
		return nil
	}
	if bal[m.From] < m.Amount {
		return &TransferError{Amount: m.Amount, From: m.From, To: m.To, Err: ErrInsufficientFunds}
	}
	credited, ok := chamber.AddQuantity(bal[m.To], m.Amount)
	if !ok {
		return &TransferError{Amount: m.Amount, From: m.From, To: m.To, Err: fmt.Errorf("balance overflow")}
	}
	bal[m.From] -= m.Amount
	bal[m.To] = credited
	return nil
}

func first(moves []Move) Move {
	if len(moves) == 0 {
		return Move{}
	}
	return moves[0]
}

// Balance returns the balance of an account (0 if unknown).
func (b *Book) Balance(id chamber.AccountID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[id]
}

// Balances returns a copy of every known balance.
func (b *Book) Balances() map[chamber.AccountID]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[chamber.AccountID]uint64, len(b.balances))
	for id, v := range b.balances {
		out[id] = v
	}
	return out
}

// Moves returns a copy of the successful transfers in order.
func (b *Book) Moves() []Move {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Move, len(b.moves))
	copy(out, b.moves)
	return out
}

// FailNext makes the next n MoveValue calls fail with ErrTransferRejected.
func (b *Book) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLeft = n
}

// RejectTo makes every move credited to id fail until cleared.
func (b *Book) RejectTo(id chamber.AccountID, reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reject {
		b.rejects[id] = true
		return
	}
	delete(b.rejects, id)
}

// bookFile is the YAML layout used by LoadBook and Save.
type bookFile struct {
	Balances map[chamber.AccountID]uint64 `yaml:"balances"`
}

// LoadBook reads balances from a YAML file. A missing file yields an empty book.
func LoadBook(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewBook(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	var f bookFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	return NewBook(f.Balances), nil
}

// Save writes the balances to a YAML file. yaml.v3 emits map keys sorted.
func (b *Book) Save(path string) error {
	b.mu.Lock()
	f := bookFile{Balances: make(map[chamber.AccountID]uint64, len(b.balances))}
	for id, v := range b.balances {
		f.Balances[id] = v
	}
	b.mu.Unlock()

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger %s: %w", path, err)
	}
	return nil
}
