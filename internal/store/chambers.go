package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/custody/internal/chamber"
)

// ErrNotFound is returned when no chamber row exists for an id.
var ErrNotFound = errors.New("chamber not found")

// Tx is one store transaction. Obtain it through Store.Update or Store.View.
type Tx struct {
	tx *sql.Tx
}

// Counter returns the highest chamber id ever assigned (0 on a fresh store).
func (t *Tx) Counter(ctx context.Context) (uint64, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = 'chamber'`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return uint64(v), nil
}

// Get returns the chamber with the given id.
// Returns ErrNotFound (wrapped) if the row does not exist.
func (t *Tx) Get(ctx context.Context, id uint64) (chamber.Chamber, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, initiator, beneficiary, item_id, quantity, status, creation_tick, expiration_tick
		FROM chambers
		WHERE id = ?
	`, int64(id))

	c, err := scanChamber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chamber.Chamber{}, fmt.Errorf("get chamber %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return chamber.Chamber{}, fmt.Errorf("get chamber %d: %w", id, err)
	}
	return c, nil
}

// Insert assigns the next id to c, writes it and advances the counter.
// The id field of c is ignored. Returns the stored record.
func (t *Tx) Insert(ctx context.Context, c chamber.Chamber) (chamber.Chamber, error) {
	counter, err := t.Counter(ctx)
	if err != nil {
		return chamber.Chamber{}, err
	}
	next, ok := chamber.AddQuantity(counter, 1)
	if !ok {
		return chamber.Chamber{}, fmt.Errorf("insert chamber: id space exhausted")
	}
	c.ID = next

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO chambers
		(id, initiator, beneficiary, item_id, quantity, status, creation_tick, expiration_tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(c.ID),
		string(c.Initiator),
		string(c.Beneficiary),
		int64(c.ItemID),
		int64(c.Quantity),
		string(c.Status),
		int64(c.CreatedAt),
		int64(c.ExpiresAt),
	)
	if err != nil {
		return chamber.Chamber{}, fmt.Errorf("insert chamber %d: %w", c.ID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `UPDATE counters SET value = ? WHERE name = 'chamber'`, int64(next)); err != nil {
		return chamber.Chamber{}, fmt.Errorf("advance counter: %w", err)
	}
	return c, nil
}

// Put replaces the full row of an existing chamber.
// Every column is written; there are no partial updates.
func (t *Tx) Put(ctx context.Context, c chamber.Chamber) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE chambers SET
			initiator = ?,
			beneficiary = ?,
			item_id = ?,
			quantity = ?,
			status = ?,
			creation_tick = ?,
			expiration_tick = ?
		WHERE id = ?
	`,
		string(c.Initiator),
		string(c.Beneficiary),
		int64(c.ItemID),
		int64(c.Quantity),
		string(c.Status),
		int64(c.CreatedAt),
		int64(c.ExpiresAt),
		int64(c.ID),
	)
	if err != nil {
		return fmt.Errorf("put chamber %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put chamber %d: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("put chamber %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// List returns every chamber ordered by id.
func (t *Tx) List(ctx context.Context) ([]chamber.Chamber, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, initiator, beneficiary, item_id, quantity, status, creation_tick, expiration_tick
		FROM chambers
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chambers: %w", err)
	}
	defer rows.Close()

	chambers := []chamber.Chamber{}
	for rows.Next() {
		c, err := scanChamber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chamber: %w", err)
		}
		chambers = append(chambers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chambers: %w", err)
	}
	return chambers, nil
}

// Get reads one chamber outside of an engine operation.
func (s *Store) Get(ctx context.Context, id uint64) (chamber.Chamber, error) {
	var c chamber.Chamber
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		c, err = tx.Get(ctx, id)
		return err
	})
	return c, err
}

// Counter reads the id counter outside of an engine operation.
func (s *Store) Counter(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.Counter(ctx)
		return err
	})
	return n, err
}

// List reads every chamber outside of an engine operation.
func (s *Store) List(ctx context.Context) ([]chamber.Chamber, error) {
	var out []chamber.Chamber
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.List(ctx)
		return err
	})
	return out, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChamber(r rowScanner) (chamber.Chamber, error) {
	var (
		id, item, quantity, created, expires int64
		initiator, beneficiary, status       string
	)
	if err := r.Scan(&id, &initiator, &beneficiary, &item, &quantity, &status, &created, &expires); err != nil {
		return chamber.Chamber{}, err
	}
	return chamber.Chamber{
		ID:          uint64(id),
		Initiator:   chamber.AccountID(initiator),
		Beneficiary: chamber.AccountID(beneficiary),
		ItemID:      uint64(item),
		Quantity:    uint64(quantity),
		Status:      chamber.Status(status),
		CreatedAt:   uint64(created),
		ExpiresAt:   uint64(expires),
	}, nil
}
