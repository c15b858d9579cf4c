package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/custody/internal/audit"
)

// Emit appends an event to the audit log. Store implements audit.Sink.
// The event must already be sealed (non-empty ID).
func (s *Store) Emit(ctx context.Context, ev audit.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("append event seq %d: missing id", ev.Seq)
	}
	fields, err := audit.MarshalCanonical(nonNilFields(ev.Fields))
	if err != nil {
		return fmt.Errorf("append event seq %d: %w", ev.Seq, err)
	}

	var chamberID sql.NullInt64
	if id, ok := ev.Fields["chamber_id"].(uint64); ok {
		chamberID = sql.NullInt64{Int64: int64(id), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (seq, id, request_id, action, caller, tick, chamber_id, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Seq,
		ev.ID,
		ev.RequestID,
		ev.Action,
		ev.Caller,
		int64(ev.Tick),
		chamberID,
		string(fields),
	)
	if err != nil {
		return fmt.Errorf("append event seq %d: %w", ev.Seq, err)
	}
	return nil
}

// ReadEvents returns the whole audit log ordered by seq.
func (s *Store) ReadEvents(ctx context.Context) ([]audit.Event, error) {
	return s.queryEvents(ctx, `
		SELECT seq, id, request_id, action, caller, tick, fields
		FROM events
		ORDER BY seq ASC
	`)
}

// ReadChamberEvents returns the events whose chamber_id field equals id.
func (s *Store) ReadChamberEvents(ctx context.Context, id uint64) ([]audit.Event, error) {
	return s.queryEvents(ctx, `
		SELECT seq, id, request_id, action, caller, tick, fields
		FROM events
		WHERE chamber_id = ?
		ORDER BY seq ASC
	`, int64(id))
}

// LastSeq returns the highest event seq in the log (0 if empty).
// The engine resumes its event sequence from here.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		var (
			ev     audit.Event
			tick   int64
			fields string
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.RequestID, &ev.Action, &ev.Caller, &tick, &fields); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Tick = uint64(tick)
		ev.Fields, err = unmarshalFields(fields)
		if err != nil {
			return nil, fmt.Errorf("event seq %d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func nonNilFields(f audit.Fields) audit.Fields {
	if f == nil {
		return audit.Fields{}
	}
	return f
}

// unmarshalFields parses stored canonical JSON back to Fields.
// Uses json.Number so integers above 2^53 survive; non-negative integers
// come back as uint64, negative ones as int64.
func unmarshalFields(data string) (audit.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}

	out := make(audit.Fields, len(raw))
	for k, v := range raw {
		conv, err := convertNumbers(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

func convertNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return u, nil
		}
		i, err := strconv.ParseInt(val.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", val)
		}
		return i, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			conv, err := convertNumbers(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			conv, err := convertNumbers(item)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}
