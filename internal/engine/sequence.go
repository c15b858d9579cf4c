package engine

import "sync/atomic"

// Sequence numbers audit events.
//
// An operation takes the next value once its event is in the audit log, so
// the log is totally ordered and gap-free. The host tick orders requests in logical time; seq
// orders events, and several events may share one tick.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
// The engine's single-writer design means only the writer calls Next().
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence resuming after start.
// Used when reopening a store that already holds events.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number and increments.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Peek returns the number Next will issue, without issuing it.
func (s *Sequence) Peek() int64 {
	return s.seq.Load() + 1
}

// Current returns the last issued sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
