package audit

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// DomainEvent separates event ids from every other digest in the system.
// The version suffix allows a future algorithm change.
const DomainEvent = "custody/event/v1"

// Canonical returns the canonical JSON of an event without its id.
func Canonical(ev Event) ([]byte, error) {
	fields := ev.Fields
	if fields == nil {
		fields = Fields{}
	}
	return MarshalCanonical(map[string]any{
		"action":     ev.Action,
		"caller":     ev.Caller,
		"fields":     fields,
		"request_id": ev.RequestID,
		"seq":        ev.Seq,
		"tick":       ev.Tick,
	})
}

// EventID computes the content-addressed id of an event.
// Format: hex(SHA3-256(domain || 0x00 || canonical))
func EventID(ev Event) (string, error) {
	canonical, err := Canonical(ev)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	h := sha3.New256()
	h.Write([]byte(DomainEvent))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal fills in ev.ID.
func Seal(ev Event) (Event, error) {
	id, err := EventID(ev)
	if err != nil {
		return ev, err
	}
	ev.ID = id
	return ev, nil
}
