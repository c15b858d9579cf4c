package chamber

// AccountID identifies a ledger account (initiator, beneficiary, guardian, custody).
type AccountID string

// Status is the lifecycle state of a chamber.
type Status string

const (
	StatusPending          Status = "pending"
	StatusTimelocked       Status = "timelocked"
	StatusAccepted         Status = "accepted"
	StatusChallenged       Status = "challenged"
	StatusMediated         Status = "mediated"
	StatusLocked           Status = "locked"
	StatusFragmented       Status = "fragmented"
	StatusMerged           Status = "merged"
	StatusCompleted        Status = "completed"
	StatusReturned         Status = "returned"
	StatusNullified        Status = "nullified"
	StatusExpired          Status = "expired"
	StatusRetrieved        Status = "retrieved"
	StatusRetrievalPending Status = "retrieval-pending"
	StatusActive           Status = "active"
)

// AllStatuses lists every status in declaration order.
var AllStatuses = []Status{
	StatusPending,
	StatusTimelocked,
	StatusAccepted,
	StatusChallenged,
	StatusMediated,
	StatusLocked,
	StatusFragmented,
	StatusMerged,
	StatusCompleted,
	StatusReturned,
	StatusNullified,
	StatusExpired,
	StatusRetrieved,
	StatusRetrievalPending,
	StatusActive,
}

// terminalStatuses are statuses reached by moving value out of custody.
var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusReturned:  true,
	StatusNullified: true,
	StatusExpired:   true,
	StatusMediated:  true,
	StatusRetrieved: true,
}

// Terminal reports whether value has already left custody for this status.
func (s Status) Terminal() bool {
	return terminalStatuses[s]
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// GenericItem is the item tag of a plain vault.
const GenericItem uint64 = 0

// Chamber is a single escrow record.
type Chamber struct {
	ID          uint64    `json:"id" yaml:"id"`
	Initiator   AccountID `json:"initiator" yaml:"initiator"`
	Beneficiary AccountID `json:"beneficiary" yaml:"beneficiary"`
	ItemID      uint64    `json:"item_id" yaml:"item_id"`
	Quantity    uint64    `json:"quantity" yaml:"quantity"`
	Status      Status    `json:"status" yaml:"status"`
	CreatedAt   uint64    `json:"creation_tick" yaml:"creation_tick"`
	ExpiresAt   uint64    `json:"expiration_tick" yaml:"expiration_tick"`
}

// WithStatus returns a copy of c with the status replaced.
func (c Chamber) WithStatus(s Status) Chamber {
	c.Status = s
	return c
}

// WithQuantity returns a copy of c with the quantity replaced.
func (c Chamber) WithQuantity(q uint64) Chamber {
	c.Quantity = q
	return c
}

// WithExpiration returns a copy of c with the expiration tick replaced.
func (c Chamber) WithExpiration(tick uint64) Chamber {
	c.ExpiresAt = tick
	return c
}

// WithInitiator returns a copy of c with the initiator replaced.
func (c Chamber) WithInitiator(id AccountID) Chamber {
	c.Initiator = id
	return c
}

// Drained transitions to s and zeroes the quantity in one step.
// Used by every operation that moves the full balance out of the record.
func (c Chamber) Drained(s Status) Chamber {
	return c.WithStatus(s).WithQuantity(0)
}
