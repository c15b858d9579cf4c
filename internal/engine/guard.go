package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/store"
)

// role is a caller's relationship to a chamber. A caller may hold several.
type role uint8

const (
	roleGuardian role = 1 << iota
	roleInitiator
	roleBeneficiary
)

// window is the time predicate of a guard.
type window uint8

const (
	// anytime applies no time check.
	anytime window = iota
	// untilExpiry admits now <= expiration, else TIMEOUT.
	untilExpiry
	// afterExpiry admits now > expiration, else TOO_EARLY.
	afterExpiry
	// afterRetrievalDelay admits now >= creation + RetrievalDelay, else TOO_EARLY.
	afterRetrievalDelay
)

// guard is one row of the transition table.
type guard struct {
	roles role
	from  []chamber.Status
	when  window
}

var (
	pendingOnly       = []chamber.Status{chamber.StatusPending}
	pendingOrAccepted = []chamber.Status{chamber.StatusPending, chamber.StatusAccepted}
	challengedOnly    = []chamber.Status{chamber.StatusChallenged}
)

// guards is the transition table for every operation that addresses an
// existing chamber. Creation and control operations have no row.
var guards = map[chamber.Op]guard{
	chamber.OpFinalize:         {roleGuardian | roleInitiator, pendingOnly, untilExpiry},
	chamber.OpReturn:           {roleGuardian, pendingOnly, anytime},
	chamber.OpNullify:          {roleInitiator, pendingOnly, untilExpiry},
	chamber.OpChallenge:        {roleInitiator | roleBeneficiary, pendingOrAccepted, untilExpiry},
	chamber.OpMediate:          {roleGuardian, challengedOnly, untilExpiry},
	chamber.OpCancelChallenge:  {roleInitiator, challengedOnly, anytime},
	chamber.OpLock:             {roleGuardian | roleInitiator | roleBeneficiary, pendingOrAccepted, anytime},
	chamber.OpCollectExpired:   {roleInitiator | roleGuardian, pendingOrAccepted, afterExpiry},
	chamber.OpProlong:          {roleInitiator | roleBeneficiary | roleGuardian, pendingOrAccepted, anytime},
	chamber.OpTransferControl:  {roleInitiator, pendingOrAccepted, anytime},
	chamber.OpRequestRetrieval: {roleInitiator, pendingOnly, anytime},
	chamber.OpProcessRetrieval: {roleInitiator | roleGuardian, []chamber.Status{chamber.StatusRetrievalPending}, afterRetrievalDelay},
	chamber.OpFragment:         {roleInitiator, pendingOnly, anytime},
	chamber.OpMerge:            {roleInitiator, pendingOnly, anytime},
	chamber.OpAdjustFee:        {roleGuardian, pendingOnly, anytime},
}

// rolesOf returns every role caller holds on c.
func (e *Engine) rolesOf(c chamber.Chamber, caller chamber.AccountID) role {
	var r role
	if caller == e.cfg.Guardian {
		r |= roleGuardian
	}
	if caller == c.Initiator {
		r |= roleInitiator
	}
	if caller == c.Beneficiary {
		r |= roleBeneficiary
	}
	return r
}

// admit evaluates the guard row for op against chamber id, in order:
// identifier range, existence, caller role, status, time. It returns the
// current record when every check passes.
func (e *Engine) admit(ctx context.Context, tx *store.Tx, op chamber.Op, caller chamber.AccountID, id, now uint64) (chamber.Chamber, error) {
	g, ok := guards[op]
	if !ok {
		return chamber.Chamber{}, fmt.Errorf("no guard for operation %s", op)
	}

	counter, err := tx.Counter(ctx)
	if err != nil {
		return chamber.Chamber{}, err
	}
	if id > counter {
		return chamber.Chamber{}, newError(ErrCodeInvalidIdentifier, op, id, "id %d exceeds counter %d", id, counter)
	}

	c, err := tx.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return chamber.Chamber{}, newError(ErrCodeNotFound, op, id, "no chamber with id %d", id)
	}
	if err != nil {
		return chamber.Chamber{}, err
	}

	if e.rolesOf(c, caller)&g.roles == 0 {
		return chamber.Chamber{}, newError(ErrCodePermissionDenied, op, id, "caller %s may not %s", caller, op)
	}

	if !slices.Contains(g.from, c.Status) {
		return chamber.Chamber{}, newError(ErrCodeAlreadyProcessed, op, id, "status %s does not admit %s", c.Status, op)
	}

	if err := e.checkWindow(g.when, op, c, now); err != nil {
		return chamber.Chamber{}, err
	}
	return c, nil
}

func (e *Engine) checkWindow(w window, op chamber.Op, c chamber.Chamber, now uint64) error {
	switch w {
	case untilExpiry:
		if now > c.ExpiresAt {
			return newError(ErrCodeTimeout, op, c.ID, "tick %d is past expiration %d", now, c.ExpiresAt)
		}
	case afterExpiry:
		if now <= c.ExpiresAt {
			return newError(ErrCodeTooEarly, op, c.ID, "tick %d is not past expiration %d", now, c.ExpiresAt)
		}
	case afterRetrievalDelay:
		at, ok := chamber.AddTicks(c.CreatedAt, e.cfg.RetrievalDelay)
		if !ok || now < at {
			return newError(ErrCodeTooEarly, op, c.ID, "retrieval available at tick %d, now %d", at, now)
		}
	}
	return nil
}
