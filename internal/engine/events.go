package engine

import (
	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
)

// Audit field names. Consumers of the event log key on these; renaming one
// is a breaking change.
const (
	FieldChamberID          = "chamber_id"
	FieldInitiator          = "initiator"
	FieldBeneficiary        = "beneficiary"
	FieldItemID             = "item_id"
	FieldQuantity           = "quantity"
	FieldStatus             = "status"
	FieldCreationTick       = "creation_tick"
	FieldExpirationTick     = "expiration_tick"
	FieldReleased           = audit.FieldReleased
	FieldRecipient          = "recipient"
	FieldExtension          = "extension"
	FieldPreviousExpiration = "previous_expiration"
	FieldPreviousInitiator  = "previous_initiator"
	FieldNewInitiator       = "new_initiator"
	FieldAvailableAt        = "available_at"
	FieldPercentages        = "percentages"
	FieldChildren           = "children"
	FieldChildQuantities    = "child_quantities"
	FieldResidual           = "residual"
	FieldSources            = "sources"
	FieldAllocation         = "allocation"
	FieldInitiatorPortion   = "initiator_portion"
	FieldBeneficiaryPortion = "beneficiary_portion"
	FieldFeePercentage      = "fee_percentage"
	FieldFeeAmount          = "fee_amount"
	FieldAdjustedQuantity   = "adjusted_quantity"
	FieldSeed               = "seed"
	FieldPath               = "path"
	FieldRoot               = "root"
	FieldMessageDigest      = "message_digest"
	FieldDeclaredSignatory  = "declared_signatory"
	FieldRecoveredSignatory = "recovered_signatory"
	FieldMatched            = "matched"
	FieldRecoveryError      = "recovery_error"
)

// recordFields describes a freshly created chamber.
func recordFields(c chamber.Chamber) audit.Fields {
	return audit.Fields{
		FieldChamberID:      c.ID,
		FieldInitiator:      string(c.Initiator),
		FieldBeneficiary:    string(c.Beneficiary),
		FieldItemID:         c.ItemID,
		FieldQuantity:       c.Quantity,
		FieldStatus:         string(c.Status),
		FieldCreationTick:   c.CreatedAt,
		FieldExpirationTick: c.ExpiresAt,
	}
}

// statusFields reports a transition that moves no value.
func statusFields(c chamber.Chamber) audit.Fields {
	return audit.Fields{
		FieldChamberID: c.ID,
		FieldStatus:    string(c.Status),
	}
}

// releaseFields reports a transition that pays the full quantity to one party.
func releaseFields(c chamber.Chamber, to chamber.AccountID, amount uint64) audit.Fields {
	return audit.Fields{
		FieldChamberID: c.ID,
		FieldStatus:    string(c.Status),
		FieldRecipient: string(to),
		FieldReleased:  amount,
	}
}

func ids(cs []chamber.Chamber) []uint64 {
	out := make([]uint64, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func quantities(cs []chamber.Chamber) []uint64 {
	out := make([]uint64, len(cs))
	for i, c := range cs {
		out[i] = c.Quantity
	}
	return out
}
