// Package disclosure computes selective-disclosure roots and relays signature
// claims. Neither function compares its output against a stored target;
// callers decide what, if anything, the result is checked against.
package disclosure

import (
	"errors"
	"fmt"

	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/ledger"
)

// DefaultMaxPath is the longest path ComputeDisclosureRoot accepts by default.
const DefaultMaxPath = 10

var (
	// ErrEmptyPath is returned for a path with no elements.
	ErrEmptyPath = errors.New("disclosure path is empty")

	// ErrPathTooLong is returned when the path exceeds the configured limit.
	ErrPathTooLong = errors.New("disclosure path too long")
)

// ComputeDisclosureRoot folds path into seed left to right:
//
//	acc = seed
//	acc = Digest32(acc || element)   for each element
//
// The path must hold between 1 and DefaultMaxPath elements.
func ComputeDisclosureRoot(h ledger.Hasher, seed ledger.Digest, path []ledger.Digest) (ledger.Digest, error) {
	return ComputeDisclosureRootN(h, seed, path, DefaultMaxPath)
}

// ComputeDisclosureRootN is ComputeDisclosureRoot with an explicit path limit.
func ComputeDisclosureRootN(h ledger.Hasher, seed ledger.Digest, path []ledger.Digest, maxPath int) (ledger.Digest, error) {
	if len(path) == 0 {
		return ledger.Digest{}, ErrEmptyPath
	}
	if len(path) > maxPath {
		return ledger.Digest{}, fmt.Errorf("%w: %d elements, limit %d", ErrPathTooLong, len(path), maxPath)
	}

	acc := seed
	buf := make([]byte, 0, 2*len(acc))
	for _, el := range path {
		buf = append(buf[:0], acc[:]...)
		buf = append(buf, el[:]...)
		acc = h.Digest32(buf)
	}
	return acc, nil
}

// Claim is the outcome of checking a caller-declared signatory.
type Claim struct {
	MessageDigest ledger.Digest
	Declared      chamber.AccountID
	Recovered     chamber.AccountID
	Matched       bool
	// RecoveryErr is set when the signer could not be recovered at all.
	RecoveryErr error
}

// CheckSignatureClaim digests message, recovers its signer and compares it
// with declared. A recovery failure is reported in the Claim, not returned,
// since the result only feeds the audit trail.
func CheckSignatureClaim(h ledger.Hasher, r ledger.SignerRecoverer, message, signature []byte, declared chamber.AccountID) Claim {
	claim := Claim{
		MessageDigest: h.Digest32(message),
		Declared:      declared,
	}
	signer, err := r.RecoverSigner(claim.MessageDigest, signature)
	if err != nil {
		claim.RecoveryErr = err
		return claim
	}
	claim.Recovered = signer
	claim.Matched = signer == declared
	return claim
}
