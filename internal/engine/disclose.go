package engine

import (
	"context"
	"errors"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/disclosure"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
)

// Disclose computes the disclosure root of seed and path and records it in
// the audit log. Any caller may disclose; no state changes.
func (e *Engine) Disclose(ctx context.Context, caller chamber.AccountID, seed ledger.Digest, path []ledger.Digest) (ledger.Digest, error) {
	root, _, err := e.disclose(ctx, caller, seed, path)
	return root, err
}

func (e *Engine) disclose(ctx context.Context, caller chamber.AccountID, seed ledger.Digest, path []ledger.Digest) (ledger.Digest, audit.Event, error) {
	const op = chamber.OpDisclose
	var root ledger.Digest
	ev, err := e.run(ctx, op, caller, func(_ *store.Tx, _ uint64) (audit.Fields, error) {
		var err error
		root, err = disclosure.ComputeDisclosureRootN(e.hasher, seed, path, e.cfg.MaxDisclosurePath)
		if errors.Is(err, disclosure.ErrEmptyPath) || errors.Is(err, disclosure.ErrPathTooLong) {
			return nil, invalidArg(ErrCodeInvalidArgument, op, 0, "path-length", "%v", err)
		}
		if err != nil {
			return nil, err
		}

		hexPath := make([]string, len(path))
		for i, d := range path {
			hexPath[i] = d.String()
		}
		return audit.Fields{
			FieldSeed: seed.String(),
			FieldPath: hexPath,
			FieldRoot: root.String(),
		}, nil
	})
	return root, ev, err
}

// VerifySignatureClaim checks whether signature over message recovers to
// declared and records the outcome. The result gates nothing.
func (e *Engine) VerifySignatureClaim(ctx context.Context, caller chamber.AccountID, message, signature []byte, declared chamber.AccountID) (disclosure.Claim, error) {
	c, _, err := e.verifySignatureClaim(ctx, caller, message, signature, declared)
	return c, err
}

func (e *Engine) verifySignatureClaim(ctx context.Context, caller chamber.AccountID, message, signature []byte, declared chamber.AccountID) (disclosure.Claim, audit.Event, error) {
	const op = chamber.OpVerifySignature
	var claim disclosure.Claim
	ev, err := e.run(ctx, op, caller, func(_ *store.Tx, _ uint64) (audit.Fields, error) {
		if declared == "" {
			return nil, invalidArg(ErrCodeInvalidParty, op, 0, "party-empty", "declared signatory is required")
		}
		claim = disclosure.CheckSignatureClaim(e.hasher, e.recoverer, message, signature, declared)

		f := audit.Fields{
			FieldMessageDigest:     claim.MessageDigest.String(),
			FieldDeclaredSignatory: string(claim.Declared),
			FieldMatched:           claim.Matched,
		}
		if claim.RecoveryErr != nil {
			f[FieldRecoveryError] = claim.RecoveryErr.Error()
		} else {
			f[FieldRecoveredSignatory] = string(claim.Recovered)
		}
		return f, nil
	})
	return claim, ev, err
}
