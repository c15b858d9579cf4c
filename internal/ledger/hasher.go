package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // HASH160 is defined over RIPEMD-160
	"golang.org/x/crypto/sha3"

	"github.com/roach88/custody/internal/chamber"
)

// StandardHasher implements Hasher.
//
//	Digest   = RIPEMD-160(SHA-256(b))  (20 bytes)
//	Digest32 = SHA3-256(b)             (32 bytes)
type StandardHasher struct{}

// Digest returns the 20-byte HASH160 of b.
func (StandardHasher) Digest(b []byte) Digest20 {
	inner := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(inner[:])
	var d Digest20
	copy(d[:], h.Sum(nil))
	return d
}

// Digest32 returns the SHA3-256 of b.
func (StandardHasher) Digest32(b []byte) Digest {
	return Digest(sha3.Sum256(b))
}

// Ed25519Recoverer implements SignerRecoverer for signatures laid out as
// public key (32 bytes) followed by the ed25519 signature (64 bytes).
//
// Ed25519 cannot recover a key from a signature alone, so the key travels
// with it; "recovery" verifies the signature and derives the account id
// as the hex HASH160 of the public key.
type Ed25519Recoverer struct {
	Hasher Hasher
}

// RecoverSigner verifies sig over msg and returns the signing account.
func (r Ed25519Recoverer) RecoverSigner(msg Digest, sig []byte) (chamber.AccountID, error) {
	want := ed25519.PublicKeySize + ed25519.SignatureSize
	if len(sig) != want {
		return "", fmt.Errorf("recover signer: signature length %d, want %d", len(sig), want)
	}
	pub := ed25519.PublicKey(sig[:ed25519.PublicKeySize])
	if !ed25519.Verify(pub, msg[:], sig[ed25519.PublicKeySize:]) {
		return "", fmt.Errorf("recover signer: signature does not verify")
	}
	return AccountForKey(r.hasher(), pub), nil
}

func (r Ed25519Recoverer) hasher() Hasher {
	if r.Hasher == nil {
		return StandardHasher{}
	}
	return r.Hasher
}

// AccountForKey derives the account id of a public key.
func AccountForKey(h Hasher, pub ed25519.PublicKey) chamber.AccountID {
	d := h.Digest(pub)
	return chamber.AccountID(hex.EncodeToString(d[:]))
}

// SignClaim produces a signature in the layout Ed25519Recoverer expects.
func SignClaim(priv ed25519.PrivateKey, msg Digest) []byte {
	pub := priv.Public().(ed25519.PublicKey)
	out := make([]byte, 0, ed25519.PublicKeySize+ed25519.SignatureSize)
	out = append(out, pub...)
	return append(out, ed25519.Sign(priv, msg[:])...)
}
