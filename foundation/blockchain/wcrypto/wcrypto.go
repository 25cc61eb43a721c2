// Package wcrypto provides the cryptographic primitives required by the
// blockchain core: BLAKE2b-512 hashing and Ed25519 signing/verification.
package wcrypto

import (
	"crypto/ed25519"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"
)

// Sizes of the fixed-width values used throughout the core (spec §3).
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.SeedSize
	SignatureSize  = ed25519.SignatureSize
	HashSize       = 64
)

// PublicKey, PrivateKey and Signature are the fixed-width byte arrays the
// wire format and aux structures carry around. Using arrays rather than
// slices keeps BlockAux and BlockchainParams free of hidden aliasing.
type PublicKey [PublicKeySize]byte
type PrivateKey [PrivateKeySize]byte
type Signature [SignatureSize]byte
type Hash [HashSize]byte

// ErrInvalidSignature is returned by Verify when the signature does not
// validate against the claimed public key.
var ErrInvalidSignature = errors.New("wcrypto: invalid signature")

// Hash512 computes the BLAKE2b-512 digest of data with an empty key, as
// required by spec §4.1 ("fixed cryptographic hash (BLAKE2b-512 ...) with
// empty key. Deterministic; no salt.").
func Hash512(data []byte) Hash {
	sum := blake2b.Sum512(data)
	return Hash(sum)
}

// Sign signs data with priv using Ed25519's deterministic (RFC 8032) nonce
// derivation. The standard library's crypto/ed25519 always derives its
// per-signature nonce deterministically from the message and the private
// key; there is no random-nonce code path to misuse here, which is exactly
// the fix spec §9 calls for.
func Sign(priv PrivateKey, data []byte) Signature {
	key := ed25519.NewKeyFromSeed(priv[:])
	sig := ed25519.Sign(key, data)

	var out Signature
	copy(out[:], sig)
	return out
}

// Verify reports whether sig is a valid Ed25519 signature over data by pub.
func Verify(pub PublicKey, data []byte, sig Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), data, sig[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicKeyFromSeed derives the Ed25519 public key for a given private seed.
// Used by genesis key generation and by tests that need matching key pairs.
func PublicKeyFromSeed(priv PrivateKey) PublicKey {
	key := ed25519.NewKeyFromSeed(priv[:])
	pub := key.Public().(ed25519.PublicKey)

	var out PublicKey
	copy(out[:], pub)
	return out
}

// HexString renders a fixed-width value as a "0x..."-prefixed hex string
// for logs and CLI dumps, mirroring the teacher's use of hexutil.Encode in
// signature.SignatureString.
func HexString(b []byte) string {
	return hexutil.Encode(b)
}

// IsZero reports whether h is the all-zero hash, the value chain.Ingest
// passes as the prior hash when the prior block is not in the arena.
func (h Hash) IsZero() bool {
	return h == Hash{}
}
