package block

import (
	"errors"
	"fmt"

	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
	"golang.org/x/crypto/blake2b"
)

// ErrOidMismatch is returned by SetOrVerifyOid when a recomputed hash/oid
// does not match the value already stored in aux.
var ErrOidMismatch = errors.New("block: hash/oid mismatch")

// ErrMissingPrivateKey is returned by SignOrVerify when asked to sign
// without a private key.
var ErrMissingPrivateKey = errors.New("block: missing private key for signing")

// ErrWitnessOutOfRange is returned when the wire header names a witness
// index outside the block's signing-key table.
var ErrWitnessOutOfRange = errors.New("block: witness index out of range")

// Block is the immutable object (header + payload) paired with its mutable
// aux side-car (spec §3, §4.1).
type Block struct {
	Header  Header
	Payload []byte
	Aux     *BlockAux
}

// Size returns the total object size: header plus payload.
func (b *Block) Size() int {
	return headerSize + len(b.Payload)
}

// Tag returns the object-framework tag used to distinguish blocks from
// transactions.
func (b *Block) Tag() uint8 {
	return ObjTagBlock
}

// HasTx reports whether the block carries any transactions.
func (b *Block) HasTx() bool {
	return len(b.Payload) > 0
}

// bytes returns the full wire representation (header + payload) that
// CalcHash hashes over.
func (b *Block) bytes() []byte {
	buf := make([]byte, 0, b.Size())
	buf = append(buf, b.Header.Encode()...)
	buf = append(buf, b.Payload...)
	return buf
}

// Encode returns the packed wire representation of the block (header then
// payload), the same bytes stored in the persistent chain at this block's
// level.
func (b *Block) Encode() []byte {
	return b.bytes()
}

// DecodeBlock parses a packed wire block (as produced by Encode) back into
// a Block with a fresh, unattached Aux. Callers are responsible for
// re-deriving Aux (ChainToPriorBlock/SetOrVerifyOid) or restoring it from
// the separately-stored aux slot.
func DecodeBlock(buf []byte) (*Block, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header:  h,
		Payload: append([]byte(nil), buf[headerSize:]...),
		Aux:     NewBlockAux(),
	}, nil
}

// CalcHash computes the block hash over header+payload using BLAKE2b-512
// with an empty key. It is deterministic: two blocks with identical bytes
// hash identically (spec §4.1, testable property 1).
func (b *Block) CalcHash() wcrypto.Hash {
	return wcrypto.Hash512(b.bytes())
}

// CalcOid derives the object id from a block hash via a deterministic
// BLAKE2b-256 rehash (spec §4.1; oid size/derivation is otherwise an
// object-framework concern this core treats as opaque).
func CalcOid(hash wcrypto.Hash) Oid {
	return Oid(blake2b.Sum256(hash[:]))
}

// SetOrVerifyOid computes the block's hash and oid. If bset is true, the
// computed values are stored into aux. Otherwise the stored values are
// recomputed and compared, failing on mismatch (spec §4.1).
func (b *Block) SetOrVerifyOid(bset bool) error {
	hash := b.CalcHash()
	oid := CalcOid(hash)

	if bset {
		b.Aux.Hash = hash
		b.Aux.Oid = oid
		return nil
	}

	if b.Aux.Hash != hash || b.Aux.Oid != oid {
		return ErrOidMismatch
	}

	return nil
}

// SignOrVerify serializes the signed-data preimage and either signs it with
// priv (verify == false) or verifies the header signature against the
// signing key on record for this block's witness (verify == true). Signing
// may only be invoked by the witness subsystem; verification is required
// for every ingested block before it may enter the chain (spec §4.1). The
// "this block hash" in the preimage is computed with the header signature
// zeroed, so writing the signature does not change what it signs.
func (b *Block) SignOrVerify(verify bool, priv *wcrypto.PrivateKey, priorHash wcrypto.Hash) error {
	unsigned := *b
	unsigned.Header.Signature = wcrypto.Signature{}
	thisHash := unsigned.CalcHash()
	preimage := SignedPreimage(priorHash, thisHash, uint32(b.Size()), b.Header.Witness)

	if !verify {
		if priv == nil {
			return ErrMissingPrivateKey
		}
		b.Header.Signature = wcrypto.Sign(*priv, preimage)
		return nil
	}

	if int(b.Header.Witness) >= len(b.Aux.Params.SigningKeys) {
		return ErrWitnessOutOfRange
	}
	pub := b.Aux.Params.SigningKeys[b.Header.Witness]

	return wcrypto.Verify(pub, preimage, b.Header.Signature)
}

// SetPriorBlock records prior as this block's predecessor without
// performing any aux-parameter propagation. ChainToPriorBlock is the usual
// entry point; this is exposed for restore paths that reconstruct aux
// independently (spec §4.1).
func (b *Block) SetPriorBlock(prior *Block) {
	b.Header.PriorOid = prior.Aux.Oid
	b.Aux.PriorOid = prior.Aux.Oid
	b.Aux.HasPrior = true
}

// ChainToPriorBlock installs prior as this block's predecessor and
// propagates/derives the aux fields described in spec §4.2:
//  1. copy prior.Params into this block's Params, then apply the scheduled
//     NextNWitnesses/NextMaxMal change;
//  2. recompute NConfSigs/NSeqConfSigs/NSkipConfSigs;
//  3. compute this block's skip count from the witness indices.
func (b *Block) ChainToPriorBlock(prior *Block) error {
	if b.Aux == nil {
		return fmt.Errorf("block: ChainToPriorBlock: block has no aux attached")
	}
	if prior.Aux == nil {
		return fmt.Errorf("block: ChainToPriorBlock: prior block has no aux attached")
	}

	b.SetPriorBlock(prior)

	params := prior.Aux.Params
	params.NWitnesses = params.NextNWitnesses
	params.MaxMal = params.NextMaxMal
	// This block schedules no further change: Next* mirrors the now-current
	// values. Commit-time transaction indexing does not parse witness-set
	// change commands; only a StageWitnessSetChange call alters Next*.
	params.NextNWitnesses = params.NWitnesses
	params.NextMaxMal = params.MaxMal
	params.SetConfSigs()

	b.Aux.Params = params
	b.Aux.SkipCount = ComputeSkip(prior.Header.Witness, b.Header.Witness, params.NWitnesses)

	return nil
}
