package block

import (
	"encoding/binary"
	"fmt"

	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

// MaxNWitnesses bounds the witness set size (spec §3 invariant).
const MaxNWitnesses = 21

// BlockchainParams is the per-block mutable metadata governing confirmation
// thresholds and the signing-key table in force for this block (spec §3).
type BlockchainParams struct {
	NWitnesses    uint16
	MaxMal        uint16
	NConfSigs     uint16
	NSeqConfSigs  uint16
	NSkipConfSigs uint16

	// NextNWitnesses and NextMaxMal are scheduled changes, applied to the
	// params of the next block chained on top of this one
	// (ChainToPriorBlock, spec §4.2 step 1).
	NextNWitnesses uint16
	NextMaxMal     uint16

	// SigningKeys is the public key table in force for signing this block.
	SigningKeys [MaxNWitnesses]wcrypto.PublicKey
}

// SetConfSigs recomputes NConfSigs, NSeqConfSigs and NSkipConfSigs from
// (NWitnesses, MaxMal). Frozen formula (spec §3 requires implementers to
// document and freeze this):
//
//	nconfsigs     = (nwitnesses-maxmal)/2 + maxmal + 1
//	nseqconfsigs  = nconfsigs
//	nskipconfsigs = nconfsigs + 1
//
// Verified against spec §8's worked example (nwitnesses=3, maxmal=0 gives
// nconfsigs=2, nseqconfsigs=2, nskipconfsigs=3).
func (p *BlockchainParams) SetConfSigs() {
	nconfsigs := (p.NWitnesses-p.MaxMal)/2 + p.MaxMal + 1

	p.NConfSigs = nconfsigs
	p.NSeqConfSigs = nconfsigs
	p.NSkipConfSigs = nconfsigs + 1
}

// NewRootParams builds the BlockchainParams for a genesis or restored root
// block. NextNWitnesses/NextMaxMal default to mirroring the current values
// (no scheduled change) exactly as they do on every subsequently chained
// block unless a payload command stages a change (spec §4.2 step 4).
func NewRootParams(nwitnesses, maxmal uint16, signingKeys []wcrypto.PublicKey) BlockchainParams {
	var p BlockchainParams
	p.NWitnesses = nwitnesses
	p.MaxMal = maxmal
	p.NextNWitnesses = nwitnesses
	p.NextMaxMal = maxmal
	p.SetConfSigs()

	copy(p.SigningKeys[:], signingKeys)

	return p
}

// StageWitnessSetChange schedules a change to the witness set that takes
// effect on the next block chained on top of this one (spec §4.2 step 4).
// Per this core's resolution of the spec's open question (DESIGN.md), the
// staging always happens on the block that is about to become committed,
// never retroactively on an already-linked descendant.
func (p *BlockchainParams) StageWitnessSetChange(nextNWitnesses, nextMaxMal uint16) {
	p.NextNWitnesses = nextNWitnesses
	p.NextMaxMal = nextMaxMal
}

// ComputeSkip returns the number of witness slots skipped between the
// previous block's producer and this block's producer, modulo nwitnesses,
// with the convention that 0 means "direct successor" (spec §4.2 step 3).
func ComputeSkip(prevWitness, thisWitness uint8, nwitnesses uint16) uint16 {
	if nwitnesses == 0 {
		return 0
	}

	n := int32(nwitnesses)
	w := (int32(thisWitness) - int32(prevWitness) - 1) % n
	if w < 0 {
		w += n
	}

	return uint16(w)
}

// paramsSize is the packed little-endian wire size of BlockchainParams.
const paramsSize = 2*7 + MaxNWitnesses*wcrypto.PublicKeySize

// Encode serializes the params in the order read back by DecodeParams.
func (p BlockchainParams) Encode() []byte {
	buf := make([]byte, paramsSize)

	off := 0
	binary.LittleEndian.PutUint16(buf[off:], p.NWitnesses)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], p.MaxMal)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], p.NConfSigs)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], p.NSeqConfSigs)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], p.NSkipConfSigs)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], p.NextNWitnesses)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], p.NextMaxMal)
	off += 2

	for _, key := range p.SigningKeys {
		copy(buf[off:], key[:])
		off += wcrypto.PublicKeySize
	}

	return buf
}

// DecodeParams parses a packed BlockchainParams from the front of buf.
func DecodeParams(buf []byte) (BlockchainParams, error) {
	if len(buf) < paramsSize {
		return BlockchainParams{}, fmt.Errorf("block: params too short, got %d bytes, need %d", len(buf), paramsSize)
	}

	var p BlockchainParams
	off := 0
	p.NWitnesses = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.MaxMal = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.NConfSigs = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.NSeqConfSigs = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.NSkipConfSigs = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.NextNWitnesses = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	p.NextMaxMal = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	for i := range p.SigningKeys {
		copy(p.SigningKeys[i][:], buf[off:])
		off += wcrypto.PublicKeySize
	}

	return p, nil
}

// =============================================================================

// ScoreCache memoizes the result of CalcSkipScoreRecursive for a block,
// keyed by an epoch tag so the fork-choice comparison can be incremental
// across a round (spec §4.3).
type ScoreCache struct {
	Genstamp  uint64
	Score     uint64
	ScoreBits uint16
	Valid     bool
}

// BlockAux is the mutable side-car metadata attached to an in-memory block
// (spec §3). It is created by the first party to attach the block (ingest
// or restore) and its BlockchainParams are set once at chain-link time and
// never mutated thereafter (spec §5).
type BlockAux struct {
	Oid                Oid
	Hash               wcrypto.Hash
	AnnounceTime       uint64
	SkipCount          uint16
	MarkedForIndelible bool

	// PriorOid identifies this block's predecessor in the arena. It is the
	// "index of its prior" the design notes call for, using the oid as the
	// stable key instead of a raw pointer or positional array index.
	PriorOid Oid
	HasPrior bool

	Params BlockchainParams

	// Score caches the per-block skip-score memoization described in
	// spec §4.3. Present on every aux (not only on witnessing nodes) since
	// any node performing fork choice needs it; only the local witness
	// thread ever mutates it in a node that itself witnesses (see
	// DESIGN.md's witness_params-splitting decision: node-level signing
	// identity lives elsewhere, not on this per-block side-car).
	Score ScoreCache
}

// NewBlockAux constructs a fresh, unmarked aux value.
func NewBlockAux() *BlockAux {
	return &BlockAux{}
}

// auxHeaderSize is the packed size of the BlockAux fields persisted ahead
// of Params: Oid, Hash, SkipCount, MarkedForIndelible, PriorOid, HasPrior.
// AnnounceTime is not persisted.
const auxHeaderSize = OidSize + wcrypto.HashSize + 2 + 1 + OidSize + 1

// Encode serializes the aux slice "from the start of aux up to the end of
// blockchain_params" (spec §4.5 step 7): the persisted portion excludes
// AnnounceTime and Score, the latter being local fork-choice memoization
// that restore recomputes rather than reads back.
func (a *BlockAux) Encode() []byte {
	buf := make([]byte, auxHeaderSize+paramsSize)

	off := 0
	copy(buf[off:], a.Oid[:])
	off += OidSize

	copy(buf[off:], a.Hash[:])
	off += wcrypto.HashSize

	binary.LittleEndian.PutUint16(buf[off:], a.SkipCount)
	off += 2

	if a.MarkedForIndelible {
		buf[off] = 1
	}
	off++

	copy(buf[off:], a.PriorOid[:])
	off += OidSize

	if a.HasPrior {
		buf[off] = 1
	}
	off++

	copy(buf[off:], a.Params.Encode())

	return buf
}

// DecodeBlockAux is the inverse of Encode, restoring everything but
// AnnounceTime and Score (both left zero-valued; the confirmation/score
// engine recomputes Score lazily).
func DecodeBlockAux(buf []byte) (*BlockAux, error) {
	if len(buf) < auxHeaderSize+paramsSize {
		return nil, fmt.Errorf("block: aux slice too short, got %d bytes, need %d", len(buf), auxHeaderSize+paramsSize)
	}

	a := NewBlockAux()
	off := 0

	copy(a.Oid[:], buf[off:])
	off += OidSize

	copy(a.Hash[:], buf[off:])
	off += wcrypto.HashSize

	a.SkipCount = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	a.MarkedForIndelible = buf[off] != 0
	off++

	copy(a.PriorOid[:], buf[off:])
	off += OidSize

	a.HasPrior = buf[off] != 0
	off++

	params, err := DecodeParams(buf[off:])
	if err != nil {
		return nil, err
	}
	a.Params = params

	return a, nil
}
