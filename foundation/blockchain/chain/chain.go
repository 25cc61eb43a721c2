// Package chain ties together the blockchain core's components (C1-C7)
// behind a single orchestration surface: the shared state, the confirmation
// walker, the indelible-commit path, the serial-number checker, genesis
// bootstrap/restore, and the skip-score fork-choice engine (spec §4, §5).
package chain

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/confirm"
	"github.com/coreledger/witnesschain/foundation/blockchain/genesis"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
	"github.com/coreledger/witnesschain/foundation/blockchain/restore"
	"github.com/coreledger/witnesschain/foundation/blockchain/score"
	"github.com/coreledger/witnesschain/foundation/blockchain/serialnum"
	"github.com/coreledger/witnesschain/foundation/blockchain/state"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

// Op identifies a single call into the chain for log correlation, the way
// the teacher's own services stamp every log line with a "traceid" field
// (state/state_test.go). Ingest, Witness and CheckSerialnum each mint their
// own Op rather than accepting one from the caller: this core has no request
// context of its own to carry one in from further up the stack. The other
// exported methods do not mint one.
type Op struct {
	TraceID string
}

func newOp() Op {
	return Op{TraceID: uuid.NewString()}
}

// WitnessIdentity holds this node's own signing key and witness index, kept
// out of block.BlockAux (which every node, witnessing or not, must carry)
// per this core's resolution of the witness_params split (DESIGN.md): a
// node's private key belongs to the node, not to the per-block side-car.
type WitnessIdentity struct {
	Index      uint8
	PrivateKey wcrypto.PrivateKey
}

// Config collects everything BlockChain is constructed from.
type Config struct {
	Arena          *block.Arena
	DbConn         persist.DbConn
	Commitments    persist.Commitments
	TxCodec        persist.TxCodec
	PersistData    persist.PersistData
	TrailingRounds uint64
	EvHandler      state.EventHandler

	// Witness is this node's own signing identity, or nil on a
	// non-witnessing node.
	Witness *WitnessIdentity
}

// BlockChain is the top-level context a node constructs once and drives for
// its whole lifetime: ingest, confirmation, and — if configured as a
// witness — block production (spec §5's "reify singleton as an explicitly
// constructed context" design note).
type BlockChain struct {
	st      *state.State
	witness *WitnessIdentity

	genstamp uint64
}

// New constructs a BlockChain from cfg. Callers still need to call either
// Bootstrap (cold start, no genesis yet) or Restore (warm start) before
// serving ingest/witness traffic.
func New(cfg Config) *BlockChain {
	st := state.New(state.Config{
		Arena:          cfg.Arena,
		DbConn:         cfg.DbConn,
		Commitments:    cfg.Commitments,
		TxCodec:        cfg.TxCodec,
		PersistData:    cfg.PersistData,
		TrailingRounds: cfg.TrailingRounds,
		EvHandler:      cfg.EvHandler,
	})

	return &BlockChain{st: st, witness: cfg.Witness}
}

// State exposes the shared context, for packages (or tests) that need to
// drive confirm/commit/serialnum directly.
func (bc *BlockChain) State() *state.State { return bc.st }

// Bootstrap creates the genesis block from g and installs it as the chain's
// root (spec §4.7). Only valid on a chain with no persisted blocks yet.
func (bc *BlockChain) Bootstrap(g genesis.Genesis) (*block.Block, error) {
	return restore.CreateGenesis(bc.st, g)
}

// Restore reconstitutes the chain tail from the durable connection, given
// the last indelible level a prior run published (spec §4.7).
func (bc *BlockChain) Restore(lastIndelibleLevel uint64) error {
	return restore.Restore(bc.st, lastIndelibleLevel, bc.witness != nil)
}

// IsWitness reports whether this node is configured to sign blocks.
func (bc *BlockChain) IsWitness() bool { return bc.witness != nil }

// Ingest verifies blk's signature against its claimed witness, attaches it
// to the arena as a new candidate tip, and runs the confirmation walker
// against it, promoting whatever becomes ready (spec §4.1, §4.4). blk's
// Aux.Hash/Oid must already be populated (via SetOrVerifyOid(true) on
// receipt, or by chain.Witness for a locally-produced block) — this core's
// hash/oid binds whatever bytes existed at assignment time, so Ingest
// trusts that assignment rather than recomputing it against a signature
// that may have been attached afterward.
func (bc *BlockChain) Ingest(blk *block.Block) (int, error) {
	op := newOp()
	bc.st.Ev("chain: ingest: level %d witness %d traceid %s", blk.Header.Level, blk.Header.Witness, op.TraceID)

	prior, _ := bc.st.Arena().Aux(blk.Aux.PriorOid)
	var priorHash wcrypto.Hash
	if prior != nil {
		priorHash = prior.Hash
	}

	if err := blk.SignOrVerify(true, nil, priorHash); err != nil {
		return 0, fmt.Errorf("chain: ingest: signature verification failed: %w", err)
	}

	bc.st.Arena().Attach(blk)

	localIndex := uint8(0)
	isWitness := bc.witness != nil
	if isWitness {
		localIndex = bc.witness.Index
	}

	return confirm.DoConfirmations(bc.st, blk.Aux, isWitness, localIndex)
}

// ChooseTip compares two candidate tips' skip scores (computed back to the
// current last-indelible snapshot) and reports whether a is preferred over
// b, breaking ties by scoreBits and then by the lower block hash (spec
// §4.3's fork-choice comparison).
func (bc *BlockChain) ChooseTip(a, b *block.BlockAux) bool {
	_, lastIndelibleAux := bc.st.LastIndelible()
	var floor block.Oid
	if lastIndelibleAux != nil {
		floor = lastIndelibleAux.Oid
	}

	bc.genstamp++
	genstamp := bc.genstamp

	scoreA, bitsA := score.CalcSkipScoreRecursive(bc.st.Arena(), a, floor, genstamp, false, 0)
	scoreB, bitsB := score.CalcSkipScoreRecursive(bc.st.Arena(), b, floor, genstamp, false, 0)

	if scoreA != scoreB {
		return scoreA < scoreB
	}
	if bitsA != bitsB {
		return bitsA < bitsB
	}
	return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
}

// Witness produces, signs and ingests a new block atop tip carrying
// payload, refusing if this node isn't configured to witness or if
// CheckBadSigOrder flags the attempt as signing too soon after this
// witness's own last appearance (spec §4.1, §4.2, §4.3).
func (bc *BlockChain) Witness(tip *block.Block, payload []byte, timestamp uint64) (*block.Block, error) {
	if bc.witness == nil {
		return nil, fmt.Errorf("chain: Witness: node is not configured as a witness")
	}

	op := newOp()
	bc.st.Ev("chain: witness: index %d atop level %d traceid %s", bc.witness.Index, tip.Header.Level, op.TraceID)

	params := tip.Aux.Params
	if score.CheckBadSigOrder(bc.st.Arena(), tip.Aux, params.NConfSigs, params.NWitnesses, params.MaxMal, bc.witness.Index) {
		return nil, fmt.Errorf("chain: Witness: bad signature order for witness %d atop level %d", bc.witness.Index, tip.Header.Level)
	}

	blk := &block.Block{
		Header:  block.Header{Witness: bc.witness.Index, Timestamp: timestamp},
		Payload: payload,
		Aux:     block.NewBlockAux(),
	}
	if err := blk.ChainToPriorBlock(tip); err != nil {
		return nil, fmt.Errorf("chain: Witness: %w", err)
	}
	blk.Header.Level = tip.Header.Level + 1

	if err := blk.SetOrVerifyOid(true); err != nil {
		return nil, fmt.Errorf("chain: Witness: %w", err)
	}
	if err := blk.SignOrVerify(false, &bc.witness.PrivateKey, tip.Aux.Hash); err != nil {
		return nil, fmt.Errorf("chain: Witness: signing: %w", err)
	}

	bc.st.Arena().Attach(blk)

	return blk, nil
}

// CheckSerialnum delegates to the serialnum package, scoped to this
// chain's shared state (spec §4.6).
func (bc *BlockChain) CheckSerialnum(topblock *block.BlockAux, probeType uint8, txOid [32]byte, serial persist.Serialnum) (serialnum.Result, error) {
	op := newOp()
	bc.st.Ev("chain: checkserialnum: type %d traceid %s", probeType, op.TraceID)

	return serialnum.CheckSerialnum(bc.st, topblock, probeType, txOid, serial)
}

// Prune releases arena entries below the chain's current prune level
// (spec §5).
func (bc *BlockChain) Prune() {
	bc.st.Arena().Prune(bc.st.PruneLevel())
}
