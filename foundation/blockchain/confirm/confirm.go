// Package confirm implements the confirmation walker: advancing the
// last-indelible pointer by repeatedly testing the deepest unmarked
// ancestor of a candidate tip against the confirmation-signature
// thresholds (spec §4.4).
package confirm

import (
	"fmt"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/commit"
	"github.com/coreledger/witnesschain/foundation/blockchain/state"
)

// Outcome is DoConfirmOne's tri-state result.
type Outcome int

const (
	// NoChange means the walk found nothing ready to promote.
	NoChange Outcome = iota
	// Promoted with a non-nil candidate means exactly that block was
	// promoted to indelible; the caller should call DoConfirmOne again to
	// handle bursts. Promoted with a nil candidate means newtip was already
	// marked indelible and nothing was promoted.
	Promoted
)

// DoConfirmOne performs a single confirmation step against newtip,
// promoting at most one block (spec §4.4).
func DoConfirmOne(st *state.State, newtip *block.BlockAux) (Outcome, *block.BlockAux, error) {
	if newtip.MarkedForIndelible {
		// Already promoted by an earlier walk; nothing new here, but the
		// caller may still have more of a burst to process elsewhere.
		return Promoted, nil, nil
	}

	arena := st.Arena()

	newtipBlk, ok := arena.Block(newtip.Oid)
	if !ok {
		return NoChange, nil, fmt.Errorf("confirm: tip %x not present in arena", newtip.Oid)
	}

	nconfsigs := uint16(1)
	candidate := newtip
	candidateBlk := newtipBlk

	cur, curBlk := newtip, newtipBlk
	for {
		priorAux, ok := arena.Prior(cur)
		if !ok {
			break
		}
		priorBlk, ok := arena.Block(priorAux.Oid)
		if !ok {
			return NoChange, nil, fmt.Errorf("confirm: prior %x missing its block", priorAux.Oid)
		}

		if priorBlk.Header.Level != curBlk.Header.Level-1 {
			err := st.Fatal("confirm: level sequence error: block at level %d has prior at level %d", curBlk.Header.Level, priorBlk.Header.Level)
			return NoChange, nil, err
		}

		if priorAux.MarkedForIndelible {
			break
		}

		nconfsigs++
		candidate, candidateBlk = priorAux, priorBlk
		cur, curBlk = priorAux, priorBlk
	}

	// Thresholds come from newtip's own params (captured once, before the
	// walk); only the skip check looks at the final candidate reached.
	// Grounded on the original source's DoConfirmOne, where nseqconfsigs/
	// nskipconfsigs are read from the starting block before the backward
	// scan reassigns auxp to each successive prior block.
	if priorBlk, _ := st.LastIndelible(); priorBlk != nil {
		if nconfsigs < newtip.Params.NSeqConfSigs {
			return NoChange, nil, nil
		}
		if candidate.SkipCount > 0 && nconfsigs < newtip.Params.NSkipConfSigs {
			return NoChange, nil, nil
		}
	}
	// With no indelible block yet, the first candidate (genesis) promotes
	// unconditionally (spec §4.4).

	if err := commit.SetNewlyIndelibleBlock(st, candidateBlk); err != nil {
		return NoChange, nil, err
	}

	return Promoted, candidate, nil
}

// DoConfirmations holds the write lock for the duration, repeatedly runs
// DoConfirmOne against newtip until it reports no change, and — if any
// block was promoted — requests a persistence checkpoint: full if the
// locally-witnessed block advanced the chain, incremental otherwise (spec
// §4.4). isLocalWitness/localWitnessIndex describe this node's own witness
// identity, or should be (false, 0) on a non-witnessing node.
func DoConfirmations(st *state.State, newtip *block.BlockAux, isLocalWitness bool, localWitnessIndex uint8) (int, error) {
	if err := st.BeginWrite(); err != nil {
		return 0, err
	}

	var promoted int
	var lastPromotedBlk *block.Block

	for {
		outcome, candidate, err := DoConfirmOne(st, newtip)
		if err != nil {
			st.EndWrite(false)
			return promoted, err
		}
		if outcome == NoChange {
			break
		}
		if candidate == nil {
			// Already-marked newtip short-circuit: nothing further to do
			// this round (spec §4.4 step 1).
			break
		}

		promoted++
		lastPromotedBlk, _ = st.Arena().Block(candidate.Oid)
	}

	if err := st.EndWrite(promoted > 0); err != nil {
		return promoted, err
	}

	if promoted > 0 {
		full := isLocalWitness && lastPromotedBlk != nil && lastPromotedBlk.Header.Witness == localWitnessIndex
		if err := st.PersistData().StartCheckpoint(full); err != nil {
			return promoted, fmt.Errorf("confirm: requesting checkpoint: %w", err)
		}
	}

	return promoted, nil
}
