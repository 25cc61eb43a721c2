// Package score implements the skip/score fork-choice engine: a recursive
// per-chain-tail score used to pick among candidate tips, and the
// bad-signature-order check that keeps a witness from signing too soon
// after its own last appearance.
package score

import (
	"github.com/coreledger/witnesschain/foundation/blockchain/block"
)

// MaltestIncrement is the extra cost charged to a candidate tip's own
// witness when CalcSkipScoreRecursive is run in malicious-test probe mode,
// modelling adversarial behavior for simulation purposes.
const MaltestIncrement = 1000

// CalcSkipScoreRecursive computes the aggregate skip score for the chain
// tail ending at tip, walking backward through the arena to (but not
// including) lastIndelible. Each block contributes its own skip count;
// scoreBits tracks how many blocks were actually walked, so callers compare
// lexicographically on (score, scoreBits). Per-block results are memoized
// on the block's aux under genstamp, so repeated calls within the same
// round only walk the newly-extended suffix.
//
// When maltest is true, topWitness — the witness proposed to extend tip —
// is charged MaltestIncrement on top of the recursive total, modelling an
// adversarial probe rather than an ordinary fork-choice comparison.
func CalcSkipScoreRecursive(arena *block.Arena, tip *block.BlockAux, lastIndelible block.Oid, genstamp uint64, maltest bool, topWitness uint8) (uint64, uint16) {
	score, bits := walkScore(arena, tip, lastIndelible, genstamp)

	if maltest {
		score += MaltestIncrement
	}

	return score, bits
}

// walkScore performs the uncached recursive walk and caches the result
// under genstamp on each visited aux. topWitness/maltest are intentionally
// excluded from the cache key: the probe surcharge is applied once, by the
// caller, on top of the plain recursive total.
func walkScore(arena *block.Arena, tip *block.BlockAux, lastIndelible block.Oid, genstamp uint64) (uint64, uint16) {
	if tip == nil || tip.Oid == lastIndelible {
		return 0, 0
	}

	if tip.Score.Valid && tip.Score.Genstamp == genstamp {
		return tip.Score.Score, tip.Score.ScoreBits
	}

	prior, _ := arena.Prior(tip)
	priorScore, priorBits := walkScore(arena, prior, lastIndelible, genstamp)

	score := priorScore + uint64(tip.SkipCount)
	bits := priorBits + 1

	tip.Score = block.ScoreCache{
		Genstamp:  genstamp,
		Score:     score,
		ScoreBits: bits,
		Valid:     true,
	}

	return score, bits
}

// CheckBadSigOrder scans back over tip and its last nconfsigs ancestors and
// reports whether topWitness — the witness proposed to sign atop tip — also
// produced one of those blocks fewer than (nwitnesses-maxmal)/2+maxmal
// blocks back. A true result means topWitness may not be signed atop tip:
// it would be a double-sign pattern too close together to be honest
// witnessing.
func CheckBadSigOrder(arena *block.Arena, tip *block.BlockAux, nconfsigs, nwitnesses, maxmal uint16, topWitness uint8) bool {
	if nwitnesses == 0 {
		return false
	}

	threshold := (nwitnesses-maxmal)/2 + maxmal

	cur := tip
	for pos := uint16(1); pos <= nconfsigs+1 && cur != nil; pos++ {
		blk, ok := arena.Block(cur.Oid)
		if !ok {
			break
		}

		if blk.Header.Witness == topWitness && pos < threshold {
			return true
		}

		prior, ok := arena.Prior(cur)
		if !ok {
			break
		}
		cur = prior
	}

	return false
}
