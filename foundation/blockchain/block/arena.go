package block

import (
	"sync"
)

// Arena holds the branching in-memory DAG of blocks, indexed by oid (design
// notes §9). It replaces the source's reference-counted raw-pointer
// "blockparray" with a bounded, oid-keyed map so "is this block an
// ancestor of that tip" becomes a bounded walk over aux entries rather
// than pointer aliasing.
type Arena struct {
	mu    sync.RWMutex
	byOid map[Oid]*BlockAux
	blk   map[Oid]*Block
}

// NewArena constructs an empty arena.
func NewArena() *Arena {
	return &Arena{
		byOid: make(map[Oid]*BlockAux),
		blk:   make(map[Oid]*Block),
	}
}

// Attach registers b in the arena, keyed by its aux oid. b.Aux.Oid must
// already be set (via SetOrVerifyOid).
func (a *Arena) Attach(b *Block) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byOid[b.Aux.Oid] = b.Aux
	a.blk[b.Aux.Oid] = b
}

// Aux looks up a block's aux by oid.
func (a *Arena) Aux(oid Oid) (*BlockAux, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	aux, ok := a.byOid[oid]
	return aux, ok
}

// Block looks up a full block by oid.
func (a *Arena) Block(oid Oid) (*Block, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.blk[oid]
	return b, ok
}

// Prior returns the aux of aux's predecessor, if both are present in the
// arena.
func (a *Arena) Prior(aux *BlockAux) (*BlockAux, bool) {
	if !aux.HasPrior {
		return nil, false
	}
	return a.Aux(aux.PriorOid)
}

// InChain reports whether candidate is reachable by walking Prior links
// backward from tip, stopping once a block's level drops below floorLevel.
// This is the bounded "is this block an ancestor of the tip, and no older
// than the floor" test used by the serial-number checker (spec §4.6) to
// avoid an unbounded walk all the way to genesis on a long-lived chain.
func (a *Arena) InChain(tip *BlockAux, candidate Oid, floorLevel uint64) bool {
	cur := tip
	for cur != nil {
		blk, ok := a.Block(cur.Oid)
		if !ok {
			break
		}
		if blk.Header.Level < floorLevel {
			break
		}
		if cur.Oid == candidate {
			return true
		}

		prior, ok := a.Prior(cur)
		if !ok {
			break
		}
		cur = prior
	}
	return false
}

// Prune drops every arena entry whose level is strictly below level,
// releasing the strong references that keep those blocks alive (spec §5,
// §9's prune_level design note). The caller is responsible for computing
// the correct prune level (chain.BlockChain.Prune).
func (a *Arena) Prune(level uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for oid, b := range a.blk {
		if b.Header.Level < level {
			delete(a.byOid, oid)
			delete(a.blk, oid)
		}
	}
}

// Len reports the number of blocks currently held in the arena.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.byOid)
}
