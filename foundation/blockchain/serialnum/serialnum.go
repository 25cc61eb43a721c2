// Package serialnum implements the two-tier serial-number conflict check
// (C6): is a transaction's input already spent by something persisted,
// already staged in-memory on an ancestor of the candidate tip, or already
// staged by the caller's own in-flight probe (spec §4.6).
package serialnum

import (
	"fmt"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
	"github.com/coreledger/witnesschain/foundation/blockchain/state"
)

// Result is CheckSerialnum's small-integer conflict code.
type Result int

const (
	// NotFound means the serial number is unspent everywhere reachable.
	NotFound Result = 0
	// SelfProbe means the serial number was already staged by the
	// caller's own in-flight probe (the sentinel entry).
	SelfProbe Result = 2
	// DelibleConflict means the serial number is staged on a still-delible
	// ancestor of topblock, newer than the last-indelible snapshot.
	DelibleConflict Result = 3
	// IndelibleConflict means the serial number is already in the
	// persistent (indelible) set.
	IndelibleConflict Result = 4
)

// CheckSerialnum runs the ordering-sensitive conflict check described in
// spec §4.6. probeType tags the caller's own in-flight sentinel entry (see
// RegisterProbe); txOid identifies the transaction object to remove from
// the valid-objs staging table on an IndelibleConflict.
func CheckSerialnum(st *state.State, topblock *block.BlockAux, probeType uint8, txOid [32]byte, serial persist.Serialnum) (Result, error) {
	// Step 1: snapshot last_indelible before any lookup, so persistent
	// reads never observe a newer indelible than the in-memory scan below.
	lastIndelibleLevel, haveLastIndelible := st.LastIndelibleLevel()

	// Step 2: persistent set.
	found, err := st.DbConn().SerialnumCheck(serial)
	if err != nil {
		return NotFound, fmt.Errorf("serialnum: SerialnumCheck: %w", err)
	}
	if found {
		if err := st.DbConn().ValidObjsDeleteObj(txOid); err != nil {
			return NotFound, fmt.Errorf("serialnum: ValidObjsDeleteObj: %w", err)
		}
		return IndelibleConflict, nil
	}

	// Step 3: temp-by-serialnum index.
	entries, err := st.DbConn().TempSerialnumSelect(serial)
	if err != nil {
		return NotFound, fmt.Errorf("serialnum: TempSerialnumSelect: %w", err)
	}

	floor := uint64(0)
	if haveLastIndelible {
		floor = lastIndelibleLevel + 1
	}

	for _, e := range entries {
		if e.IsSentinel {
			if e.Type == probeType {
				return SelfProbe, nil
			}
			continue
		}

		if BlockInChain(st, topblock, floor, e.BlockOid) {
			return DelibleConflict, nil
		}
	}

	// Step 4.
	return NotFound, nil
}

// BlockInChain reports whether the block identified by oid is an ancestor
// of topblock and strictly newer than the last-indelible snapshot (i.e. at
// or above floorLevel = last_indelible_level+1), per spec §4.6.
func BlockInChain(st *state.State, topblock *block.BlockAux, floorLevel uint64, oid block.Oid) bool {
	return st.Arena().InChain(topblock, oid, floorLevel)
}

// RegisterProbe stages the caller's own sentinel entry under serial so a
// concurrent CheckSerialnum from the same in-flight candidate recognizes
// its own probe (the source's "(void*)type" self-reference) instead of
// mistaking it for a real conflicting block.
func RegisterProbe(st *state.State, probeType uint8, serial persist.Serialnum) error {
	return st.DbConn().TempSerialnumInsert(serial, persist.TempSerialnumEntry{IsSentinel: true, Type: probeType})
}

// ChainHasDelibleTxs walks back from tip, returning true as soon as it
// finds a block with a non-empty payload above lastIndelibleLevel. It is
// used to decide whether an empty-payload witness block is worth issuing
// (spec §4.6).
func ChainHasDelibleTxs(arena *block.Arena, tip *block.BlockAux, lastIndelibleLevel uint64) bool {
	cur := tip
	for cur != nil {
		blk, ok := arena.Block(cur.Oid)
		if !ok {
			break
		}
		if blk.Header.Level <= lastIndelibleLevel {
			break
		}
		if blk.HasTx() {
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
