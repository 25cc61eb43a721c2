// Package restore implements genesis bootstrap and startup restore (C7):
// building the root block from a genesis file and, on a warm start,
// reconstituting the tail of indelible blocks a running node needs before
// it can resume confirming and witnessing (spec §4.7).
package restore

import (
	"fmt"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/commit"
	"github.com/coreledger/witnesschain/foundation/blockchain/genesis"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
	"github.com/coreledger/witnesschain/foundation/blockchain/state"
)

// CreateGenesis builds the root block from g — header only, no payload —
// populates its aux from the genesis witness set, and inserts it via the
// normal indelible path (spec §4.7).
func CreateGenesis(st *state.State, g genesis.Genesis) (*block.Block, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("restore: invalid genesis: %w", err)
	}

	blk := &block.Block{
		Header: block.Header{Level: 0, Witness: 0},
		Aux:    block.NewBlockAux(),
	}
	blk.Aux.Params = block.NewRootParams(uint16(g.NWitnesses), uint16(g.MaxMal), g.SigningKeys)

	if err := blk.SetOrVerifyOid(true); err != nil {
		return nil, fmt.Errorf("restore: computing genesis oid: %w", err)
	}

	st.Arena().Attach(blk)

	if err := st.BeginWrite(); err != nil {
		return nil, fmt.Errorf("restore: BeginWrite for genesis: %w", err)
	}
	if err := commit.SetNewlyIndelibleBlock(st, blk); err != nil {
		st.EndWrite(false)
		return nil, err
	}
	if err := st.EndWrite(true); err != nil {
		return nil, fmt.Errorf("restore: EndWrite for genesis: %w", err)
	}

	return blk, nil
}

// loadBlock reads the block and its aux slot for level from the durable
// connection, decodes them, and attaches the result to arena.
func loadBlock(arena *block.Arena, dbconn persist.DbConn, level uint64) (*block.Block, error) {
	raw, err := dbconn.BlockchainSelect(level)
	if err != nil {
		return nil, fmt.Errorf("restore: BlockchainSelect(%d): %w", level, err)
	}
	blk, err := block.DecodeBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("restore: decoding block at level %d: %w", level, err)
	}

	slot := level % persist.AuxSlotCount
	auxBuf, err := dbconn.ParameterSelect(persist.ParamKeyBlockAux, slot)
	if err != nil {
		return nil, fmt.Errorf("restore: ParameterSelect(aux, %d): %w", level, err)
	}
	aux, err := block.DecodeBlockAux(auxBuf)
	if err != nil {
		return nil, fmt.Errorf("restore: decoding aux at level %d: %w", level, err)
	}
	blk.Aux = aux

	arena.Attach(blk)
	return blk, nil
}

// Restore reconstitutes the tail of indelible blocks needed to resume
// operation, given the last indelible level L (spec §4.7):
//  1. load the block at L, attach its aux;
//  2. compute how many tail blocks CheckBadSigOrder needs from the
//     aux's own next-witness-set parameters;
//  3. load the preceding N-1 blocks, each one chaining as the prior of
//     the next-newer (the PriorOid/HasPrior fields round-trip through
//     BlockAux.Encode/Decode, so the arena's Prior walk already connects
//     them once each is attached — no separate SetPriorBlock call is
//     needed the way the source's raw-pointer relinking required);
//  4. publish last_indelible_block/level and set startup_prune_level;
//  5. if this node is a witness, enqueue the tip for validation.
func Restore(st *state.State, lastIndelibleLevel uint64, isWitness bool) error {
	arena := st.Arena()
	dbconn := st.DbConn()

	tip, err := loadBlock(arena, dbconn, lastIndelibleLevel)
	if err != nil {
		return err
	}

	n := (tip.Aux.Params.NextNWitnesses-tip.Aux.Params.NextMaxMal)/2 + tip.Aux.Params.NextMaxMal + 1

	for i := uint16(1); i < n && uint64(i) <= lastIndelibleLevel; i++ {
		level := lastIndelibleLevel - uint64(i)
		if _, err := loadBlock(arena, dbconn, level); err != nil {
			return err
		}
	}

	st.PublishLastIndelible(tip, tip.Aux)
	st.SetStartupPruneLevel(lastIndelibleLevel)

	if isWitness {
		if err := dbconn.ProcessQEnqueueValidate(tip.Aux.Oid); err != nil {
			return fmt.Errorf("restore: enqueuing tip for validation: %w", err)
		}
	}

	return nil
}
