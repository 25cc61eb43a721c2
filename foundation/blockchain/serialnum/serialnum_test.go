package serialnum_test

import (
	"testing"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
	"github.com/coreledger/witnesschain/foundation/blockchain/serialnum"
	"github.com/coreledger/witnesschain/foundation/blockchain/state"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

func newTestState(t *testing.T) *state.State {
	t.Helper()
	return state.New(state.Config{
		Arena:          block.NewArena(),
		DbConn:         persist.NewMemDbConn(),
		Commitments:    persist.NewMemCommitments(),
		TxCodec:        persist.SimpleTxCodec{},
		PersistData:    &persist.MemPersistData{},
		TrailingRounds: 2,
	})
}

func genesisBlock(t *testing.T, arena *block.Arena, nwitnesses uint16) *block.Block {
	t.Helper()
	pubs := make([]wcrypto.PublicKey, nwitnesses)
	b := &block.Block{
		Header: block.Header{Level: 0, Witness: 0},
		Aux:    block.NewBlockAux(),
	}
	b.Aux.Params = block.NewRootParams(nwitnesses, 0, pubs)
	if err := b.SetOrVerifyOid(true); err != nil {
		t.Fatalf("genesis oid: %v", err)
	}
	arena.Attach(b)
	return b
}

func chainBlock(t *testing.T, arena *block.Arena, prior *block.Block, level uint64, witness uint8, payload []byte) *block.Block {
	t.Helper()
	b := &block.Block{
		Header:  block.Header{Level: level, Witness: witness},
		Payload: payload,
		Aux:     block.NewBlockAux(),
	}
	if err := b.ChainToPriorBlock(prior); err != nil {
		t.Fatalf("ChainToPriorBlock: %v", err)
	}
	if err := b.SetOrVerifyOid(true); err != nil {
		t.Fatalf("oid: %v", err)
	}
	arena.Attach(b)
	return b
}

func Test_CheckSerialnumNotFound(t *testing.T) {
	st := newTestState(t)
	arena := st.Arena()
	genesis := genesisBlock(t, arena, 3)

	var serial persist.Serialnum
	serial[0] = 0xAA

	result, err := serialnum.CheckSerialnum(st, genesis.Aux, 1, [32]byte{}, serial)
	if err != nil {
		t.Fatalf("CheckSerialnum: %v", err)
	}
	if result != serialnum.NotFound {
		t.Fatalf("expected NotFound, got %v", result)
	}
}

func Test_CheckSerialnumIndelibleConflict(t *testing.T) {
	st := newTestState(t)
	arena := st.Arena()
	genesis := genesisBlock(t, arena, 3)

	var serial persist.Serialnum
	serial[0] = 0xBB
	if err := st.DbConn().SerialnumInsert(serial); err != nil {
		t.Fatalf("SerialnumInsert: %v", err)
	}

	var txOid [32]byte
	txOid[0] = 0x01
	if err := st.DbConn().ValidObjsInsert(txOid, []byte("staged")); err != nil {
		t.Fatalf("ValidObjsInsert: %v", err)
	}

	result, err := serialnum.CheckSerialnum(st, genesis.Aux, 1, txOid, serial)
	if err != nil {
		t.Fatalf("CheckSerialnum: %v", err)
	}
	if result != serialnum.IndelibleConflict {
		t.Fatalf("expected IndelibleConflict, got %v", result)
	}
}

func Test_CheckSerialnumDelibleConflictWithinWindow(t *testing.T) {
	st := newTestState(t)
	arena := st.Arena()
	genesis := genesisBlock(t, arena, 3)
	b1 := chainBlock(t, arena, genesis, 1, 1, nil)
	b2 := chainBlock(t, arena, b1, 2, 2, nil)

	var serial persist.Serialnum
	serial[0] = 0xCC
	if err := st.DbConn().TempSerialnumInsert(serial, persist.TempSerialnumEntry{BlockOid: b1.Aux.Oid}); err != nil {
		t.Fatalf("TempSerialnumInsert: %v", err)
	}

	result, err := serialnum.CheckSerialnum(st, b2.Aux, 1, [32]byte{}, serial)
	if err != nil {
		t.Fatalf("CheckSerialnum: %v", err)
	}
	if result != serialnum.DelibleConflict {
		t.Fatalf("expected DelibleConflict, got %v", result)
	}
}

func Test_CheckSerialnumIgnoresConflictOutsideChain(t *testing.T) {
	st := newTestState(t)
	arena := st.Arena()
	genesis := genesisBlock(t, arena, 3)
	b1 := chainBlock(t, arena, genesis, 1, 1, nil) // one fork
	fork := chainBlock(t, arena, genesis, 1, 2, nil)
	_ = b1

	var serial persist.Serialnum
	serial[0] = 0xDD
	// introduced on the sibling fork, not an ancestor of b1.
	if err := st.DbConn().TempSerialnumInsert(serial, persist.TempSerialnumEntry{BlockOid: fork.Aux.Oid}); err != nil {
		t.Fatalf("TempSerialnumInsert: %v", err)
	}

	result, err := serialnum.CheckSerialnum(st, b1.Aux, 1, [32]byte{}, serial)
	if err != nil {
		t.Fatalf("CheckSerialnum: %v", err)
	}
	if result != serialnum.NotFound {
		t.Fatalf("expected NotFound for a sibling-fork entry, got %v", result)
	}
}

func Test_CheckSerialnumSelfProbe(t *testing.T) {
	st := newTestState(t)
	arena := st.Arena()
	genesis := genesisBlock(t, arena, 3)

	var serial persist.Serialnum
	serial[0] = 0xEE
	if err := serialnum.RegisterProbe(st, 7, serial); err != nil {
		t.Fatalf("RegisterProbe: %v", err)
	}

	result, err := serialnum.CheckSerialnum(st, genesis.Aux, 7, [32]byte{}, serial)
	if err != nil {
		t.Fatalf("CheckSerialnum: %v", err)
	}
	if result != serialnum.SelfProbe {
		t.Fatalf("expected SelfProbe, got %v", result)
	}
}

func Test_ChainHasDelibleTxs(t *testing.T) {
	st := newTestState(t)
	arena := st.Arena()
	genesis := genesisBlock(t, arena, 3)
	b1 := chainBlock(t, arena, genesis, 1, 1, nil)
	b2 := chainBlock(t, arena, b1, 2, 2, []byte{0x01, 0x02})

	if !serialnum.ChainHasDelibleTxs(arena, b2.Aux, 0) {
		t.Errorf("expected b2's own non-empty payload to be found")
	}
	if serialnum.ChainHasDelibleTxs(arena, b1.Aux, 0) {
		t.Errorf("expected no non-empty payload above level 0 starting from b1")
	}
	if serialnum.ChainHasDelibleTxs(arena, b2.Aux, 2) {
		t.Errorf("expected the floor to exclude b2's own level")
	}
}
