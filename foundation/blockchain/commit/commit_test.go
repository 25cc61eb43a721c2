package commit_test

import (
	"testing"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/commit"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
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

func genesisBlock(t *testing.T, nwitnesses uint16) *block.Block {
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
	return b
}

func Test_SetNewlyIndelibleBlockGenesis(t *testing.T) {
	st := newTestState(t)
	genesis := genesisBlock(t, 1)

	if err := commit.SetNewlyIndelibleBlock(st, genesis); err != nil {
		t.Fatalf("SetNewlyIndelibleBlock: %v", err)
	}

	blk, aux := st.LastIndelible()
	if blk == nil || aux.Oid != genesis.Aux.Oid {
		t.Fatalf("expected genesis to become the published last-indelible block")
	}

	raw, err := st.DbConn().BlockchainSelect(0)
	if err != nil {
		t.Fatalf("BlockchainSelect(0): %v", err)
	}
	if string(raw) != string(genesis.Encode()) {
		t.Errorf("persisted block bytes do not match the encoded block")
	}
}

func Test_SetNewlyIndelibleBlockSequenceErrorIsFatal(t *testing.T) {
	st := newTestState(t)
	genesis := genesisBlock(t, 1)
	if err := commit.SetNewlyIndelibleBlock(st, genesis); err != nil {
		t.Fatalf("promote genesis: %v", err)
	}

	// Skips a level: should become level 1, but claims level 2.
	bad := &block.Block{
		Header: block.Header{Level: 2, Witness: 0},
		Aux:    block.NewBlockAux(),
	}
	bad.Aux.PriorOid = genesis.Aux.Oid
	bad.Aux.HasPrior = true
	bad.Aux.Params = genesis.Aux.Params
	if err := bad.SetOrVerifyOid(true); err != nil {
		t.Fatalf("bad oid: %v", err)
	}

	if err := commit.SetNewlyIndelibleBlock(st, bad); err == nil {
		t.Fatalf("expected a sequence error")
	}
	if !st.HaveFatalError() {
		t.Errorf("expected the sequence error to latch the fatal flag")
	}
}

func Test_SetNewlyIndelibleBlockIndexesTxsAndIsIdempotent(t *testing.T) {
	st := newTestState(t)
	genesis := genesisBlock(t, 1)
	if err := commit.SetNewlyIndelibleBlock(st, genesis); err != nil {
		t.Fatalf("promote genesis: %v", err)
	}

	var output [32]byte
	output[0] = 0xAB
	tx := persist.EncodeTx(nil, [][]byte{output[:]})
	payload := block.EncodeTxRecords([][]byte{tx})

	next := &block.Block{
		Header:  block.Header{Level: 1, Witness: 0},
		Payload: payload,
		Aux:     block.NewBlockAux(),
	}
	if err := next.ChainToPriorBlock(genesis); err != nil {
		t.Fatalf("ChainToPriorBlock: %v", err)
	}
	if err := next.SetOrVerifyOid(true); err != nil {
		t.Fatalf("oid: %v", err)
	}

	if err := commit.SetNewlyIndelibleBlock(st, next); err != nil {
		t.Fatalf("SetNewlyIndelibleBlock: %v", err)
	}

	wantSerial := commit.PseudoSerialnum(tx)
	found, err := st.DbConn().SerialnumCheck(wantSerial)
	if err != nil {
		t.Fatalf("SerialnumCheck: %v", err)
	}
	if !found {
		t.Errorf("expected the pseudo-serialnum to be indexed")
	}

	// A second call must be a no-op rather than re-running IndexTxs (which
	// would fail on the duplicate serial-number insert).
	if err := commit.SetNewlyIndelibleBlock(st, next); err != nil {
		t.Errorf("expected idempotent re-promotion to succeed, got %v", err)
	}
}

func Test_PseudoSerialnumDeterminism(t *testing.T) {
	a := commit.PseudoSerialnum([]byte{1, 2, 3})
	b := commit.PseudoSerialnum([]byte{1, 2, 3})
	c := commit.PseudoSerialnum([]byte{1, 2, 4})

	if a != b {
		t.Errorf("expected identical bodies to produce identical pseudo-serialnums")
	}
	if a == c {
		t.Errorf("expected differing bodies to produce distinct pseudo-serialnums")
	}
}
