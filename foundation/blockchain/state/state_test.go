package state_test

import (
	"testing"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
	"github.com/coreledger/witnesschain/foundation/blockchain/state"
)

func newTestState(t *testing.T) *state.State {
	t.Helper()

	var events []string
	return state.New(state.Config{
		Arena:          block.NewArena(),
		DbConn:         persist.NewMemDbConn(),
		Commitments:    persist.NewMemCommitments(),
		TxCodec:        persist.SimpleTxCodec{},
		PersistData:    &persist.MemPersistData{},
		TrailingRounds: 2,
		EvHandler: func(v string, args ...any) {
			events = append(events, v)
		},
	})
}

func Test_BeginEndWriteRoundtrip(t *testing.T) {
	s := newTestState(t)

	if err := s.BeginWrite(); err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := s.EndWrite(true); err != nil {
		t.Fatalf("EndWrite: %v", err)
	}

	// A second cycle must also succeed; the write lock/transaction must
	// have been fully released by EndWrite.
	if err := s.BeginWrite(); err != nil {
		t.Fatalf("second BeginWrite: %v", err)
	}
	if err := s.EndWrite(true); err != nil {
		t.Fatalf("second EndWrite: %v", err)
	}
}

func Test_FatalLatchesAndRefusesWrites(t *testing.T) {
	s := newTestState(t)

	if s.HaveFatalError() {
		t.Fatalf("expected no fatal error initially")
	}

	err := s.Fatal("two indelible blocks at same level: %d", 5)
	if err == nil {
		t.Fatalf("expected Fatal to return an error")
	}

	if !s.HaveFatalError() {
		t.Errorf("expected fatal flag to latch")
	}

	if err := s.BeginWrite(); err == nil {
		t.Errorf("expected BeginWrite to refuse work after a fatal error")
	}

	// A second Fatal call must not overwrite the first recorded reason.
	s.Fatal("a different reason")
	if s.FatalReason() == "a different reason" {
		t.Errorf("expected the first fatal reason to stick")
	}
}

func Test_PruneLevelBeforeAnyIndelible(t *testing.T) {
	s := newTestState(t)
	s.SetStartupPruneLevel(7)

	if got := s.PruneLevel(); got != 7 {
		t.Errorf("got prune level %d, want startup floor 7", got)
	}
}
