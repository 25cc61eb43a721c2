// Package state holds the shared mutable context the confirmation walker,
// indelible-commit, serial-number checker and restore path all operate
// over: the in-memory block arena, the collaborator connections, the
// published last-indelible pointer, the write lock, and the process-wide
// fatal flag (spec §5). It is the one thing every blockchain-core package
// below it is allowed to share, so that confirm/commit/serialnum/restore
// never need to import each other.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
)

// EventHandler is called to report processing events, mirroring the
// teacher's own logging-callback shape rather than taking a hard
// dependency on a specific logger here.
type EventHandler func(v string, args ...any)

// Config collects the collaborators a State is constructed from.
type Config struct {
	Arena        *block.Arena
	DbConn       persist.DbConn
	Commitments  persist.Commitments
	TxCodec      persist.TxCodec
	PersistData  persist.PersistData
	TrailingRounds uint64
	EvHandler    EventHandler
}

// State is the blockchain's shared mutable context (spec §5). Its mutex is
// the single `blockchain_write` exclusive writer lock: BeginWrite acquires
// it for the whole indelible-commit transaction, exactly as the teacher's
// own state.mu guards mine.go's updateLocalState.
type State struct {
	mu sync.Mutex

	arena       *block.Arena
	dbconn      persist.DbConn
	commitments persist.Commitments
	txcodec     persist.TxCodec
	persistData persist.PersistData
	evHandler   EventHandler

	trailingRounds uint64

	// lastIndelibleAux/lastIndelibleBlock are published together. Readers
	// must read lastIndelibleBlock first and derive any level from it, per
	// the documented discipline in spec §5 — never trust a level read
	// independently of the block it names.
	lastIndelibleAux   *block.BlockAux
	lastIndelibleBlock *block.Block

	startupPruneLevel uint64

	fatal    atomic.Bool
	fatalErr atomic.Value // string
}

// New constructs a State from cfg. It does not perform restore; callers use
// the restore package to populate the arena and last-indelible pointer
// before serving any confirmation/ingest traffic.
func New(cfg Config) *State {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &State{
		arena:          cfg.Arena,
		dbconn:         cfg.DbConn,
		commitments:    cfg.Commitments,
		txcodec:        cfg.TxCodec,
		persistData:    cfg.PersistData,
		trailingRounds: cfg.TrailingRounds,
		evHandler:      ev,
	}
}

// Arena returns the in-memory block DAG.
func (s *State) Arena() *block.Arena { return s.arena }

// DbConn returns the durable storage collaborator.
func (s *State) DbConn() persist.DbConn { return s.dbconn }

// Commitments returns the commitment-tree collaborator.
func (s *State) Commitments() persist.Commitments { return s.commitments }

// TxCodec returns the transaction wire codec collaborator.
func (s *State) TxCodec() persist.TxCodec { return s.txcodec }

// PersistData returns the checkpoint lifecycle collaborator.
func (s *State) PersistData() persist.PersistData { return s.persistData }

// Ev reports a processing event through the configured handler.
func (s *State) Ev(v string, args ...any) { s.evHandler(v, args...) }

// LastIndelible returns the published last-indelible block and its aux,
// reading the block pointer first as the documented discipline requires.
func (s *State) LastIndelible() (*block.Block, *block.BlockAux) {
	blk := s.lastIndelibleBlock
	if blk == nil {
		return nil, nil
	}
	return blk, s.lastIndelibleAux
}

// LastIndelibleLevel derives the last-indelible level from the published
// block, returning ok=false before any block has been promoted.
func (s *State) LastIndelibleLevel() (uint64, bool) {
	blk := s.lastIndelibleBlock
	if blk == nil {
		return 0, false
	}
	return blk.Header.Level, true
}

// PublishLastIndelible installs blk/aux as the new last-indelible pointer.
// Callers must hold the write lock.
func (s *State) PublishLastIndelible(blk *block.Block, aux *block.BlockAux) {
	s.lastIndelibleBlock = blk
	s.lastIndelibleAux = aux
}

// StartupPruneLevel returns the level restore established as the floor
// below which the arena may never be pruned.
func (s *State) StartupPruneLevel() uint64 { return s.startupPruneLevel }

// SetStartupPruneLevel records restore's floor level.
func (s *State) SetStartupPruneLevel(level uint64) { s.startupPruneLevel = level }

// TrailingRounds returns the caller-supplied trailing_rounds used to derive
// the current prune level (spec §5).
func (s *State) TrailingRounds() uint64 { return s.trailingRounds }

// PruneLevel computes max(startup_prune_level, indelible_level -
// trailing_rounds*nwitnesses) as described in spec §5's resource policy.
func (s *State) PruneLevel() uint64 {
	level, ok := s.LastIndelibleLevel()
	if !ok {
		return s.startupPruneLevel
	}

	_, aux := s.LastIndelible()
	trailing := s.trailingRounds * uint64(aux.Params.NWitnesses)

	floor := s.startupPruneLevel
	if trailing < level && level-trailing > floor {
		return level - trailing
	}
	return floor
}

// BeginWrite acquires the exclusive write lock and the durable connection's
// own write transaction, refusing to proceed if the process has already
// latched a fatal error (spec §5, §7).
func (s *State) BeginWrite() error {
	if s.HaveFatalError() {
		return fmt.Errorf("state: refusing to begin write: %s", s.FatalReason())
	}

	s.mu.Lock()

	if err := s.dbconn.BeginWrite(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("state: BeginWrite: %w", err)
	}

	return nil
}

// EndWrite commits or rolls back the durable write transaction and
// releases the write lock.
func (s *State) EndWrite(commit bool) error {
	defer s.mu.Unlock()

	if err := s.dbconn.EndWrite(commit); err != nil {
		return fmt.Errorf("state: EndWrite: %w", err)
	}
	return nil
}

// HaveFatalError reports whether the process-wide fatal flag has latched.
func (s *State) HaveFatalError() bool {
	return s.fatal.Load()
}

// FatalReason returns the message recorded by the first Fatal call, or an
// empty string if none has latched.
func (s *State) FatalReason() string {
	v, _ := s.fatalErr.Load().(string)
	return v
}

// Fatal latches the process-wide fatal flag and logs at fatal level,
// mirroring spec §7: the process keeps running for inspection but accepts
// no more blocks. It returns an error wrapping reason for the caller to
// propagate.
func (s *State) Fatal(reason string, args ...any) error {
	msg := fmt.Sprintf(reason, args...)

	if s.fatal.CompareAndSwap(false, true) {
		s.fatalErr.Store(msg)
	}

	s.evHandler("state: FATAL: %s", msg)

	return fmt.Errorf("state: fatal: %s", msg)
}
