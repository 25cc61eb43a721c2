// Package persist defines the collaborator interfaces the blockchain core
// consumes but does not implement: the durable database connection, the
// commitment Merkle tree, the transaction wire codec, and the checkpoint
// lifecycle (spec §6). Production implementations of these (a real SQL
// engine, the commitment tree's real storage, P2P-delivered transactions)
// live outside this module; this package also carries a small in-memory
// reference implementation so the core can be exercised in tests without
// any of that machinery.
package persist

import (
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

// ParamKeyBlockAux is the ParameterSelect/Insert key under which a block's
// aux slice (from the start of aux through blockchain_params) is stored, at
// slot level%AuxSlotCount.
const ParamKeyBlockAux = 1

// AuxSlotCount bounds the circular aux parameter ring. It is only correct
// while every chain's MAX_NCONFSIGS stays at or below this value; callers
// that raise MaxNWitnesses far enough to blow this bound must widen it.
const AuxSlotCount = 64

// Serialnum is the fixed-width identifier a transaction's inputs spend,
// and the pseudo-serialnum synthesized for coinbase-like transactions
// that carry no inputs (spec §4.5).
type Serialnum = wcrypto.Hash

// TempSerialnumEntry is one entry of the temp-by-serialnum index: either
// the sentinel back-pointer used by the caller's own in-flight probe, or a
// reference to the block that introduced the serial number (spec §4.6).
type TempSerialnumEntry struct {
	// IsSentinel marks an entry installed by the caller's own candidate
	// probe (the "(void*)type" sentinel in the source) rather than a real
	// block back-pointer.
	IsSentinel bool

	// Type tags which probe installed a sentinel entry, standing in for
	// the source's raw "(void*)type" pointer identity. Unused when
	// IsSentinel is false.
	Type uint8

	// BlockOid identifies the block that introduced this serial number,
	// valid when IsSentinel is false.
	BlockOid [32]byte
}

// Tx is the decoded shape of a transaction record this core needs to see:
// its serial numbers (empty for a coinbase-like transaction) and its
// output commitment preimages. Decoding the rest of a transaction —
// amounts, proofs, scripts — is entirely a TxCodec/ZK-proof concern this
// core never looks inside (spec §1 non-goals).
type Tx struct {
	Body       []byte
	Serialnums []Serialnum
	Outputs    [][]byte
}

// TxCodec parses a transaction record's raw wire bytes into the shape
// IndexTxs needs. Validating proofs or computing balances is out of scope.
type TxCodec interface {
	DecodeTx(buf []byte) (Tx, error)
}

// DbConn is the durable storage connection the core drives but never
// implements directly: it is assumed to be backed by a real SQL engine or
// equivalent, reachable only through this interface (spec §6).
type DbConn interface {
	BlockchainSelectMax() (level uint64, ok bool, err error)
	BlockchainSelect(level uint64) ([]byte, error)
	BlockchainInsert(level uint64, raw []byte) error

	ParameterSelect(key uint32, slot uint64) ([]byte, error)
	ParameterInsert(key uint32, slot uint64, buf []byte) error

	SerialnumInsert(serial Serialnum) error
	SerialnumCheck(serial Serialnum) (bool, error)
	TempSerialnumSelect(serial Serialnum) ([]TempSerialnumEntry, error)
	TempSerialnumInsert(serial Serialnum, entry TempSerialnumEntry) error
	TempSerialnumDelete(serial Serialnum, entry TempSerialnumEntry) error

	TxOutputsInsert(commitnum uint64, addr []byte) error
	ValidObjsInsert(oid [32]byte, raw []byte) error
	ValidObjsDeleteObj(oid [32]byte) error
	ProcessQEnqueueValidate(oid [32]byte) error

	BeginWrite() error
	EndWrite(commit bool) error
	ReleaseMutex()
}

// Commitments is the commitment Merkle tree collaborator: assigning each
// output a commitnum and folding it into the tree, then rolling the tree's
// root forward to a block's timestamp (spec §6). The real tree's storage
// and proof machinery are out of scope for this core (spec §1); this
// interface is the whole of what the confirmation/commit path needs from
// it.
type Commitments interface {
	Init(dbconn DbConn) error
	GetNextCommitnum(reserve uint64) (uint64, error)
	AddCommitment(dbconn DbConn, commitnum uint64, commitment [32]byte) error
	UpdateCommitTree(dbconn DbConn, level uint64, timestamp uint64) error
}

// PersistData is the checkpoint lifecycle collaborator: periodic snapshots
// of durable state, outside this core's concern beyond requesting one
// after a successful indelible promotion (spec §4.4 step 3, §6).
type PersistData interface {
	StartCheckpointing() error
	StartCheckpoint(full bool) error
	StopCheckpointing() error
	WaitForFullCheckpoint() error
}
