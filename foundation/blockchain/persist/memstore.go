package persist

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/coreledger/witnesschain/foundation/blockchain/merkle"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

// MemDbConn is an in-memory DbConn reference implementation. It exists so
// the confirmation/commit/serial-number packages can be exercised by tests
// without a real SQL engine; it is not a production persistence layer
// (spec §1 keeps that out of scope).
type MemDbConn struct {
	mu sync.Mutex

	chain  map[uint64][]byte
	params map[uint32]map[uint64][]byte

	serialnums     map[Serialnum]bool
	tempSerialnums map[Serialnum][]TempSerialnumEntry

	txOutputs map[uint64][]byte
	validObjs map[[32]byte][]byte

	writing bool
}

// NewMemDbConn constructs an empty in-memory connection.
func NewMemDbConn() *MemDbConn {
	return &MemDbConn{
		chain:          make(map[uint64][]byte),
		params:         make(map[uint32]map[uint64][]byte),
		serialnums:     make(map[Serialnum]bool),
		tempSerialnums: make(map[Serialnum][]TempSerialnumEntry),
		txOutputs:      make(map[uint64][]byte),
		validObjs:      make(map[[32]byte][]byte),
	}
}

func (m *MemDbConn) BlockchainSelectMax() (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max uint64
	var found bool
	for level := range m.chain {
		if !found || level > max {
			max = level
			found = true
		}
	}
	return max, found, nil
}

func (m *MemDbConn) BlockchainSelect(level uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.chain[level]
	if !ok {
		return nil, fmt.Errorf("persist: no block stored at level %d", level)
	}
	return raw, nil
}

func (m *MemDbConn) BlockchainInsert(level uint64, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chain[level]; exists {
		return fmt.Errorf("persist: block already stored at level %d", level)
	}
	m.chain[level] = append([]byte(nil), raw...)
	return nil
}

func (m *MemDbConn) ParameterSelect(key uint32, slot uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.params[key]
	if !ok {
		return nil, fmt.Errorf("persist: no parameter slot for key %d", key)
	}
	buf, ok := slots[slot]
	if !ok {
		return nil, fmt.Errorf("persist: no parameter slot %d for key %d", slot, key)
	}
	return buf, nil
}

func (m *MemDbConn) ParameterInsert(key uint32, slot uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.params[key]
	if !ok {
		slots = make(map[uint64][]byte)
		m.params[key] = slots
	}
	slots[slot] = append([]byte(nil), buf...)
	return nil
}

func (m *MemDbConn) SerialnumInsert(serial Serialnum) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.serialnums[serial] {
		return fmt.Errorf("persist: serial number already present: %s", wcrypto.HexString(serial[:]))
	}
	m.serialnums[serial] = true
	return nil
}

func (m *MemDbConn) SerialnumCheck(serial Serialnum) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.serialnums[serial], nil
}

func (m *MemDbConn) TempSerialnumSelect(serial Serialnum) ([]TempSerialnumEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]TempSerialnumEntry(nil), m.tempSerialnums[serial]...), nil
}

func (m *MemDbConn) TempSerialnumInsert(serial Serialnum, entry TempSerialnumEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tempSerialnums[serial] = append(m.tempSerialnums[serial], entry)
	return nil
}

func (m *MemDbConn) TempSerialnumDelete(serial Serialnum, entry TempSerialnumEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.tempSerialnums[serial]
	for i, e := range entries {
		if e == entry {
			m.tempSerialnums[serial] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemDbConn) TxOutputsInsert(commitnum uint64, addr []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txOutputs[commitnum] = append([]byte(nil), addr...)
	return nil
}

func (m *MemDbConn) ValidObjsInsert(oid [32]byte, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.validObjs[oid] = append([]byte(nil), raw...)
	return nil
}

func (m *MemDbConn) ValidObjsDeleteObj(oid [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.validObjs, oid)
	return nil
}

func (m *MemDbConn) ProcessQEnqueueValidate(oid [32]byte) error {
	return nil
}

func (m *MemDbConn) BeginWrite() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writing {
		return fmt.Errorf("persist: write transaction already in progress")
	}
	m.writing = true
	return nil
}

func (m *MemDbConn) EndWrite(commit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writing = false
	return nil
}

func (m *MemDbConn) ReleaseMutex() {}

// =============================================================================

// commitmentLeaf is the Merkle leaf type the in-memory commitment tree is
// instantiated with: a commitnum paired with the caller-supplied digest.
type commitmentLeaf struct {
	Commitnum uint64
	Digest    [32]byte
}

func (l commitmentLeaf) Hash() ([]byte, error) {
	var buf [8 + 32]byte
	binary.LittleEndian.PutUint64(buf[:8], l.Commitnum)
	copy(buf[8:], l.Digest[:])

	h := wcrypto.Hash512(buf[:])
	return h[:], nil
}

func (l commitmentLeaf) Equals(other commitmentLeaf) bool {
	return l.Commitnum == other.Commitnum && l.Digest == other.Digest
}

// MemCommitments is an in-memory Commitments reference implementation,
// instantiating merkle.Tree with commitmentLeaf (BLAKE2b-512-keyed rather
// than the teacher's sha256 default). It is a test double, not the real
// commitment tree (spec §1 non-goals).
type MemCommitments struct {
	mu sync.Mutex

	leaves  []commitmentLeaf
	tree    *merkle.Tree[commitmentLeaf]
	next    uint64
	rootsAt map[uint64][]byte // level -> root at the time UpdateCommitTree was called
}

// NewMemCommitments constructs an empty in-memory commitment tree.
func NewMemCommitments() *MemCommitments {
	return &MemCommitments{rootsAt: make(map[uint64][]byte)}
}

func (c *MemCommitments) Init(dbconn DbConn) error {
	return nil
}

func (c *MemCommitments) GetNextCommitnum(reserve uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next
	c.next += reserve
	return n, nil
}

func (c *MemCommitments) AddCommitment(dbconn DbConn, commitnum uint64, commitment [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leaves = append(c.leaves, commitmentLeaf{Commitnum: commitnum, Digest: commitment})

	tree, err := merkle.NewTree(c.leaves)
	if err != nil {
		return fmt.Errorf("persist: rebuilding commitment tree: %w", err)
	}
	c.tree = tree

	return nil
}

func (c *MemCommitments) UpdateCommitTree(dbconn DbConn, level uint64, timestamp uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree == nil {
		return nil
	}
	c.rootsAt[level] = append([]byte(nil), c.tree.MerkleRoot...)
	return nil
}

// RootAt returns the commitment root as of the given indelible level, for
// tests that need to assert on it.
func (c *MemCommitments) RootAt(level uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, ok := c.rootsAt[level]
	return root, ok
}

// =============================================================================

// MemPersistData is a no-op PersistData: checkpointing is out of scope for
// this core (spec §1), so requests to start/stop one simply succeed.
type MemPersistData struct {
	mu              sync.Mutex
	FullRequests    int
	IncRequests     int
	checkpointingOn bool
}

func (p *MemPersistData) StartCheckpointing() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkpointingOn = true
	return nil
}

func (p *MemPersistData) StartCheckpoint(full bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if full {
		p.FullRequests++
	} else {
		p.IncRequests++
	}
	return nil
}

func (p *MemPersistData) StopCheckpointing() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkpointingOn = false
	return nil
}

func (p *MemPersistData) WaitForFullCheckpoint() error {
	return nil
}

// =============================================================================

// SimpleTxCodec decodes the minimal transaction shape this core needs:
// a u16 count of 64-byte serial numbers, a u16 count of 32-byte output
// commitments, then that many of each. It exists so commit/serialnum tests
// can exercise IndexTxs without a real transaction/proof format (spec §1
// non-goals).
type SimpleTxCodec struct{}

func (SimpleTxCodec) DecodeTx(buf []byte) (Tx, error) {
	if len(buf) < 4 {
		return Tx{}, fmt.Errorf("persist: transaction record too short")
	}

	nin := binary.LittleEndian.Uint16(buf[0:2])
	nout := binary.LittleEndian.Uint16(buf[2:4])
	off := 4

	tx := Tx{Body: buf}

	for i := uint16(0); i < nin; i++ {
		if off+wcrypto.HashSize > len(buf) {
			return Tx{}, fmt.Errorf("persist: truncated serial number at input %d", i)
		}
		var s Serialnum
		copy(s[:], buf[off:off+wcrypto.HashSize])
		tx.Serialnums = append(tx.Serialnums, s)
		off += wcrypto.HashSize
	}

	for i := uint16(0); i < nout; i++ {
		if off+32 > len(buf) {
			return Tx{}, fmt.Errorf("persist: truncated output commitment at output %d", i)
		}
		tx.Outputs = append(tx.Outputs, append([]byte(nil), buf[off:off+32]...))
		off += 32
	}

	return tx, nil
}

// EncodeTx is the inverse of DecodeTx, used by tests to build fixture
// transaction records.
func EncodeTx(serialnums []Serialnum, outputs [][]byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(serialnums)))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(outputs)))

	for _, s := range serialnums {
		buf = append(buf, s[:]...)
	}
	for _, o := range outputs {
		buf = append(buf, o...)
	}

	return buf
}
