// Package block implements the blockchain core's in-memory block object:
// the fixed wire header, the mutable aux side-car, chain parameters, and
// the block arena that holds the branching in-memory DAG (spec §3, §4.1,
// §4.2).
package block

import (
	"encoding/binary"
	"fmt"

	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

// OidSize is the width of an object id. The spec treats oid size as
// determined by an external object framework; this core fixes it at 32
// bytes, the width of the BLAKE2b-256 rehash CalcOid performs on the block
// hash.
const OidSize = 32

// Oid is the canonical object identifier of a block, derived from its hash.
type Oid [OidSize]byte

// IsZero reports whether o is the unset oid.
func (o Oid) IsZero() bool {
	return o == Oid{}
}

// ObjTagBlock is the object-framework tag that marks this object as a
// block, distinguishing it from a transaction object.
const ObjTagBlock uint8 = 0x01

// headerSize is the packed, little-endian wire size of Header:
// signature[64] || prior_oid[OidSize] || level u64 || timestamp u64 || witness u8.
const headerSize = wcrypto.SignatureSize + OidSize + 8 + 8 + 1

// Header is the fixed-width block wire header (spec §3). It precedes the
// transaction payload on the wire and as stored.
type Header struct {
	Signature wcrypto.Signature
	PriorOid  Oid
	Level     uint64
	Timestamp uint64
	Witness   uint8
}

// HeaderSize returns the packed wire size of a Header.
func HeaderSize() int {
	return headerSize
}

// Encode serializes h into its packed little-endian wire representation.
func (h Header) Encode() []byte {
	buf := make([]byte, headerSize)

	off := 0
	copy(buf[off:], h.Signature[:])
	off += wcrypto.SignatureSize

	copy(buf[off:], h.PriorOid[:])
	off += OidSize

	binary.LittleEndian.PutUint64(buf[off:], h.Level)
	off += 8

	binary.LittleEndian.PutUint64(buf[off:], h.Timestamp)
	off += 8

	buf[off] = h.Witness

	return buf
}

// DecodeHeader parses a packed little-endian Header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("block: header too short, got %d bytes, need %d", len(buf), headerSize)
	}

	var h Header
	off := 0

	copy(h.Signature[:], buf[off:])
	off += wcrypto.SignatureSize

	copy(h.PriorOid[:], buf[off:])
	off += OidSize

	h.Level = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	h.Timestamp = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	h.Witness = buf[off]

	return h, nil
}

// =============================================================================

// SignedPreimage builds the signed-data preimage (spec §3): prior block
// hash (64 B), this block hash (64 B), block size (u32), witness (u8). It
// is hashed for signing and never stored on the wire; binding to both the
// body hash and the prior block's hash prevents substitution of the prior
// chain.
func SignedPreimage(priorHash, thisHash wcrypto.Hash, blockSize uint32, witness uint8) []byte {
	buf := make([]byte, 64+64+4+1)

	off := 0
	copy(buf[off:], priorHash[:])
	off += 64

	copy(buf[off:], thisHash[:])
	off += 64

	binary.LittleEndian.PutUint32(buf[off:], blockSize)
	off += 4

	buf[off] = witness

	return buf
}

// TxRecords walks a block payload, yielding the byte slice of each
// length-prefixed transaction record. The first field of every record is
// its u32 byte length (spec §3).
func TxRecords(payload []byte) ([][]byte, error) {
	var out [][]byte

	off := 0
	for off < len(payload) {
		if off+4 > len(payload) {
			return nil, fmt.Errorf("block: truncated transaction length prefix at offset %d", off)
		}

		txsize := binary.LittleEndian.Uint32(payload[off:])
		off += 4

		if uint64(off)+uint64(txsize) > uint64(len(payload)) {
			return nil, fmt.Errorf("block: truncated transaction body at offset %d, want %d bytes", off, txsize)
		}

		out = append(out, payload[off:off+int(txsize)])
		off += int(txsize)
	}

	return out, nil
}

// EncodeTxRecords concatenates the given transaction bodies into a payload
// of length-prefixed records, the inverse of TxRecords.
func EncodeTxRecords(txs [][]byte) []byte {
	var size int
	for _, tx := range txs {
		size += 4 + len(tx)
	}

	buf := make([]byte, 0, size)
	var tmp [4]byte
	for _, tx := range txs {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(tx)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, tx...)
	}

	return buf
}
