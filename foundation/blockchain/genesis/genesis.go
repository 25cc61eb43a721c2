// Package genesis maintains access to the genesis data file and the
// per-witness private key files (spec §6).
package genesis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

// Magic identifies a genesis data file. Little-endian 0x00474343.
const Magic uint32 = 0x00474343

// MaxNWitnesses bounds the witness set size (spec §3 invariant).
const MaxNWitnesses = 21

const headerSize = 4 + 4 + 4 // magic + nwitnesses + maxmal

// Genesis represents the parsed contents of the genesis data file.
type Genesis struct {
	NWitnesses uint32
	MaxMal     uint32
	SigningKeys []wcrypto.PublicKey
}

// Validate checks the structural invariants spec §3 requires of a genesis
// witness set.
func (g Genesis) Validate() error {
	if g.NWitnesses == 0 || g.NWitnesses > MaxNWitnesses {
		return fmt.Errorf("genesis: nwitnesses %d out of range (1..=%d)", g.NWitnesses, MaxNWitnesses)
	}
	if g.MaxMal >= g.NWitnesses {
		return fmt.Errorf("genesis: maxmal %d must be less than nwitnesses %d", g.MaxMal, g.NWitnesses)
	}
	if uint32(len(g.SigningKeys)) != g.NWitnesses {
		return fmt.Errorf("genesis: expected %d signing keys, got %d", g.NWitnesses, len(g.SigningKeys))
	}
	return nil
}

// Encode serializes the genesis file to its on-disk packed little-endian
// representation (spec §6).
func (g Genesis) Encode() ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, headerSize+len(g.SigningKeys)*wcrypto.PublicKeySize)
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], Magic)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], g.NWitnesses)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], g.MaxMal)
	buf = append(buf, tmp[:]...)

	for _, pk := range g.SigningKeys {
		buf = append(buf, pk[:]...)
	}

	return buf, nil
}

// Decode parses the on-disk genesis file format.
func Decode(data []byte) (Genesis, error) {
	if len(data) < headerSize {
		return Genesis{}, fmt.Errorf("genesis: file too short, got %d bytes", len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != Magic {
		return Genesis{}, fmt.Errorf("genesis: bad magic %#x, expected %#x", magic, Magic)
	}

	nwitnesses := binary.LittleEndian.Uint32(data[4:8])
	maxmal := binary.LittleEndian.Uint32(data[8:12])

	want := headerSize + int(nwitnesses)*wcrypto.PublicKeySize
	if len(data) != want {
		return Genesis{}, fmt.Errorf("genesis: expected %d bytes for %d witnesses, got %d", want, nwitnesses, len(data))
	}

	keys := make([]wcrypto.PublicKey, nwitnesses)
	r := bytes.NewReader(data[headerSize:])
	for i := range keys {
		if _, err := r.Read(keys[i][:]); err != nil {
			return Genesis{}, fmt.Errorf("genesis: reading key %d: %w", i, err)
		}
	}

	g := Genesis{NWitnesses: nwitnesses, MaxMal: maxmal, SigningKeys: keys}
	if err := g.Validate(); err != nil {
		return Genesis{}, err
	}

	return g, nil
}

// Load reads and parses the genesis data file from path.
func Load(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	return Decode(data)
}

// Write serializes g and stores it at path.
func Write(path string, g Genesis) error {
	data, err := g.Encode()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !os.IsExist(err) {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// =============================================================================

// privateKeyFileName returns the conventional per-witness private key file
// name, "private_signing_key_witness_<i>.dat" (spec §6).
func privateKeyFileName(witness int) string {
	return fmt.Sprintf("private_signing_key_witness_%d.dat", witness)
}

// WritePrivateKey stores the raw 32-byte Ed25519 secret seed for the given
// witness index under dir.
func WritePrivateKey(dir string, witness int, priv wcrypto.PrivateKey) error {
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return err
	}

	path := filepath.Join(dir, privateKeyFileName(witness))
	return os.WriteFile(path, priv[:], 0o600)
}

// LoadPrivateKey reads the raw 32-byte Ed25519 secret seed for the given
// witness index from dir.
func LoadPrivateKey(dir string, witness int) (wcrypto.PrivateKey, error) {
	path := filepath.Join(dir, privateKeyFileName(witness))

	data, err := os.ReadFile(path)
	if err != nil {
		return wcrypto.PrivateKey{}, err
	}
	if len(data) != wcrypto.PrivateKeySize {
		return wcrypto.PrivateKey{}, fmt.Errorf("genesis: private key file %s has %d bytes, expected %d", path, len(data), wcrypto.PrivateKeySize)
	}

	var priv wcrypto.PrivateKey
	copy(priv[:], data)
	return priv, nil
}

// PrivateKeyExists reports whether a private key file for witness is
// present under dir, tolerating the file simply not existing.
func PrivateKeyExists(dir string, witness int) (bool, error) {
	path := filepath.Join(dir, privateKeyFileName(witness))

	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
