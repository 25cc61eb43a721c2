package genesis_test

import (
	"path/filepath"
	"testing"

	"github.com/coreledger/witnesschain/foundation/blockchain/genesis"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

func testGenesis(t *testing.T, n uint32) genesis.Genesis {
	t.Helper()

	keys := make([]wcrypto.PublicKey, n)
	for i := range keys {
		var priv wcrypto.PrivateKey
		priv[0] = byte(i)
		keys[i] = wcrypto.PublicKeyFromSeed(priv)
	}

	return genesis.Genesis{NWitnesses: n, MaxMal: 0, SigningKeys: keys}
}

func Test_EncodeDecodeRoundtrip(t *testing.T) {
	g := testGenesis(t, 3)

	data, err := g.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := genesis.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.NWitnesses != g.NWitnesses || got.MaxMal != g.MaxMal {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", got, g)
	}
	for i := range g.SigningKeys {
		if got.SigningKeys[i] != g.SigningKeys[i] {
			t.Errorf("signing key %d mismatch", i)
		}
	}
}

func Test_DecodeBadMagic(t *testing.T) {
	g := testGenesis(t, 1)
	data, _ := g.Encode()
	data[0] ^= 0xFF

	if _, err := genesis.Decode(data); err == nil {
		t.Errorf("expected error for bad magic")
	}
}

func Test_ValidateRejectsMaxMalTooLarge(t *testing.T) {
	g := testGenesis(t, 3)
	g.MaxMal = 3

	if err := g.Validate(); err == nil {
		t.Errorf("expected error when maxmal >= nwitnesses")
	}
}

func Test_WriteLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.dat")

	g := testGenesis(t, 5)
	if err := genesis.Write(path, g); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := genesis.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.NWitnesses != g.NWitnesses {
		t.Errorf("got nwitnesses %d, want %d", got.NWitnesses, g.NWitnesses)
	}
}

func Test_PrivateKeyRoundtrip(t *testing.T) {
	dir := t.TempDir()

	var priv wcrypto.PrivateKey
	for i := range priv {
		priv[i] = byte(i)
	}

	if err := genesis.WritePrivateKey(dir, 2, priv); err != nil {
		t.Fatalf("write private key: %v", err)
	}

	exists, err := genesis.PrivateKeyExists(dir, 2)
	if err != nil || !exists {
		t.Fatalf("expected key to exist, err=%v exists=%v", err, exists)
	}

	got, err := genesis.LoadPrivateKey(dir, 2)
	if err != nil {
		t.Fatalf("load private key: %v", err)
	}
	if got != priv {
		t.Errorf("private key roundtrip mismatch")
	}

	missing, err := genesis.PrivateKeyExists(dir, 9)
	if err != nil || missing {
		t.Fatalf("expected witness 9 key to be absent, err=%v exists=%v", err, missing)
	}
}
