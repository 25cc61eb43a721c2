package block_test

import (
	"testing"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

func makeKeys(n int) ([]wcrypto.PrivateKey, []wcrypto.PublicKey) {
	privs := make([]wcrypto.PrivateKey, n)
	pubs := make([]wcrypto.PublicKey, n)
	for i := range privs {
		privs[i][0] = byte(i + 1)
		privs[i][1] = byte(i + 7)
		pubs[i] = wcrypto.PublicKeyFromSeed(privs[i])
	}
	return privs, pubs
}

func genesisBlock(t *testing.T, nwitnesses, maxmal uint16, pubs []wcrypto.PublicKey) *block.Block {
	t.Helper()

	b := &block.Block{
		Header: block.Header{Level: 0, Timestamp: 1000, Witness: 0},
		Aux:    block.NewBlockAux(),
	}
	b.Aux.Params = block.NewRootParams(nwitnesses, maxmal, pubs)

	if err := b.SetOrVerifyOid(true); err != nil {
		t.Fatalf("genesis SetOrVerifyOid: %v", err)
	}
	return b
}

func Test_HashDeterminism(t *testing.T) {
	_, pubs := makeKeys(1)
	b1 := genesisBlock(t, 1, 0, pubs)
	b2 := genesisBlock(t, 1, 0, pubs)

	if b1.CalcHash() != b2.CalcHash() {
		t.Errorf("expected identical bytes to hash identically")
	}
}

func Test_OidBinding(t *testing.T) {
	_, pubs := makeKeys(1)
	b1 := genesisBlock(t, 1, 0, pubs)

	b2 := &block.Block{
		Header:  block.Header{Level: 0, Timestamp: 1000, Witness: 0},
		Payload: []byte{0x01},
		Aux:     block.NewBlockAux(),
	}
	b2.Aux.Params = block.NewRootParams(1, 0, pubs)
	if err := b2.SetOrVerifyOid(true); err != nil {
		t.Fatalf("SetOrVerifyOid: %v", err)
	}

	if b1.Aux.Oid == b2.Aux.Oid {
		t.Errorf("expected distinct oids for distinct payloads")
	}
}

func Test_SetOrVerifyOidMismatch(t *testing.T) {
	_, pubs := makeKeys(1)
	b := genesisBlock(t, 1, 0, pubs)

	b.Payload = []byte{0xFF}
	if err := b.SetOrVerifyOid(false); err == nil {
		t.Errorf("expected mismatch after mutating payload post-hash")
	}
}

func Test_SignVerifyRoundtrip(t *testing.T) {
	privs, pubs := makeKeys(2)

	genesis := genesisBlock(t, 2, 0, pubs)

	next := &block.Block{
		Header: block.Header{Level: 1, Timestamp: 2000, Witness: 1},
		Aux:    block.NewBlockAux(),
	}
	if err := next.ChainToPriorBlock(genesis); err != nil {
		t.Fatalf("ChainToPriorBlock: %v", err)
	}
	if err := next.SetOrVerifyOid(true); err != nil {
		t.Fatalf("SetOrVerifyOid: %v", err)
	}

	if err := next.SignOrVerify(false, &privs[1], genesis.Aux.Hash); err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := next.SignOrVerify(true, nil, genesis.Aux.Hash); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Flipping a payload byte after signing must break verification.
	next.Payload = []byte{0x01}
	if err := next.SignOrVerify(true, nil, genesis.Aux.Hash); err == nil {
		t.Errorf("expected verify failure after mutating payload")
	}
	next.Payload = nil

	// Substituting a different prior-block hash must break verification
	// too, since the signed preimage is bound to the prior block's hash.
	corruptPrior := genesis.Aux.Hash
	corruptPrior[0] ^= 0xFF
	if err := next.SignOrVerify(true, nil, corruptPrior); err == nil {
		t.Errorf("expected verify failure after substituting prior hash")
	}
}

func Test_ChainToPriorBlockPropagatesParams(t *testing.T) {
	_, pubs := makeKeys(3)
	genesis := genesisBlock(t, 3, 0, pubs)
	genesis.Aux.Params.StageWitnessSetChange(5, 1)

	next := &block.Block{
		Header: block.Header{Level: 1, Witness: 1},
		Aux:    block.NewBlockAux(),
	}
	if err := next.ChainToPriorBlock(genesis); err != nil {
		t.Fatalf("ChainToPriorBlock: %v", err)
	}

	if next.Aux.Params.NWitnesses != 5 || next.Aux.Params.MaxMal != 1 {
		t.Errorf("expected scheduled change to apply, got nwitnesses=%d maxmal=%d",
			next.Aux.Params.NWitnesses, next.Aux.Params.MaxMal)
	}
	if next.Aux.Params.NextNWitnesses != 5 || next.Aux.Params.NextMaxMal != 1 {
		t.Errorf("expected Next* to mirror new current values by default")
	}

	wantConfSigs := (uint16(5)-1)/2 + 1 + 1
	if next.Aux.Params.NConfSigs != wantConfSigs {
		t.Errorf("got nconfsigs %d, want %d", next.Aux.Params.NConfSigs, wantConfSigs)
	}
}

func Test_ComputeSkip(t *testing.T) {
	cases := []struct {
		prev, next uint8
		n          uint16
		want       uint16
	}{
		{3, 5, 21, 1},
		{20, 0, 21, 0},
		{0, 0, 21, 20},
	}

	for _, c := range cases {
		got := block.ComputeSkip(c.prev, c.next, c.n)
		if got != c.want {
			t.Errorf("ComputeSkip(%d,%d,%d) = %d, want %d", c.prev, c.next, c.n, got, c.want)
		}
	}
}

func Test_SetConfSigsWorkedExample(t *testing.T) {
	p := block.BlockchainParams{NWitnesses: 3, MaxMal: 0}
	p.SetConfSigs()

	if p.NConfSigs != 2 || p.NSeqConfSigs != 2 || p.NSkipConfSigs != 3 {
		t.Errorf("got nconfsigs=%d nseqconfsigs=%d nskipconfsigs=%d, want 2,2,3",
			p.NConfSigs, p.NSeqConfSigs, p.NSkipConfSigs)
	}
}

func Test_ArenaInChain(t *testing.T) {
	_, pubs := makeKeys(2)
	arena := block.NewArena()

	genesis := genesisBlock(t, 2, 0, pubs)
	arena.Attach(genesis)

	b1 := &block.Block{Header: block.Header{Level: 1, Witness: 1}, Aux: block.NewBlockAux()}
	if err := b1.ChainToPriorBlock(genesis); err != nil {
		t.Fatal(err)
	}
	b1.SetOrVerifyOid(true)
	arena.Attach(b1)

	b2 := &block.Block{Header: block.Header{Level: 2, Witness: 0}, Aux: block.NewBlockAux()}
	if err := b2.ChainToPriorBlock(b1); err != nil {
		t.Fatal(err)
	}
	b2.SetOrVerifyOid(true)
	arena.Attach(b2)

	if !arena.InChain(b2.Aux, genesis.Aux.Oid, 0) {
		t.Errorf("expected genesis to be an ancestor of b2")
	}
	if !arena.InChain(b2.Aux, b1.Aux.Oid, 0) {
		t.Errorf("expected b1 to be an ancestor of b2")
	}

	other := genesisBlock(t, 2, 0, pubs)
	other.Payload = []byte{0x02}
	other.SetOrVerifyOid(true)
	if arena.InChain(b2.Aux, other.Aux.Oid, 0) {
		t.Errorf("expected unrelated block not to be found in chain")
	}
}
