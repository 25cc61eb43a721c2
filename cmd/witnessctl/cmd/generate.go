package cmd

import (
	"crypto/rand"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/coreledger/witnesschain/foundation/blockchain/genesis"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

var (
	nwitnesses uint32
	maxmal     uint32
)

func init() {
	generateCmd.Flags().Uint32VarP(&nwitnesses, "nwitnesses", "n", 4, "Number of witnesses in the genesis set.")
	generateCmd.Flags().Uint32VarP(&maxmal, "maxmal", "m", 1, "Maximum number of malicious witnesses tolerated.")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new witness set: one signing key per witness plus the genesis data file",
	Run:   generateRun,
}

// generateRun draws a fresh Ed25519 seed per witness (crypto/ed25519 has no
// dedicated key-gen helper in the pack the way go-ethereum's crypto package
// does for secp256k1; crypto/rand fills the seed directly, the same way
// ed25519.GenerateKey does internally), writes each private key file, and
// assembles+writes the genesis data file from the derived public keys.
func generateRun(cmd *cobra.Command, args []string) {
	g := genesis.Genesis{
		NWitnesses:  nwitnesses,
		MaxMal:      maxmal,
		SigningKeys: make([]wcrypto.PublicKey, nwitnesses),
	}

	for i := range g.SigningKeys {
		var priv wcrypto.PrivateKey
		if _, err := rand.Read(priv[:]); err != nil {
			log.Fatalf("generating key for witness %d: %v", i, err)
		}

		if err := genesis.WritePrivateKey(keyDir, i, priv); err != nil {
			log.Fatalf("writing private key for witness %d: %v", i, err)
		}

		g.SigningKeys[i] = wcrypto.PublicKeyFromSeed(priv)
	}

	if err := genesis.Write(genesisPath, g); err != nil {
		log.Fatalf("writing genesis file: %v", err)
	}

	fmt.Printf("wrote genesis file %s with %d witnesses (maxmal=%d)\n", genesisPath, g.NWitnesses, g.MaxMal)
	fmt.Printf("wrote private keys under %s\n", keyDir)
}
