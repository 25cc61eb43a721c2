package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/coreledger/witnesschain/foundation/blockchain/genesis"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the contents of a genesis data file",
	Run:   inspectRun,
}

func inspectRun(cmd *cobra.Command, args []string) {
	g, err := genesis.Load(genesisPath)
	if err != nil {
		log.Fatalf("loading genesis file %s: %v", genesisPath, err)
	}

	fmt.Printf("nwitnesses: %d\n", g.NWitnesses)
	fmt.Printf("maxmal:     %d\n", g.MaxMal)
	fmt.Println("signing keys:")
	for i, pub := range g.SigningKeys {
		fmt.Printf("  %2d: %s\n", i, wcrypto.HexString(pub[:]))
	}
}
