// Package cmd implements the witnessctl CLI: generating and inspecting
// genesis data and per-witness private key files (spec §6).
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var genesisPath string
var keyDir string

func init() {
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.dat", "Path to the genesis data file.")
	rootCmd.PersistentFlags().StringVarP(&keyDir, "key-dir", "k", "zblock/keys/", "Directory holding per-witness private key files.")
}

var rootCmd = &cobra.Command{
	Use:   "witnessctl",
	Short: "Generate and inspect witness chain genesis data and signing keys",
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
