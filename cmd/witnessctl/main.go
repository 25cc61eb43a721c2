// Command witnessctl generates and inspects genesis/witness key material.
package main

import "github.com/coreledger/witnesschain/cmd/witnessctl/cmd"

func main() {
	cmd.Execute()
}
