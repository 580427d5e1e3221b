package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidechain/tide/foundation/blockchain/genesis"
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Print the deterministic genesis block hash.",
	RunE: func(cmd *cobra.Command, args []string) error {
		gen := genesis.Block()
		fmt.Printf("hash:      %s\n", gen.Hash())
		fmt.Printf("timestamp: %d\n", gen.Timestamp)
		fmt.Printf("recipient: %s\n", gen.Trans[0].To)
		fmt.Printf("supply:    %s\n", gen.Trans[0].Amount.Dec())
		return nil
	},
}
