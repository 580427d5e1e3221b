// Package commands contains the admin tooling for a running node.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	nodeURL  string
	keysPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&nodeURL, "node", "n", "http://localhost:8080", "Base URL of the node's public API.")
	rootCmd.PersistentFlags().StringVarP(&keysPath, "keys-path", "p", "zblock/keys/", "Path to the directory with key material.")

	rootCmd.AddCommand(genesisCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sendCmd)
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin tooling for the tide node",
}

// Execute runs the selected command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
