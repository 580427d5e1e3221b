package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Query the balance of an account over the node's public API.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var account struct {
			Address string `json:"address"`
			Type    string `json:"type"`
			Balance string `json:"balance"`
		}
		if err := getJSON(fmt.Sprintf("%s/v1/accounts/%s", nodeURL, args[0]), &account); err != nil {
			return err
		}

		fmt.Printf("address: %s\n", account.Address)
		fmt.Printf("type:    %s\n", account.Type)
		fmt.Printf("balance: %s\n", account.Balance)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the node's chain tip and pending transaction count.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status struct {
			Address  string `json:"address"`
			TopHash  string `json:"top_hash"`
			TopDepth uint64 `json:"top_depth"`
			Pending  int    `json:"pending_transactions"`
		}
		if err := getJSON(fmt.Sprintf("%s/v1/node/status", nodeURL), &status); err != nil {
			return err
		}

		fmt.Printf("node:    %s\n", status.Address)
		fmt.Printf("top:     %s (depth %d)\n", status.TopHash, status.TopDepth)
		fmt.Printf("pending: %d\n", status.Pending)
		return nil
	},
}

// getJSON performs a GET against the node's public API.
func getJSON(url string, dataRecv any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dataRecv)
}
