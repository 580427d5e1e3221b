package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/crypt"
)

var (
	sendFee  uint64
	sendData string
)

func init() {
	sendCmd.Flags().Uint64VarP(&sendFee, "fee", "f", 0, "Fee offered to the coinbase.")
	sendCmd.Flags().StringVarP(&sendData, "data", "d", "", "Base64 payload (contract code or call data).")
}

var sendCmd = &cobra.Command{
	Use:   "send [to] [amount]",
	Short: "Sign a transaction with the local signing key and submit it.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypt.LoadPrivateKey(filepath.Join(keysPath, "signing.key"))
		if err != nil {
			return err
		}

		to, err := database.ToAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := database.BalanceFromString(args[1])
		if err != nil {
			return err
		}

		var data []byte
		if sendData != "" {
			if data, err = crypt.Base64Decode(sendData); err != nil {
				return err
			}
		}

		builder := database.TxBuilder{}
		tx, err := builder.
			SetFrom(database.AddressFromPublicKey(key.PublicKey())).
			SetTo(to).
			SetAmount(amount).
			SetFee(sendFee).
			SetTimestamp(uint32(time.Now().UTC().Unix())).
			SetData(data).
			Build()
		if err != nil {
			return err
		}
		if err := tx.SignTx(key); err != nil {
			return err
		}

		payload := map[string]any{
			"from":       tx.From.String(),
			"to":         tx.To.String(),
			"amount":     tx.Amount.Dec(),
			"fee":        tx.Fee,
			"timestamp":  tx.Timestamp,
			"data":       crypt.Base64Encode(tx.Data),
			"public_key": crypt.Base64Encode(tx.Sign.PublicKey),
			"signature":  crypt.Base64Encode(tx.Sign.Signature),
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", nodeURL), "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Hash   string `json:"hash"`
			Status struct {
				Code string `json:"code"`
			} `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return err
		}

		fmt.Printf("tx:     %s\n", result.Hash)
		fmt.Printf("status: %s\n", result.Status.Code)
		return nil
	},
}
