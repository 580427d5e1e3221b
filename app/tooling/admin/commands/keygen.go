package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/crypt"
)

var rsaBits int

func init() {
	keygenCmd.Flags().IntVar(&rsaBits, "bits", 2048, "RSA key length for the vault pair.")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the node's key vault and a signing key.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(keysPath, 0755); err != nil {
			return err
		}

		pub, priv, err := crypt.GenerateRsaKeys(rsaBits)
		if err != nil {
			return err
		}

		pubPath := filepath.Join(keysPath, "node.pub.pem")
		privPath := filepath.Join(keysPath, "node.pem")
		if err := crypt.SaveRsaPublic(pub, pubPath); err != nil {
			return err
		}
		if err := crypt.SaveRsaPrivate(priv, privPath); err != nil {
			return err
		}

		pubBytes, err := crypt.PublicKeyBytes(pub)
		if err != nil {
			return err
		}
		fmt.Printf("vault:   %s, %s\n", pubPath, privPath)
		fmt.Printf("address: %s\n", database.AddressFromPublicKey(pubBytes))

		signKey, err := crypt.GeneratePrivateKey()
		if err != nil {
			return err
		}

		signPath := filepath.Join(keysPath, "signing.key")
		if err := signKey.Save(signPath); err != nil {
			return err
		}
		fmt.Printf("signing: %s (address %s)\n", signPath, database.AddressFromPublicKey(signKey.PublicKey()))
		return nil
	},
}
