package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tidechain/tide/foundation/crypt"
)

func init() {
	rootCmd.AddCommand(vaultExportCmd)
	rootCmd.AddCommand(vaultImportCmd)
}

// vaultExportCmd seals the signing key to the vault's public key so it
// can travel to another machine as an opaque envelope.
var vaultExportCmd = &cobra.Command{
	Use:   "vault-export [out-file]",
	Short: "Seal the signing key to the vault public key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := crypt.LoadRsaPublic(filepath.Join(keysPath, "node.pub.pem"))
		if err != nil {
			return err
		}

		key, err := crypt.LoadPrivateKey(filepath.Join(keysPath, "signing.key"))
		if err != nil {
			return err
		}

		sealed, err := crypt.SealEnvelope(pub, key.Bytes())
		if err != nil {
			return err
		}

		if err := os.WriteFile(args[0], sealed, 0600); err != nil {
			return err
		}
		fmt.Printf("sealed signing key written to %s\n", args[0])
		return nil
	},
}

// vaultImportCmd opens an envelope produced by vault-export using the
// vault's private key and installs the signing key.
var vaultImportCmd = &cobra.Command{
	Use:   "vault-import [in-file]",
	Short: "Open a sealed signing key with the vault private key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := crypt.LoadRsaPrivate(filepath.Join(keysPath, "node.pem"))
		if err != nil {
			return err
		}

		sealed, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		keyBytes, err := crypt.OpenEnvelope(priv, sealed)
		if err != nil {
			return err
		}

		key, err := crypt.PrivateKeyFromBytes(keyBytes)
		if err != nil {
			return err
		}

		dst := filepath.Join(keysPath, "signing.key")
		if err := key.Save(dst); err != nil {
			return err
		}
		fmt.Printf("signing key installed at %s\n", dst)
		return nil
	},
}
