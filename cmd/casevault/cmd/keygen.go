package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/casevault/casevault/casekeys"
	"github.com/casevault/casevault/crypto"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a passphrase-wrapped system key pair",
	Long: `Generates an RSA key pair for the system-root principal, wraps the
private half under the passphrase from ` + passphraseEnv + `, and writes a
yaml fragment ready to paste into the server config as system_key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := passphraseFromEnv()
		if err != nil {
			return err
		}

		priv, err := crypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}

		pubPEM, err := crypto.EncodePublicKeyPEM(&priv.PublicKey)
		if err != nil {
			return fmt.Errorf("encoding public key: %w", err)
		}
		blob, err := crypto.WrapPrivateKey(string(crypto.EncodePrivateKeyPEM(priv)), passphrase)
		if err != nil {
			return fmt.Errorf("wrapping private key: %w", err)
		}

		fragment := struct {
			SystemKey casekeys.SystemKeyPair `yaml:"system_key"`
		}{
			SystemKey: casekeys.SystemKeyPair{
				PublicKeyPEM:        string(pubPEM),
				EncryptedPrivateKey: blob,
			},
		}
		data, err := yaml.Marshal(fragment)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}

		if keygenOut == "" {
			cmd.OutOrStdout().Write(data)
			return nil
		}
		if err := os.WriteFile(keygenOut, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", keygenOut, err)
		}
		fmt.Printf("Wrote system key pair to %s\n", keygenOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "Write the yaml fragment to a file instead of stdout")
}
