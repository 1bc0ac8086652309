package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/casevault/casevault/crypto"
	"github.com/casevault/casevault/internal/util"
)

var (
	wrapPubPath string
	wrapDataKey string
)

var wrapkeyCmd = &cobra.Command{
	Use:   "wrapkey",
	Short: "Wrap a case data key for a principal's public key",
	Long: `Wraps an AES-256 data key for the given PEM public key and prints the
base64 envelope. Without --data-key a fresh random key is generated and
printed alongside the envelope. Useful for bootstrapping the first case or
repairing an envelope by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pemBytes, err := os.ReadFile(wrapPubPath)
		if err != nil {
			return fmt.Errorf("reading public key: %w", err)
		}
		pub, err := crypto.ParsePublicKeyPEM(pemBytes)
		if err != nil {
			return fmt.Errorf("parsing public key: %w", err)
		}

		var dataKey []byte
		if wrapDataKey != "" {
			dataKey, err = util.B64Decode(wrapDataKey)
			if err != nil {
				return fmt.Errorf("decoding data key: %w", err)
			}
			if len(dataKey) != util.AESKeySize {
				return fmt.Errorf("data key must be %d bytes, got %d", util.AESKeySize, len(dataKey))
			}
		} else {
			dataKey, err = util.NewAESKey()
			if err != nil {
				return fmt.Errorf("generating data key: %w", err)
			}
			fmt.Printf("data key: %s\n", util.B64Encode(dataKey))
		}
		defer util.WipeBytes(dataKey)

		ct, err := crypto.WrapKey(dataKey, pub)
		if err != nil {
			return fmt.Errorf("wrapping data key: %w", err)
		}
		fmt.Printf("envelope: %s\n", util.B64Encode(ct))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(wrapkeyCmd)
	wrapkeyCmd.Flags().StringVar(&wrapPubPath, "public-key", "", "Path to the recipient's PEM public key (required)")
	wrapkeyCmd.Flags().StringVar(&wrapDataKey, "data-key", "", "Base64 data key to wrap (default: generate a new one)")
	wrapkeyCmd.MarkFlagRequired("public-key")
}
