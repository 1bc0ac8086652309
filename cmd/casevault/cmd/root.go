package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "casevault",
	Short: "CaseVault is a key-management service for encrypted case records",
	Long: `CaseVault manages the envelope-encryption keys of clinical case records:
principal enrollment, per-case key fan-out, and backfill of historical cases
for newly enrolled principals.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
