package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/pkg/color"
)

var (
	keygenOutDir string
	keygenBits   int
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an update signing key pair",
	Long: `Generate an RSA key pair for signing update packages.

Writes update_signing.pem (private, mode 0600) and update_verify.pem
(public) into --out-dir. The signing key stays on the authoring station;
only the verify key is copied to each appliance, at
.quorum/keys/update_verify.pem.

Examples:
  quorum keygen --out-dir ./keys
  quorum keygen --out-dir ./keys --bits 4096`,
	Run: func(cmd *cobra.Command, args []string) {
		if keygenOutDir == "" {
			fmtErr("--out-dir is required")
			os.Exit(1)
		}

		privPEM, pubPEM, err := integrity.GenerateKeyPair(keygenBits)
		if err != nil {
			fmtErr("generate key pair: %v", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(keygenOutDir, 0o755); err != nil {
			fmtErr("create output directory: %v", err)
			os.Exit(1)
		}

		signingPath := filepath.Join(keygenOutDir, "update_signing.pem")
		verifyPath := filepath.Join(keygenOutDir, "update_verify.pem")

		// Refuse to clobber an existing signing key.
		if _, err := os.Stat(signingPath); err == nil {
			fmtErr("%s already exists", signingPath)
			os.Exit(1)
		}

		if err := os.WriteFile(signingPath, privPEM, 0o600); err != nil {
			fmtErr("write signing key: %v", err)
			os.Exit(1)
		}
		if err := os.WriteFile(verifyPath, pubPEM, 0o644); err != nil {
			fmtErr("write verify key: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"signing_key": signingPath,
				"verify_key":  verifyPath,
				"bits":        keygenBits,
			})
			return
		}

		fmt.Printf("Generated %d-bit RSA key pair\n", keygenBits)
		fmt.Printf("  Signing key: %s (keep on the authoring station)\n", color.Highlight(signingPath))
		fmt.Printf("  Verify key:  %s\n", color.Highlight(verifyPath))
		fmt.Printf("Copy the verify key to each appliance at %s\n",
			color.Code(filepath.Join(".quorum", "keys", "update_verify.pem")))
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOutDir, "out-dir", "", "directory to write the key pair into")
	keygenCmd.Flags().IntVar(&keygenBits, "bits", 3072, "RSA key size in bits (minimum 2048)")
	rootCmd.AddCommand(keygenCmd)
}
