package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/secret"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the project key",
		Long: `The project key is the root secret of a Sluice installation. Connection settings
are encrypted and assertions are signed with keys derived from it.`,
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyFingerprintCmd())

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "generate",
		Short:   "Generate a new project key",
		Example: `  export SLUICE_AUTH_PROJECT_KEY=$(sluice key generate)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := secret.GenerateProjectKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}
}

// ---------- key fingerprint ----------

func newKeyFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Show the fingerprint of the configured project key",
		Long:  "Print the fingerprints of the derived encryption key and, if recorded, the key the store was created with.",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configured: %s\n", k.encryption.Fingerprint())

			store, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()
			stored, err := store.GetSetting(cmd.Context(), settingKeyFingerprint)
			if err != nil {
				stored = "(none recorded)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Store:      %s\n", stored)
			return nil
		},
	}
}
