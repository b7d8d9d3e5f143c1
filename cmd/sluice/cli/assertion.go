package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newAssertionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assertion",
		Short: "Work with signed assertions",
	}

	cmd.AddCommand(newAssertionVerifyCmd())

	return cmd
}

func newAssertionVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <assertion>",
		Short: "Verify an assertion and print its claims",
		Long:  "Check the signature and expiry of an assertion minted by /authorization/assertion.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			claims, err := a.codec.Decode(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			out := map[string]any{
				"subject": claims.Subject,
				"issuer":  claims.Issuer,
				"tenant":  claims.Tenant,
				"app_id":  claims.AppID,
				"scope":   claims.Scope,
			}
			if claims.ExpiresAt != nil {
				out["expires_at"] = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Assertion is valid.")
			return printJSON(out)
		},
	}
}
