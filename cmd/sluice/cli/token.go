package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, list and revoke access tokens",
	}

	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenMintCmd())
	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenRevokeCmd())

	return cmd
}

// ---------- token issue ----------

// issuedToken is the YAML rendering of a grant response.
type issuedToken struct {
	AccessToken  string `yaml:"access_token"`
	TokenType    string `yaml:"token_type"`
	ExpiresIn    int    `yaml:"expires_in"`
	RefreshToken string `yaml:"refresh_token"`
	Scope        string `yaml:"scope"`
}

func newTokenIssueCmd() *cobra.Command {
	var req service.GrantRequest
	var grantType string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token the same way the token endpoint does",
		Long: `Run a grant against the local store and print the token response as YAML.
An empty --scope requests every scope the user and app share.`,
		Example: `  sluice token issue --key abc --secret xyz --scope backend,authorization
  sluice token issue --key abc --secret xyz --grant-type password --username alice --password secret123`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gt, err := service.ParseGrantType(grantType)
			if err != nil {
				return err
			}
			req.Type = gt
			if req.ClientSecret == "" {
				req.ClientSecret = os.Getenv("SLUICE_APP_SECRET")
			}
			return runTokenIssue(cmd.Context(), req)
		},
	}

	cmd.Flags().StringVar(&grantType, "grant-type", "client_credentials", "Grant type: client_credentials, password or refresh_token")
	cmd.Flags().StringVar(&req.ClientID, "key", "", "App key (required)")
	cmd.Flags().StringVar(&req.ClientSecret, "secret", "", "App secret (default: $SLUICE_APP_SECRET)")
	cmd.Flags().StringVar(&req.Scope, "scope", "", "Comma separated scopes to request")
	cmd.Flags().StringVar(&req.Username, "username", "", "User name (password grant)")
	cmd.Flags().StringVar(&req.Password, "password", "", "User password (password grant)")
	cmd.Flags().StringVar(&req.RefreshToken, "refresh-token", "", "Refresh token (refresh_token grant)")
	cmd.MarkFlagRequired("key")

	return cmd
}

func runTokenIssue(ctx context.Context, req service.GrantRequest) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	req.Tenant = a.tenant
	req.RemoteAddr = "cli"
	tok, err := a.grants.Grant(ctx, req)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	resp := tok.Response()
	out, err := yaml.Marshal(issuedToken{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	})
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

// ---------- token mint ----------

// mintedToken is the YAML rendering of an operator-minted token.
type mintedToken struct {
	App     string `yaml:"App,omitempty"`
	User    string `yaml:"User"`
	Token   string `yaml:"Token"`
	Expires string `yaml:"Expires"`
	Scope   string `yaml:"Scope"`
}

func newTokenMintCmd() *cobra.Command {
	var (
		appID  int64
		userID int64
		scope  string
		expire string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token for a user without their credentials",
		Long: `Mint a token directly, as an operator. Scopes are still limited to what the
user (and the app, when --app is given) holds. --expire takes an ISO-8601
duration such as P1M or P2D, a Go duration or a phrase like "2 days".`,
		Example: `  sluice token mint --app 1 --user 1 --scope backend,authorization --expire P1M
  sluice token mint --user 4 --name ci --expire "7 days"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			req := service.MintRequest{UserID: userID, Name: name, Scope: scope}
			if cmd.Flags().Changed("app") {
				req.AppID = &appID
			}
			if expire != "" {
				if req.TTL, err = config.ParseTTL(expire); err != nil {
					return err
				}
			}
			out, err := mintToken(cmd.Context(), a, req)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}

	cmd.Flags().Int64Var(&appID, "app", 0, "App ID the token is issued through")
	cmd.Flags().Int64Var(&userID, "user", 0, "User ID the token is issued to (required)")
	cmd.Flags().StringVar(&scope, "scope", "", "Comma separated scopes (default: all the user and app share)")
	cmd.Flags().StringVar(&expire, "expire", "", "Token lifetime (default: auth.expire_token)")
	cmd.Flags().StringVar(&name, "name", "", "Label stored with the token")
	cmd.MarkFlagRequired("user")

	return cmd
}

// mintToken mints req in the app's tenant and renders the result as YAML.
func mintToken(ctx context.Context, a *app, req service.MintRequest) ([]byte, error) {
	req.Tenant = a.tenant
	req.RemoteAddr = "cli"
	tok, err := a.grants.Mint(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	user, err := a.store.GetUser(ctx, a.tenant, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	out := mintedToken{
		User:    user.Name,
		Token:   tok.Token,
		Expires: tok.ExpiresAt.Local().Format("2006-01-02"),
		Scope:   strings.Join(tok.Scopes, ","),
	}
	if req.AppID != nil {
		app, err := a.store.GetApp(ctx, a.tenant, *req.AppID)
		if err != nil {
			return nil, fmt.Errorf("get app: %w", err)
		}
		out.App = app.Name
	}
	return yaml.Marshal(out)
}

// ---------- token list ----------

func newTokenListCmd() *cobra.Command {
	var (
		appID      int64
		userID     int64
		active     bool
		jsonOutput bool
		f          model.TokenFilter
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tokens, newest first",
		Example: `  sluice token list --active --scope backend
  sluice token list --app 3 --limit 20 --offset 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("app") {
				f.AppID = &appID
			}
			if cmd.Flags().Changed("user") {
				f.UserID = &userID
			}
			if active {
				f.Status = model.TokenStatusActive
			}
			return runTokenList(cmd.Context(), f, jsonOutput)
		},
	}

	cmd.Flags().Int64Var(&appID, "app", 0, "Only tokens of this app ID")
	cmd.Flags().Int64Var(&userID, "user", 0, "Only tokens of this user ID")
	cmd.Flags().StringVar(&f.Scope, "scope", "", "Only tokens whose scope list contains this text")
	cmd.Flags().StringVar(&f.IP, "ip", "", "Only tokens issued to this address")
	cmd.Flags().BoolVar(&active, "active", false, "Only tokens that have not been revoked")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum number of tokens")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "Number of tokens to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTokenList(ctx context.Context, f model.TokenFilter, jsonOutput bool) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	tokens, total, err := a.store.ListTokens(ctx, a.tenant, f)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"tokens": tokens, "total": total})
	}

	if len(tokens) == 0 {
		fmt.Println("No tokens match.")
		return nil
	}

	fmt.Printf("%-6s %-6s %-6s %-8s %-16s %-17s %s\n", "ID", "APP", "USER", "STATUS", "IP", "EXPIRES", "SCOPE")
	fmt.Printf("%-6s %-6s %-6s %-8s %-16s %-17s %s\n", "--", "---", "----", "------", "--", "-------", "-----")
	for _, t := range tokens {
		app := "-"
		if t.AppID != nil {
			app = strconv.FormatInt(*t.AppID, 10)
		}
		status := "active"
		if t.Status != model.TokenStatusActive {
			status = "revoked"
		}
		fmt.Printf("%-6d %-6s %-6d %-8s %-16s %-17s %s\n", t.ID, app, t.UserID, status, t.IP, formatTime(t.ExpiresAt), t.Scope)
	}
	fmt.Printf("\n%d of %d\n", len(tokens), total)
	return nil
}

// ---------- token revoke ----------

func newTokenRevokeCmd() *cobra.Command {
	var raw string

	cmd := &cobra.Command{
		Use:   "revoke [id]",
		Short: "Revoke a token by ID or by value",
		Example: `  sluice token revoke 42
  sluice token revoke --token "$ACCESS_TOKEN"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (raw == "") {
				return errors.New("specify either a token ID or --token")
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if raw != "" {
				if err := a.issuer.RevokeValue(cmd.Context(), a.tenant, strings.TrimSpace(raw)); err != nil {
					return fmt.Errorf("revoke token: %w", err)
				}
				fmt.Println("Token revoked.")
				return nil
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}
			if err := a.issuer.Revoke(cmd.Context(), a.tenant, id); err != nil {
				return fmt.Errorf("revoke token %d: %w", id, err)
			}
			fmt.Printf("Revoked token %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&raw, "token", "", "Access or refresh token value")

	return cmd
}
