package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/model"
)

func newScopeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Manage the scope catalog",
		Long:  "Create and list scopes, and assign them to apps and users.",
	}

	cmd.AddCommand(newScopeCreateCmd())
	cmd.AddCommand(newScopeListCmd())
	cmd.AddCommand(newScopeAssignCmd())

	return cmd
}

// ---------- scope create ----------

func newScopeCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Add a scope to the catalog",
		Example: `  sluice scope create backend --description "System API"
  sluice scope create reports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.directory.CreateScope(cmd.Context(), a.tenant, model.Scope{Name: args[0], Description: description})
			if err != nil {
				return fmt.Errorf("create scope: %w", err)
			}
			fmt.Printf("Created scope %q (id=%d)\n", s.Name, s.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Human-readable description")

	return cmd
}

// ---------- scope list ----------

func newScopeListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the scope catalog in grant order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			scopes, err := a.directory.ListScopes(cmd.Context(), a.tenant)
			if err != nil {
				return fmt.Errorf("list scopes: %w", err)
			}
			if jsonOutput {
				return printJSON(scopes)
			}
			if len(scopes) == 0 {
				fmt.Println("No scopes defined. Use 'sluice scope create' to add one.")
				return nil
			}
			fmt.Printf("%-6s %-24s %s\n", "ID", "NAME", "DESCRIPTION")
			fmt.Printf("%-6s %-24s %s\n", "--", "----", "-----------")
			for _, s := range scopes {
				fmt.Printf("%-6d %-24s %s\n", s.ID, s.Name, s.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- scope assign ----------

func newScopeAssignCmd() *cobra.Command {
	var (
		appID int64
		user  string
	)

	cmd := &cobra.Command{
		Use:   "assign <scope>...",
		Short: "Replace the scopes of an app or user",
		Long:  "Set the full list of scopes an app may request or a user holds. Scopes not listed are removed.",
		Example: `  sluice scope assign --app 3 backend authorization
  sluice scope assign --user alice reports`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScopeAssign(cmd.Context(), appID, user, args)
		},
	}

	cmd.Flags().Int64Var(&appID, "app", 0, "App ID")
	cmd.Flags().StringVar(&user, "user", "", "User name")
	cmd.MarkFlagsMutuallyExclusive("app", "user")

	return cmd
}

func runScopeAssign(ctx context.Context, appID int64, user string, scopes []string) error {
	if appID == 0 && user == "" {
		return errors.New("one of --app or --user is required")
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if appID != 0 {
		if _, err := a.directory.GetApp(ctx, a.tenant, appID); err != nil {
			return fmt.Errorf("app %d: %w", appID, err)
		}
		if err := a.directory.AssignAppScopes(ctx, a.tenant, appID, scopes); err != nil {
			return fmt.Errorf("assign scopes: %w", err)
		}
		fmt.Printf("App %d scopes: %v\n", appID, scopes)
		return nil
	}

	u, err := a.store.GetUserByName(ctx, a.tenant, user)
	if err != nil {
		return fmt.Errorf("user %q: %w", user, err)
	}
	if err := a.directory.GrantUserScopes(ctx, a.tenant, u.ID, scopes); err != nil {
		return fmt.Errorf("grant scopes: %w", err)
	}
	fmt.Printf("User %q scopes: %v\n", u.Name, scopes)
	return nil
}
