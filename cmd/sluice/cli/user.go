package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Create and list the users who own apps and sign in with the password grant.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		name     string
		email    string
		password string
		scopes   []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Example: `  sluice user create --name alice --scope backend --password secret123
  sluice user create --name alice --email alice@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd.Context(), name, email, password, scopes)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "User name (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes granted to the user (repeatable or comma separated)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runUserCreate(ctx context.Context, name, email, password string, scopes []string) error {
	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}
	if len(password) < service.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", service.MinPasswordLength)
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.directory.CreateUser(ctx, a.tenant, service.NewUser{
		Name:     name,
		Email:    email,
		Password: password,
		Scopes:   scopes,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %q (id=%d)\n", u.Name, u.ID)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(ctx context.Context, jsonOutput bool) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.directory.ListUsers(ctx, a.tenant)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	type userRow struct {
		model.User
		Scopes []string `json:"scopes"`
	}
	rows := make([]userRow, len(users))
	for i, u := range users {
		scopes, err := a.directory.UserScopes(ctx, a.tenant, u.ID)
		if err != nil {
			return fmt.Errorf("list scopes of user %d: %w", u.ID, err)
		}
		rows[i] = userRow{User: u, Scopes: model.ScopeNames(scopes)}
	}

	if jsonOutput {
		return printJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No users configured. Use 'sluice user create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-30s %-8s %s\n", "ID", "NAME", "EMAIL", "ACTIVE", "SCOPES")
	fmt.Printf("%-6s %-20s %-30s %-8s %s\n", "--", "----", "-----", "------", "------")
	for _, r := range rows {
		fmt.Printf("%-6d %-20s %-30s %-8s %v\n", r.ID, r.Name, r.Email, yesNo(r.IsActive()), r.Scopes)
	}
	return nil
}
