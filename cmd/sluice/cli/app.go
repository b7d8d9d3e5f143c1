package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/service"
)

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "app",
		Aliases: []string{"client"},
		Short:   "Manage client apps",
		Long:    "Register, list and delete the apps that request tokens with a key and secret.",
	}

	cmd.AddCommand(newAppCreateCmd())
	cmd.AddCommand(newAppListCmd())
	cmd.AddCommand(newAppDeleteCmd())

	return cmd
}

// ---------- app create ----------

func newAppCreateCmd() *cobra.Command {
	var (
		name   string
		url    string
		owner  string
		scopes []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new app",
		Long:  "Register an app owned by a user. The app secret is shown once and cannot be retrieved again.",
		Example: `  sluice app create --name billing --owner alice --scope backend --scope authorization
  sluice app create --name reports --owner alice --scope reports,backend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppCreate(cmd.Context(), name, url, owner, scopes)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "App name (required)")
	cmd.Flags().StringVar(&url, "url", "", "App homepage URL")
	cmd.Flags().StringVar(&owner, "owner", "", "Name of the owning user (required)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes the app may request (repeatable or comma separated)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runAppCreate(ctx context.Context, name, url, owner string, scopes []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.store.GetUserByName(ctx, a.tenant, owner)
	if err != nil {
		return fmt.Errorf("owner %q: %w", owner, err)
	}

	creds, err := a.directory.CreateApp(ctx, a.tenant, service.NewApp{
		Name:   name,
		URL:    url,
		UserID: user.ID,
		Scopes: scopes,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	fmt.Println("App created:")
	fmt.Println()
	fmt.Printf("  ID:     %d\n", creds.App.ID)
	fmt.Printf("  Key:    %s\n", creds.Key)
	fmt.Printf("  Secret: %s\n", creds.Secret)
	if len(scopes) > 0 {
		fmt.Printf("  Scopes: %v\n", scopes)
	}
	fmt.Println()
	fmt.Println("  Save the secret now - it cannot be retrieved again.")
	return nil
}

// ---------- app list ----------

func newAppListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAppList(ctx context.Context, jsonOutput bool) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	apps, err := a.directory.ListApps(ctx, a.tenant)
	if err != nil {
		return fmt.Errorf("list apps: %w", err)
	}

	type appRow struct {
		model.App
		Scopes []string `json:"scopes"`
	}
	rows := make([]appRow, len(apps))
	for i, app := range apps {
		scopes, err := a.directory.AppScopes(ctx, a.tenant, app.ID)
		if err != nil {
			return fmt.Errorf("list scopes of app %d: %w", app.ID, err)
		}
		rows[i] = appRow{App: app, Scopes: model.ScopeNames(scopes)}
	}

	if jsonOutput {
		return printJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No apps registered. Use 'sluice app create' to register one.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-38s %-8s %s\n", "ID", "NAME", "KEY", "ACTIVE", "SCOPES")
	fmt.Printf("%-6s %-20s %-38s %-8s %s\n", "--", "----", "---", "------", "------")
	for _, r := range rows {
		fmt.Printf("%-6d %-20s %-38s %-8s %v\n", r.ID, r.Name, r.AppKey, yesNo(r.IsActive()), r.Scopes)
	}
	return nil
}

// ---------- app delete ----------

func newAppDeleteCmd() *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an app",
		Long:    "Mark an app deleted so its key no longer authenticates. Use --disable to suspend it instead.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid app id %q", args[0])
			}
			return runAppDelete(cmd.Context(), id, disable)
		},
	}

	cmd.Flags().BoolVar(&disable, "disable", false, "Mark the app inactive rather than deleted")

	return cmd
}

func runAppDelete(ctx context.Context, id int64, disable bool) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	status, verb := model.AppStatusDeleted, "Deleted"
	if disable {
		status, verb = model.AppStatusInactive, "Disabled"
	}
	if err := a.directory.SetAppStatus(ctx, a.tenant, id, status); err != nil {
		return fmt.Errorf("update app %d: %w", id, err)
	}
	fmt.Printf("%s app %d\n", verb, id)
	return nil
}
