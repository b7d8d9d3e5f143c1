package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/service"
)

func newConnectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connection",
		Aliases: []string{"conn", "db"},
		Short:   "Manage backend database connections",
		Long: `Add, list and test the database connections of a tenant. Connection settings are
encrypted with the project key before they are stored.

Supported engines: postgres, mysql, sqlserver, oracle, snowflake, sqlite`,
	}

	cmd.AddCommand(newConnectionAddCmd())
	cmd.AddCommand(newConnectionListCmd())
	cmd.AddCommand(newConnectionShowCmd())
	cmd.AddCommand(newConnectionTestCmd())
	cmd.AddCommand(newConnectionRemoveCmd())

	return cmd
}

// ---------- connection add ----------

func newConnectionAddCmd() *cobra.Command {
	var (
		name       string
		class      string
		settings   []string
		configJSON string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a connection",
		Example: `  sluice connection add --name main --class postgres --set host=db --set database=app --set username=api --set password=s3cret
  sluice connection add --name local --class sqlite --set path=/var/lib/app.db
  sluice connection add --name wh --class snowflake --config '{"account":"org-acct","username":"svc"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseSettings(configJSON, settings)
			if err != nil {
				return err
			}
			return runConnectionAdd(cmd.Context(), name, class, cfg)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Connection name (required)")
	cmd.Flags().StringVar(&class, "class", "", "Engine: postgres, mysql, sqlserver, oracle, snowflake, sqlite (required)")
	cmd.Flags().StringArrayVar(&settings, "set", nil, "Setting as key=value (repeatable)")
	cmd.Flags().StringVar(&configJSON, "config", "", "Settings as a JSON object")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("class")

	return cmd
}

// parseSettings merges a JSON object with key=value pairs; pairs win. Values
// stay strings and are coerced by the engine schema.
func parseSettings(configJSON string, pairs []string) (map[string]any, error) {
	cfg := map[string]any{}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, fmt.Errorf("invalid --config JSON: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", p)
		}
		cfg[k] = v
	}
	return cfg, nil
}

func runConnectionAdd(ctx context.Context, name, class string, cfg map[string]any) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.connections.Save(ctx, a.tenant, service.ConnectionInput{Name: name, Class: class, Config: cfg})
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	fmt.Printf("Saved connection %q (class=%s)\n", c.Name, c.Class)
	return nil
}

// ---------- connection list ----------

func newConnectionListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			conns, err := a.store.ListConnections(cmd.Context(), a.tenant)
			if err != nil {
				return fmt.Errorf("list connections: %w", err)
			}
			if jsonOutput {
				return printJSON(conns)
			}
			if len(conns) == 0 {
				fmt.Println("No connections configured. Use 'sluice connection add' to add one.")
				return nil
			}
			fmt.Printf("%-20s %-12s %-10s %s\n", "NAME", "CLASS", "MAX OPEN", "UPDATED")
			fmt.Printf("%-20s %-12s %-10s %s\n", "----", "-----", "--------", "-------")
			for _, c := range conns {
				fmt.Printf("%-20s %-12s %-10d %s\n", c.Name, c.Class, c.Pool.MaxOpenConns, formatTime(c.UpdatedAt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- connection show ----------

func newConnectionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a connection with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.connections.Describe(cmd.Context(), a.tenant, args[0])
			if err != nil {
				return fmt.Errorf("connection %q: %w", args[0], err)
			}
			return printJSON(view)
		},
	}
}

// ---------- connection test ----------

func newConnectionTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Open a connection and ping it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connections.Test(cmd.Context(), a.tenant, args[0]); err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			fmt.Printf("Connection %q OK\n", args[0])
			return nil
		},
	}
}

// ---------- connection remove ----------

func newConnectionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connections.Delete(cmd.Context(), a.tenant, args[0]); err != nil {
				return fmt.Errorf("remove connection: %w", err)
			}
			fmt.Printf("Removed connection %q\n", args[0])
			return nil
		},
	}
}
