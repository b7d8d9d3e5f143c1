package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and the OpenAPI document
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sluice",
		Short: "Multi-tenant OAuth2 authorization server for API platforms",
		Long: `Sluice issues and validates access tokens for the apps and users of an API platform.

Apps authenticate with a key and secret, users with a password. Tokens carry the
scopes both are entitled to, are stored hashed and can be revoked at any time.
Connection settings for backend databases are kept encrypted with the project key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sluice.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.sluice)")
	cmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "", "tenant to operate on (default: tenant.id from config)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newAppCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newScopeCmd())
	cmd.AddCommand(newConnectionCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newAssertionCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sluice")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.sluice")
	}

	setDefaults()

	viper.SetEnvPrefix("SLUICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("server.token_rate", 60)
	viper.SetDefault("server.api_rate", 600)
	viper.SetDefault("server.cors.origins", []string{"*"})
	viper.SetDefault("auth.expire_token", "P2D")
	viper.SetDefault("auth.expire_refresh", "P3D")
	viper.SetDefault("auth.bcrypt_cost", 0)
	viper.SetDefault("tenant.id", "")
	viper.SetDefault("tenant.header", false)
	viper.SetDefault("quota.apps", 0)
	viper.SetDefault("quota.users", 0)
	viper.SetDefault("quota.scopes", 0)
	viper.SetDefault("quota.connections", 0)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
