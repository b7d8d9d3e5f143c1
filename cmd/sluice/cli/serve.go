package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sluicehq/sluice/internal/server"
)

const banner = `
     _       _
 ___| |_   _(_) ___ ___
/ __| | | | | |/ __/ _ \
\__ \ | |_| | | (_|  __/
|___/_|\__,_|_|\___\___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Sluice authorization server",
		Long:  "Start the HTTP server that issues tokens at /authorization/token and exposes the system API under /api/v1/system.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	if dev {
		viper.Set("logging.level", "debug")
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	logger.Info("config store initialized", "path", resolveDataDir())
	logger.Info("connector registry initialized", "engines", a.registry.Engines())

	shutdown, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}

	cfg := server.DefaultConfig()
	cfg.Host = viper.GetString("server.host")
	cfg.Port = viper.GetInt("server.port")
	cfg.ShutdownTimeout = shutdown
	cfg.CORSOrigins = viper.GetStringSlice("server.cors.origins")
	cfg.TokenRate = viper.GetInt("server.token_rate")
	cfg.APIRate = viper.GetInt("server.api_rate")
	cfg.Tenant = a.tenant
	cfg.TenantHeader = viper.GetBool("tenant.header")
	cfg.Version = versionString()

	srv := server.New(cfg, server.Deps{
		Store:       a.store,
		Registry:    a.registry,
		Directory:   a.directory,
		Connections: a.connections,
		Grants:      a.grants,
		Resolver:    a.resolver,
		Issuer:      a.issuer,
		Codec:       a.codec,
	}, logger)

	lt := a.grants.Lifetimes()
	fmt.Printf("→ Sluice %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("→ Token:      http://%s:%d/authorization/token\n", cfg.Host, cfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Host, cfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Host, cfg.Port)
	fmt.Printf("→ Tenant:     %s (header selection: %s)\n", a.tenant, yesNo(cfg.TenantHeader))
	fmt.Printf("→ Lifetimes:  token %s, refresh %s\n", lt.Token, lt.Refresh)
	fmt.Println()

	return srv.ListenAndServe()
}
