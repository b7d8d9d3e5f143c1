package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	smcp "github.com/sluicehq/sluice/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		host      string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes scope, app, token and
connection administration as tools for AI agents. Supports stdio (default) and
HTTP transports. The server acts on a single tenant, selected with --tenant or
tenant.id.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with desktop MCP clients.

In HTTP mode, the server listens on the specified host and port using the
streamable HTTP transport at /mcp. Every request must carry a bearer token
of the tenant with the backend scope. The listener binds to loopback unless
--host says otherwise.`,
		Example: `  sluice mcp                              # stdio mode
  sluice mcp --transport http --port 3001  # streamable HTTP mode on 127.0.0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), transport, net.JoinHostPort(host, strconv.Itoa(port)))
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP bind address (only used with --transport http)")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(ctx context.Context, transport, addr string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := smcp.NewMCPServer(smcp.Deps{
		Store:       a.store,
		Directory:   a.directory,
		Connections: a.connections,
		Issuer:      a.issuer,
	}, a.tenant, versionString(), a.logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return mcpSrv.ListenAndServe(ctx, addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
