package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kotadb/kotadb/internal/mcp"
	"github.com/kotadb/kotadb/internal/observability"
	"github.com/kotadb/kotadb/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(opts *GlobalOptions) *cobra.Command {
	var (
		toolset  string
		httpAddr string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio transport",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes the KotaDB tool catalog to AI agents: unified search,
repository indexing, dependency traversal, impact analysis, memory recording
and JSONL sync. The --toolset flag selects which tool tiers are visible
(core, default, memory, full). With --http the server listens on the
streamable HTTP transport instead of stdio, validating Origin headers
against the configured allow-list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			app, err := newApp(opts, true)
			if err != nil {
				return err
			}
			defer app.Close()

			red, err := observability.NewREDMetrics(app.Providers.Meter)
			if err != nil {
				return err
			}

			if toolset == "" {
				toolset = app.Cfg.Server.Toolset
			}

			srv, err := mcp.NewServer(mcp.ServerDeps{
				Registry: app.Registry,
				Toolset:  toolset,
				Version:  version.Version,
				Logger:   app.Providers.Logger,
				Metrics:  red,
				Tracer:   app.Providers.Tracer,
			})
			if err != nil {
				return err
			}

			app.Providers.Logger.Info("mcp server starting",
				"toolset", toolset, "tools", srv.ListToolNames())

			if httpAddr != "" {
				return srv.RunHTTP(cobraCmd.Context(), mcp.HTTPOptions{
					Addr:           httpAddr,
					AllowedOrigins: strings.Join(app.Cfg.Server.AllowedOrigins, ","),
					Registry:       app.Providers.Registry,
				})
			}

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&toolset, "toolset", "", "tool tiers to expose (core|default|memory|full)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address for the streamable HTTP transport (default stdio)")

	return cmd
}
