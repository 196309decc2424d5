// Package main provides the entry point for the kotadb CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kotadb/kotadb/cmd/kotadb/commands"
	"github.com/kotadb/kotadb/internal/adw"
	"github.com/kotadb/kotadb/pkg/version"
)

func main() {
	version.Init()

	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "kotadb",
		Short: "KotaDB - code intelligence MCP server and workflow automation",
		Long: `KotaDB indexes a repository into sqlite, serves code intelligence over
the Model Context Protocol, and drives autonomous developer workflows.

Commands:
  mcp       Start the MCP server on stdio
  index     Index the repository
  search    Unified search across code, symbols and memory
  sync      Export or import the database as JSONL
  adw       Run the workflow orchestrator for one issue
  batch     Run workflows for multiple issues concurrently`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	opts := &commands.GlobalOptions{ConfigPath: &configPath, Debug: &debug}

	rootCmd.AddCommand(commands.NewMCPCommand(opts))
	rootCmd.AddCommand(commands.NewIndexCommand(opts))
	rootCmd.AddCommand(commands.NewSearchCommand(opts))
	rootCmd.AddCommand(commands.NewSyncCommand(opts))
	rootCmd.AddCommand(commands.NewADWCommand(opts))
	rootCmd.AddCommand(commands.NewBatchCommand(opts))
	rootCmd.AddCommand(commands.NewExpertiseCommand(opts))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		code := 1

		var exitErr *adw.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		}

		os.Exit(code)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "kotadb %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
