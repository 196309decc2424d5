package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kotadb/kotadb/internal/tools"
)

// NewSearchCommand creates the unified search command. It goes through the
// same tool catalog the MCP server exposes, so behavior matches exactly.
func NewSearchCommand(opts *GlobalOptions) *cobra.Command {
	var (
		scopes       []string
		limit        int
		output       string
		contextLines int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search code, symbols, decisions, patterns and failures",
		Args:  cobra.ExactArgs(1),

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			params := map[string]any{"query": args[0]}

			if len(scopes) > 0 {
				params["scope"] = scopes
			}

			if limit > 0 {
				params["limit"] = limit
			}

			if output != "" {
				params["output"] = output
			}

			if cobraCmd.Flags().Changed("context-lines") {
				params["context_lines"] = contextLines
			}

			raw, err := json.Marshal(params)
			if err != nil {
				return err
			}

			result, err := app.Registry.Call(cobraCmd.Context(), tools.ToolsetFull, "search", raw)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			err = enc.Encode(result)
			if err != nil {
				return fmt.Errorf("encode search result: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scopes: code, symbols, decisions, patterns, failures")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results per scope")
	cmd.Flags().StringVar(&output, "output", "", "output shape: paths, compact, snippet, full")
	cmd.Flags().IntVar(&contextLines, "context-lines", 3, "snippet context lines (0-10)")

	return cmd
}
