package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kotadb/kotadb/internal/tools"
)

// expertiseFile is the on-disk YAML shape for a domain expertise pack.
type expertiseFile struct {
	Domain   string `yaml:"domain"`
	Patterns []struct {
		Name        string `yaml:"name"        json:"name"`
		Description string `yaml:"description" json:"description"`
		FilePath    string `yaml:"file_path"   json:"file_path,omitempty"`
	} `yaml:"patterns"`
}

// NewExpertiseCommand creates the expertise command group.
func NewExpertiseCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expertise",
		Short: "Manage domain expertise packs",
	}

	cmd.AddCommand(newExpertiseSyncCommand(opts))
	cmd.AddCommand(newExpertiseValidateCommand(opts))

	return cmd
}

func newExpertiseSyncCommand(opts *GlobalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load a YAML expertise pack into the pattern memory",

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read expertise pack: %w", err)
			}

			var pack expertiseFile

			err = yaml.Unmarshal(raw, &pack)
			if err != nil {
				return fmt.Errorf("parse expertise pack: %w", err)
			}

			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			args, err := json.Marshal(map[string]any{
				"domain":   pack.Domain,
				"patterns": pack.Patterns,
			})
			if err != nil {
				return err
			}

			result, err := app.Registry.Call(cobraCmd.Context(), tools.ToolsetFull, "sync_expertise", args)
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "expertise pack YAML file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newExpertiseValidateCommand(opts *GlobalOptions) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored expertise against the current index",

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			args, err := json.Marshal(map[string]any{"domain": domain})
			if err != nil {
				return err
			}

			result, err := app.Registry.Call(cobraCmd.Context(), tools.ToolsetFull, "validate_expertise", args)
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "domain to validate")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
