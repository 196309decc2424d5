// Package config loads KotaDB settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration struct.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Workspace  WorkspaceConfig     `mapstructure:"workspace"`
	Database   DatabaseConfig      `mapstructure:"database"`
	Server     ServerConfig        `mapstructure:"server"`
	Agent      AgentConfig         `mapstructure:"agent"`
	Automation AutomationConfig    `mapstructure:"automation"`
	Validation ValidationConfig    `mapstructure:"validation"`
	Domains    map[string][]string `mapstructure:"domains"`
	Log        LogConfig           `mapstructure:"log"`
}

// WorkspaceConfig locates the repository the server operates on.
type WorkspaceConfig struct {
	// Root is the repository working directory; empty means the process CWD.
	Root string `mapstructure:"root"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	// Path is the database file; empty derives <root>/.kotadb/kota.db.
	Path string `mapstructure:"path"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Toolset        string   `mapstructure:"toolset"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AgentConfig holds agent engine settings.
type AgentConfig struct {
	Binary          string        `mapstructure:"binary"`
	Model           string        `mapstructure:"model"`
	CuratorModel    string        `mapstructure:"curator_model"`
	PhaseTimeout    time.Duration `mapstructure:"phase_timeout"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
}

// AutomationConfig holds workflow orchestration settings.
type AutomationConfig struct {
	// Repo is the GitHub owner/name the PR phase targets.
	Repo        string `mapstructure:"repo"`
	BaseBranch  string `mapstructure:"base_branch"`
	DataDir     string `mapstructure:"data_dir"`
	Concurrency int    `mapstructure:"concurrency"`
	SkipImprove bool   `mapstructure:"skip_improve"`
	GitHubToken string `mapstructure:"github_token"`
}

// ValidationConfig holds the pre-PR validation commands.
type ValidationConfig struct {
	TypeCheckCmd []string `mapstructure:"type_check_cmd"`
	TestCmd      []string `mapstructure:"test_cmd"`
	AppRoot      string   `mapstructure:"app_root"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ErrInvalidRepo rejects automation repo slugs that are not owner/name.
var ErrInvalidRepo = errors.New("automation.repo must be owner/name")

// ErrInvalidConcurrency rejects non-positive concurrency.
var ErrInvalidConcurrency = errors.New("automation.concurrency must be positive")

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Automation.Repo != "" {
		parts := strings.Split(c.Automation.Repo, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("%w: %q", ErrInvalidRepo, c.Automation.Repo)
		}
	}

	if c.Automation.Concurrency < 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
