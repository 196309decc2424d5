package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".kotadb"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for nested settings.
const envPrefix = "KOTADB"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Defaults.
const (
	DefaultToolset      = "default"
	DefaultBaseBranch   = "develop"
	DefaultDataDir      = "automation/.data"
	DefaultConcurrency  = 3
	DefaultPhaseTimeout = 30 * time.Minute
	DefaultLogLevel     = "info"
	defaultDBDirName    = ".kotadb"
	defaultDBFileName   = "kota.db"
)

// Load reads configuration from file, env vars and defaults. A non-empty
// configPath names an explicit config file; otherwise the file is searched
// in the workspace root and $HOME. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	bindWellKnownEnv(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	applyDerived(&cfg)

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// bindWellKnownEnv wires the historically named environment variables that
// do not follow the KOTADB_<SECTION>_<KEY> scheme.
func bindWellKnownEnv(viperCfg *viper.Viper) {
	// Errors only occur for empty key lists.
	_ = viperCfg.BindEnv("database.path", "KOTADB_PATH")
	_ = viperCfg.BindEnv("workspace.root", "KOTADB_CWD")
	_ = viperCfg.BindEnv("server.allowed_origins", "KOTA_ALLOWED_ORIGINS")
	_ = viperCfg.BindEnv("automation.github_token", "GITHUB_TOKEN")
	_ = viperCfg.BindEnv("automation.concurrency", "ADW_MAX_PARALLEL_AGENTS")
	_ = viperCfg.BindEnv("agent.anthropic_api_key", "ANTHROPIC_API_KEY")
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("server.toolset", DefaultToolset)
	viperCfg.SetDefault("server.allowed_origins", []string{})

	viperCfg.SetDefault("agent.binary", "claude")
	viperCfg.SetDefault("agent.phase_timeout", DefaultPhaseTimeout)

	viperCfg.SetDefault("automation.base_branch", DefaultBaseBranch)
	viperCfg.SetDefault("automation.data_dir", DefaultDataDir)
	viperCfg.SetDefault("automation.concurrency", DefaultConcurrency)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.json", true)
}

// applyDerived fills values that depend on other settings.
func applyDerived(cfg *Config) {
	if cfg.Workspace.Root == "" {
		cwd, err := os.Getwd()
		if err == nil {
			cfg.Workspace.Root = cwd
		}
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.Workspace.Root, defaultDBDirName, defaultDBFileName)
	}
}
