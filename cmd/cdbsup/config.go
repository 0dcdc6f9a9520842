package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/CapulusCodeNinja/mcp-nexus-cdb/cache"
)

// CLIConfig is the CLI's view of a Session's tunables plus the logging
// and cache knobs it layers on top. Grounded on the teacher's config.Config
// (NavarrePratt-atari's internal/config): a plain struct unmarshalled by
// viper, with a package-level Default() and a search-path loader.
type CLIConfig struct {
	LogFile  string `mapstructure:"log-file"`
	LogLevel string `mapstructure:"log-level"`

	Executable          string `mapstructure:"executable"`
	SymbolSearchPath    string `mapstructure:"symbol-search-path"`
	SymbolServerRetries int    `mapstructure:"symbol-server-retries"`

	CommandTimeout    time.Duration `mapstructure:"command-timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle-timeout"`
	StartupDelay      time.Duration `mapstructure:"startup-delay"`
	OutputReadTimeout time.Duration `mapstructure:"output-read-timeout"`

	CacheMaxResults int   `mapstructure:"cache-max-results"`
	CacheMaxBytes   int64 `mapstructure:"cache-max-bytes"`
	CacheAdaptive   bool  `mapstructure:"cache-adaptive-pressure"`
}

// configDirName and configFileName name the project-local config file
// this CLI searches for, mirroring the teacher's ".atari/config.yaml"
// convention (here: "./.cdbsup/config.yaml").
const (
	configDirName  = ".cdbsup"
	configFileName = "config.yaml"
)

// defaultCLIConfig returns a CLIConfig seeded from the package defaults
// of the configuration it wraps.
func defaultCLIConfig() CLIConfig {
	defOpts := cache.DefaultOptions()
	return CLIConfig{
		LogLevel:            "info",
		CommandTimeout:      30 * time.Second,
		IdleTimeout:         15 * time.Second,
		StartupDelay:        500 * time.Millisecond,
		OutputReadTimeout:   2 * time.Second,
		SymbolServerRetries: 1,
		CacheMaxResults:     defOpts.MaxResults,
		CacheMaxBytes:       defOpts.MaxMemoryBytes,
	}
}

// loadCLIConfig resolves precedence defaults < project config file <
// explicit --config file < environment (CDBSUP_*) < CLI flags, the last
// two already bound into v by the caller before this runs.
func loadCLIConfig(v *viper.Viper) (CLIConfig, error) {
	cfg := defaultCLIConfig()

	if path := projectConfigPath(); path != "" {
		if err := mergeConfigFile(v, path); err != nil {
			return CLIConfig{}, err
		}
	}
	if explicit := v.GetString(FlagConfig); explicit != "" {
		if err := mergeConfigFile(v, explicit); err != nil {
			return CLIConfig{}, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

// projectConfigPath returns ./.cdbsup/config.yaml if it exists, else "".
func projectConfigPath() string {
	path := filepath.Join(configDirName, configFileName)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// mergeConfigFile merges a YAML config file into v. A missing file is
// not an error; any other read/parse failure is.
func mergeConfigFile(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	v.SetConfigType("yaml")
	return v.MergeConfig(f)
}
