package main

// Flag names, bound to both pflag and viper so every setting is
// reachable via CLI flag, config file, or CDBSUP_* environment variable.
const (
	FlagConfig   = "config"
	FlagLogFile  = "log-file"
	FlagLogLevel = "log-level"

	FlagExecutable          = "executable"
	FlagSymbolSearchPath    = "symbol-search-path"
	FlagSymbolServerRetries = "symbol-server-retries"

	FlagCommandTimeout    = "command-timeout"
	FlagIdleTimeout       = "idle-timeout"
	FlagStartupDelay      = "startup-delay"
	FlagOutputReadTimeout = "output-read-timeout"

	FlagCacheMaxResults = "cache-max-results"
	FlagCacheMaxBytes   = "cache-max-bytes"
	FlagCacheAdaptive   = "cache-adaptive-pressure"
)
