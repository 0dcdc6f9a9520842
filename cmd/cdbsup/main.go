// Command cdbsup is an interactive front end for the session supervisor:
// it spawns a debugger process, drives a read-eval-print loop over
// stdin/stdout, and exposes the queue's stats/status introspection as
// REPL directives.
//
// Grounded on the teacher's examples/interactive/main.go (a REPL driving
// a long-lived subprocess end to end) and NavarrePratt-atari's cmd/atari
// cobra+pflag+viper flag wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	cdbsup "github.com/CapulusCodeNinja/mcp-nexus-cdb"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/cache"
	"github.com/CapulusCodeNinja/mcp-nexus-cdb/queue"
)

var version = "dev"

func main() {
	viper.SetEnvPrefix("CDBSUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:          "cdbsup",
		Short:        "Supervises a debugger child process behind a sentinel-framed command queue",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String(FlagConfig, "", "config file path (default: ./.cdbsup/config.yaml)")
	rootCmd.PersistentFlags().String(FlagLogFile, "", "rotated log file path (stderr only if empty)")
	rootCmd.PersistentFlags().String(FlagLogLevel, "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String(FlagExecutable, "", "override path to the debugger executable")
	rootCmd.PersistentFlags().String(FlagSymbolSearchPath, "", "value forwarded as _NT_SYMBOL_PATH")
	rootCmd.PersistentFlags().Int(FlagSymbolServerRetries, 1, "symbol-server retry count forwarded to the child")
	rootCmd.PersistentFlags().Duration(FlagCommandTimeout, 30*time.Second, "hard wall-clock limit per command")
	rootCmd.PersistentFlags().Duration(FlagIdleTimeout, 15*time.Second, "max silence between output lines within one command")
	rootCmd.PersistentFlags().Duration(FlagStartupDelay, 500*time.Millisecond, "delay after spawn before the first command is sent")
	rootCmd.PersistentFlags().Duration(FlagOutputReadTimeout, 2*time.Second, "time allotted to drain residual output after a command ends")
	rootCmd.PersistentFlags().Int(FlagCacheMaxResults, cache.DefaultMaxResults, "maximum cached command results")
	rootCmd.PersistentFlags().Int64(FlagCacheMaxBytes, cache.DefaultMaxMemoryBytes, "maximum cached result bytes")
	rootCmd.PersistentFlags().Bool(FlagCacheAdaptive, false, "evict under system/process memory pressure (gopsutil-backed)")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cdbsup %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <target> [args...]",
		Short: "Spawn the debugger against target and start an interactive session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, args[0], args[1:])
		},
	}
}

func runSession(cmd *cobra.Command, target string, targetArgs []string) error {
	cliCfg, err := loadCLIConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cliCfg.LogFile, cliCfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	sessCfg, err := cdbsup.NewSessionConfig(cdbsup.SessionConfig{
		CommandTimeout:         cliCfg.CommandTimeout,
		IdleTimeout:            cliCfg.IdleTimeout,
		StartupDelay:           cliCfg.StartupDelay,
		OutputReadTimeout:      cliCfg.OutputReadTimeout,
		SymbolServerRetries:    cliCfg.SymbolServerRetries,
		ExecutablePathOverride: cliCfg.Executable,
		SymbolSearchPath:       cliCfg.SymbolSearchPath,
	})
	if err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}

	opts := []cdbsup.Option{}
	opts = append(opts, cdbsup.WithCacheOptions(buildCacheOptions(cliCfg)))

	sink := queue.NewChannelSink(64)
	opts = append(opts, cdbsup.WithNotificationSink(sink))

	s := cdbsup.New(log, sessCfg, opts...)

	go logStateChanges(log, sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping session")
		_, _ = s.Stop()
	}()

	ok, err := s.Start(target, targetArgs...)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session failed to become active")
	}
	defer func() { _, _ = s.Stop() }()

	return runREPL(log, s, cmd.InOrStdin(), cmd.OutOrStdout())
}

// buildCacheOptions wires the cache's adaptive-pressure providers to
// gopsutil when enabled (spec §4.6); left unset otherwise, disabling
// adaptive eviction in favor of the hard count/byte bounds alone.
func buildCacheOptions(cfg CLIConfig) cache.Options {
	opts := cache.Options{
		MaxResults:     cfg.CacheMaxResults,
		MaxMemoryBytes: cfg.CacheMaxBytes,
	}
	if cfg.CacheAdaptive {
		opts.SystemPressure = cache.GopsutilMemoryProvider{}
		opts.ProcessPressure = cache.GopsutilProcessMemoryProvider{}
		opts.ProcessPrivateBytesThreshold = 512 * 1024 * 1024
	}
	return opts
}

// logStateChanges drains sink and logs every tracked-command state
// transition, giving an operator visibility beyond the REPL's own
// polled result printing (spec §6 NotificationSink collaborator).
func logStateChanges(log *zap.Logger, sink *queue.ChannelSink) {
	for evt := range sink.Events() {
		log.Debug("command state change",
			zap.String("command_id", evt.CommandID),
			zap.Stringer("old_state", evt.OldState),
			zap.Stringer("new_state", evt.NewState),
			zap.Time("at", evt.At))
	}
}
