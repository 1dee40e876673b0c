package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tensord/internal/config"
	"tensord/internal/manager"
	"tensord/internal/native"
)

// cliOptions holds values bound to persistent flags.
type cliOptions struct {
	configPath string
	logLevel   string
	modelDir   string
	nativeLib  string

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&cliOptions{}, os.Stderr)
}

// newRootCmdWith builds the command tree. Logs go to logOut.
func newRootCmdWith(o *cliOptions, logOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "tensord",
		Short:         "GPU tensor compute runtime with a host fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", os.Getenv("TENSORD_CONFIG"), "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides log_level)")
	root.PersistentFlags().StringVar(&o.modelDir, "model-dir", "", "Model cache directory (overrides model_cache_directory)")
	root.PersistentFlags().StringVar(&o.nativeLib, "native-library", "", "Native library name or path (overrides native_library)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		o.cfg = cfg
		o.log = newLogger(logOut, cfg.LogLevel)
		return nil
	}

	root.AddCommand(newServeCmd(o), newDiagnosticsCmd(o), newModelsCmd(o))
	return root
}

// loadConfig merges the config file, environment and flags, in increasing
// precedence, then applies defaults and validates.
func loadConfig(o *cliOptions) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if v := os.Getenv("TENSORD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("TENSORD_NATIVE_SEARCH_PATHS"); v != "" {
		cfg.NativeSearchPaths = append(cfg.NativeSearchPaths, splitCSV(v)...)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.modelDir != "" {
		cfg.ModelCacheDirectory = o.modelDir
	}
	if o.nativeLib != "" {
		cfg.NativeLibrary = o.nativeLib
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger writes human-readable output on a terminal and JSON otherwise.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if isTerminal(w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// nativeOptions maps the native_* keys onto resolver options. A
// native_library holding a path puts its directory first in the search.
func nativeOptions(cfg config.Config, log *zerolog.Logger) native.Options {
	opts := native.Options{
		LibraryName: cfg.NativeLibrary,
		SearchPaths: append([]string(nil), cfg.NativeSearchPaths...),
		Logger:      log,
	}
	if dir := filepath.Dir(cfg.NativeLibrary); cfg.NativeLibrary != "" && dir != "." {
		opts.LibraryName = filepath.Base(cfg.NativeLibrary)
		opts.SearchPaths = append([]string{dir}, opts.SearchPaths...)
	}
	return opts
}

// managerConfig maps the service config onto ManagerConfig.
func managerConfig(cfg config.Config, log *zerolog.Logger) (manager.ManagerConfig, error) {
	rc, err := cfg.RegistryConfig()
	if err != nil {
		return manager.ManagerConfig{}, err
	}
	return manager.ManagerConfig{
		Native:            nativeOptions(cfg, log),
		MaxBuffers:        cfg.MaxBufferCount,
		DefaultBufferSize: cfg.DefaultBufferSizeBytes,
		Registry:          rc,
		ModelDir:          cfg.ModelCacheDirectory,
		HistoryDB:         cfg.HistoryDB,
		Logger:            log,
	}, nil
}

// splitCSV splits a comma-separated list and trims spaces; empty items are dropped.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
