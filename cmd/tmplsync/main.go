package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/tmplsync/internal/config"
	"github.com/schaermu/tmplsync/internal/github"
	"github.com/schaermu/tmplsync/internal/localfs"
	"github.com/schaermu/tmplsync/internal/sync"
)

// defaultConfigPath is loaded when --config is not given and the file exists
const defaultConfigPath = "~/.config/tmplsync/config.yaml"

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile        string
	logLevel       string
	logFormat      string
	dryRun         bool
	projectRoot    string
	resultJSONFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// failed targets have already been reported in the summary
		if !errors.Is(err, sync.ErrTargetsFailed) {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tmplsync",
	Short: "Pull shared project templates from GitHub into the local tree",
	Long: `tmplsync fetches a fixed set of files and directory trees from a public
GitHub repository and writes them into the current project, overwriting local
copies.

Every run re-fetches everything. There is no local state, no merging and no
conflict detection: upstream content always wins. Files that exist only locally
are left untouched.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "tmplsync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+defaultConfigPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync flags
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be written without fetching or writing files")
	rootCmd.Flags().StringVar(&projectRoot, "project-root", "", "directory files are written to (default is the working directory)")
	rootCmd.Flags().StringVar(&resultJSONFile, "result-json-file", "", "path to write the run result as JSON")

	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	debug := debugEnabled()
	logger := setupLogger(cmd.ErrOrStderr(), debug)

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	root, err := resolveProjectRoot(cfg)
	if err != nil {
		return err
	}
	client := github.NewHTTPClient(github.Options{
		RawBaseURL:   cfg.Source.RawBaseURL,
		APIBaseURL:   cfg.Source.APIBaseURL,
		Ref:          cfg.Source.Ref,
		Timeout:      cfg.HTTP.Timeout,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		MaxDepth:     cfg.Sync.MaxDepth,
		Compression:  cfg.CompressionEnabled(),
		UserAgent:    "tmplsync/" + version,
		Logger:       logger,
	})
	fs := afero.NewOsFs()
	writer := localfs.NewWriter(fs, root, logger, debug)
	logger.Debug("project root", "path", writer.Root())

	out := cmd.OutOrStdout()
	engine := sync.NewEngine(cfg, client, writer, logger, out, cmd.ErrOrStderr(), dryRun)
	summary := engine.Run(ctx)

	if err := summary.Render(out); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}

	if resultJSONFile != "" {
		if err := summary.WriteJSON(fs, resultJSONFile); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	return summary.Err()
}

// debugEnabled reports whether debug diagnostics are on, either through
// --log-level or a truthy DEBUG environment variable
func debugEnabled() bool {
	if logLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG"))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// setupLogger writes logs to w, which keeps stdout free for the progress report
func setupLogger(w io.Writer, debug bool) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		path, err := homedir.Expand(defaultConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default config path: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat default config file: %w", err)
			}
			logger.Debug("no config file found, using built-in targets", "path", path)
			return config.Default(), nil
		}
		configPath = path
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"source", cfg.RepoSlug(),
		"raw_base_url", cfg.Source.RawBaseURL,
		"api_base_url", cfg.Source.APIBaseURL,
		"targets", len(cfg.Targets))

	return cfg, nil
}

// resolveProjectRoot picks --project-root, then paths.project_root, then the
// working directory. The result must be an existing directory.
func resolveProjectRoot(cfg *config.Config) (string, error) {
	root := projectRoot
	if root == "" {
		root = cfg.Paths.ProjectRoot
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}

	root, err := homedir.Expand(root)
	if err != nil {
		return "", fmt.Errorf("failed to expand project root: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("failed to access project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root is not a directory: %s", root)
	}
	return root, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
