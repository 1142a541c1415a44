package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/ecsig"
	"github.com/jward/ecsig/internal/config"
)

var (
	flagDB       string
	flagFormat   string
	flagConfig   string
	flagLogLevel string
)

// cfg and logger are set by the root PersistentPreRunE.
var (
	cfg    = config.DefaultConfig()
	logger = slog.Default()
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "ecsig",
	Short:         "Compile and catalog ECS query and system signatures",
	Long:          "ecsig compiles signature strings like \"Position, !Velocity, [in] CONTAINER.Transform\" and indexes the signatures declared in C/C++ sources into a SQLite catalog.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup()
	},
	// No Run, so help is printed by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .ecsig/catalog.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: nearest "+config.ProjectConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(needsTablesCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(queryCmd)
}

// setup loads the config and builds the stderr logger.
func setup() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	loaded, err := loadConfig(flagConfig, cwd, flagLogLevel)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return nil
}

// loadConfig loads the project config and applies a --log-level override.
func loadConfig(explicitPath, startDir, logLevel string) (*config.Config, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	c, err := config.NewLoader(bootstrap).Load(explicitPath, startDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		c.LogLevel = logLevel
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// engineOptions translates the loaded config into Engine options.
func engineOptions(c *config.Config, l *slog.Logger) []ecsig.Option {
	opts := []ecsig.Option{
		ecsig.WithEngineLogger(l),
		ecsig.WithParser(ecsig.NewParser(
			ecsig.WithAnnotationMaxLength(c.AnnotationMaxLength),
			ecsig.WithLogger(l),
		)),
		ecsig.WithParallel(c.ParallelEnabled()),
		ecsig.WithCalls(c.Extract.Calls),
	}
	if len(c.Exclude) > 0 {
		opts = append(opts, ecsig.WithExclude(c.Exclude...))
	}
	if c.RulesDir != "" {
		opts = append(opts, ecsig.WithRulesDir(c.RulesDir))
	}
	return opts
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".ecsig", "catalog.db")
}

// openEngine opens the catalog for repoRoot, creating its directory.
func openEngine(repoRoot string, extra ...ecsig.Option) (*ecsig.Engine, string, error) {
	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	opts := append(engineOptions(cfg, logger), extra...)
	e, err := ecsig.New(dbPath, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("creating engine: %w", err)
	}
	return e, dbPath, nil
}

// openExistingEngine opens the catalog for the current directory's repo
// and fails if it has never been indexed.
func openExistingEngine() (*ecsig.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'ecsig index' first)", dbPath)
	}
	e, _, err := openEngine(repoRoot)
	return e, err
}
