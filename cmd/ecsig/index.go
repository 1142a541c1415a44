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

	"github.com/jward/ecsig"
)

// --- Catalog Commands ---

var (
	flagForce    bool
	flagSerial   bool
	flagRulesDir string
	flagNoLint   bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the signatures declared in a C/C++ tree",
	Long:  "Finds signature declarations with tree-sitter, compiles them, runs the lint rules, and writes the results to the SQLite catalog.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Run the lint rules over the indexed signatures",
	Args:  cobra.NoArgs,
	RunE:  runLint,
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a tree and keep the catalog current as files change",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "reindex files even when their content is unchanged")
	indexCmd.Flags().BoolVar(&flagSerial, "serial", false, "index files one at a time")
	indexCmd.Flags().BoolVar(&flagNoLint, "no-lint", false, "skip the lint pass")
	for _, cmd := range []*cobra.Command{indexCmd, lintCmd, watchCmd} {
		cmd.Flags().StringVar(&flagRulesDir, "rules-dir", "", "load lint rules from disk instead of the embedded defaults")
	}
}

// catalogOptions returns the Engine options selected by catalog command flags.
func catalogOptions() []ecsig.Option {
	var opts []ecsig.Option
	if flagForce {
		opts = append(opts, ecsig.WithForce(true))
	}
	if flagSerial {
		opts = append(opts, ecsig.WithParallel(false))
	}
	if flagRulesDir != "" {
		opts = append(opts, ecsig.WithRulesDir(flagRulesDir))
	}
	return opts
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("index", err)
	}
	engine, dbPath, err := openEngine(findRepoRoot(targetDir), catalogOptions()...)
	if err != nil {
		return outputError("index", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.IndexDirectory(ctx, targetDir); err != nil {
		return outputError("index", fmt.Errorf("indexing: %w", err))
	}
	indexDuration := time.Since(start)

	if !flagNoLint {
		if _, err := engine.Lint(ctx); err != nil {
			return outputError("index", fmt.Errorf("linting: %w", err))
		}
	}

	stats, err := engine.Store().Stats()
	if err != nil {
		return outputError("index", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (index: %s)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		indexDuration.Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	return outputResult(CLIResult{Command: "index", Results: statsToCLI(stats)})
}

func runLint(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return outputError("lint", err)
	}
	engine, _, err := openEngine(findRepoRoot(cwd), catalogOptions()...)
	if err != nil {
		return outputError("lint", err)
	}
	defer engine.Close()

	n, err := engine.Lint(context.Background())
	if err != nil {
		return outputError("lint", err)
	}
	diags, err := engine.Query().Diagnostics(ecsig.DiagnosticLint)
	if err != nil {
		return outputError("lint", err)
	}
	return outputResult(CLIResult{
		Command:    "lint",
		Results:    diagnosticsToCLI(engine.Store(), diags),
		TotalCount: &n,
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("watch", err)
	}
	engine, _, err := openEngine(findRepoRoot(targetDir), catalogOptions()...)
	if err != nil {
		return outputError("watch", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.IndexDirectory(ctx, targetDir); err != nil {
		return outputError("watch", fmt.Errorf("indexing: %w", err))
	}
	if _, err := engine.Lint(ctx); err != nil {
		return outputError("watch", fmt.Errorf("linting: %w", err))
	}
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", targetDir)

	return engine.Watch(ctx, targetDir, func(ev ecsig.WatchEvent) {
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", ev.Err)
			return
		}
		n, err := engine.Lint(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: linting: %s\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "%s changed: %s; removed: %s; %d lint finding(s)\n",
			time.Now().Format(time.TimeOnly),
			joinOrNone(ev.Changed), joinOrNone(ev.Removed), n)
	})
}

func joinOrNone(paths []string) string {
	if len(paths) == 0 {
		return "none"
	}
	return strings.Join(paths, ", ")
}
