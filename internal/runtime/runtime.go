package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/ecsig/internal/store"
)

// TermInfo is the script-facing view of a compiled term. Enum fields hold
// their textual names.
type TermInfo struct {
	Identifier       string
	Source           string
	SourceIdentifier string
	Operator         string
	Access           string
	Index            int
	Offset           int
	MatchesTables    bool
}

// Compiler compiles signatures on behalf of rule scripts.
type Compiler interface {
	Compile(signature string) ([]TermInfo, error)
	CountTerms(signature string) int
}

// Runtime embeds a Risor VM and provides signature host functions and
// Store access to lint rule scripts.
type Runtime struct {
	store      *store.Store
	compiler   Compiler
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log object.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime wired to the given Store, Compiler and
// scripts directory. The Store may be nil, in which case store-backed
// host functions are not exposed.
func NewRuntime(s *store.Store, c Compiler, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		store:      s,
		compiler:   c,
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on that filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(p string) (string, error) {
	if r.fsys != nil {
		// Paths inside an fs.FS are slash-separated and relative.
		fsPath := strings.TrimPrefix(filepath.ToSlash(p), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := p
	if !filepath.IsAbs(p) {
		fullPath = filepath.Join(r.scriptsDir, p)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// Scripts lists the rule scripts available to the Runtime, sorted by path.
func (r *Runtime) Scripts() ([]string, error) {
	if r.fsys != nil {
		return fs.Glob(r.fsys, "*.risor")
	}
	if r.scriptsDir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(r.scriptsDir, "*.risor"))
	if err != nil {
		return nil, err
	}
	for i, m := range matches {
		matches[i] = filepath.Base(m)
	}
	return matches, nil
}

// RuleName derives a rule name from a script path: "dup.risor" -> "dup".
func RuleName(scriptPath string) string {
	base := path.Base(filepath.ToSlash(scriptPath))
	return strings.TrimSuffix(base, path.Ext(base))
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"log": mustProxy(&logObject{logger: r.logger}),
	}

	if r.compiler != nil {
		globals["parse_signature"] = makeParseSignatureFn(r.compiler)
		globals["count_terms"] = makeCountTermsFn(r.compiler)
		globals["needs_tables"] = makeNeedsTablesFn(r.compiler)
	}

	// Expose the Store if available (nil during some tests).
	if r.store != nil {
		globals["signatures_using"] = makeSignaturesUsingFn(r.store)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
