package ecsig

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jward/ecsig/internal/runtime"
	"github.com/jward/ecsig/internal/store"
	"github.com/jward/ecsig/rules"
)

// Engine orchestrates the ecsig pipeline: file discovery, change detection,
// signature extraction and compilation, lint rules, and query access.
type Engine struct {
	store   *store.Store
	runtime *runtime.Runtime
	parser  *Parser
	logger  *slog.Logger

	rulesDir string
	rulesFS  fs.FS
	exclude  []string
	calls    []runtime.CallSpec

	// useParallel enables the parallel extraction pipeline.
	useParallel bool
	force       bool
	debounce    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel controls parallel extraction. When true (default), IndexFiles
// uses a worker pool for parsing and compilation, with a single writer
// committing batches to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithForce makes IndexFiles reprocess files whose content hash is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// WithEngineLogger sets the Engine's logger. The default parser logs through it too.
func WithEngineLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithParser replaces the parser used to compile signatures.
func WithParser(p *Parser) Option {
	return func(e *Engine) {
		e.parser = p
	}
}

// WithRulesFS loads lint rules from fsys instead of the embedded defaults.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.rulesFS = fsys
	}
}

// WithRulesDir loads lint rules from a directory on disk. It takes
// precedence over WithRulesFS.
func WithRulesDir(dir string) Option {
	return func(e *Engine) {
		e.rulesDir = dir
	}
}

// WithExclude skips files matching any of the doublestar patterns, matched
// against paths relative to the indexed root.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		e.exclude = patterns
	}
}

// WithCalls sets the table of calls that declare signatures.
func WithCalls(calls []runtime.CallSpec) Option {
	return func(e *Engine) {
		e.calls = calls
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("ecsig: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("ecsig: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		logger:      slog.Default(),
		rulesFS:     rules.FS,
		calls:       runtime.DefaultCalls,
		useParallel: true, // default to parallel extraction
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.parser == nil {
		e.parser = NewParser(WithLogger(e.logger))
	}

	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}
	if e.rulesDir == "" {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.rulesFS))
	}
	e.runtime = runtime.NewRuntime(s, compiler{e.parser}, e.rulesDir, rtOpts...)

	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Compile parses one signature on behalf of owner with the Engine's parser.
// Nothing is persisted.
func (e *Engine) Compile(owner, signature string) ([]Term, error) {
	return e.parser.ForOwner(owner).Terms(signature)
}

// compiler adapts a Parser to the runtime's Compiler interface.
type compiler struct {
	p *Parser
}

func (c compiler) Compile(signature string) ([]runtime.TermInfo, error) {
	terms, err := c.p.Terms(signature)
	if err != nil {
		return nil, err
	}
	infos := make([]runtime.TermInfo, len(terms))
	for i, t := range terms {
		infos[i] = termInfo(t)
	}
	return infos, nil
}

func (c compiler) CountTerms(signature string) int {
	return CountTerms(signature)
}

func termInfo(t Term) runtime.TermInfo {
	return runtime.TermInfo{
		Identifier:       t.Identifier,
		Source:           t.Source.String(),
		SourceIdentifier: t.SourceIdentifier,
		Operator:         t.Operator.String(),
		Access:           t.Access.String(),
		Index:            t.Index,
		Offset:           t.Offset,
		MatchesTables:    t.Source.MatchesTables(),
	}
}

// IndexFiles indexes the given file paths. When WithParallel is enabled,
// uses a worker pool for concurrent extraction with batched SQLite writes.
// Otherwise falls back to the serial path.
//
// For each file:
// 1. Detect language from extension
// 2. Skip unchanged files (same content hash) unless forced
// 3. Delete stale data, insert the file record without a hash
// 4. Extract signature sites and compile each one
// 5. Persist signatures and terms, or a parse diagnostic
// 6. Record the content hash
//
// Errors on individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	if e.useParallel {
		return e.IndexFilesParallel(ctx, paths)
	}
	return e.indexFilesSerial(ctx, paths)
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexFile(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexFile(ctx context.Context, path string) error {
	item, skip, err := e.prepareFile(ctx, path)
	if err != nil || skip {
		return err
	}
	if err := e.extractFile(ctx, item, e.store); err != nil {
		return err
	}
	return e.store.SetFileHash(item.fileID, item.hash)
}

// prepareFile does the serial work for a single file: hash check, cleanup,
// file record with an empty hash. Returns (item, skip, error). skip=true
// means the file is unchanged or unsupported.
func (e *Engine) prepareFile(_ context.Context, path string) (workItem, bool, error) {
	lang, ok := runtime.LanguageForFile(path)
	if !ok {
		return workItem{}, true, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ComputeContentHash(content)

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash && !e.force {
		e.logger.Debug("file unchanged", slog.String("path", path))
		return workItem{}, true, nil
	}

	if existing != nil {
		if err := e.store.DeleteFileData(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
	}

	// The hash is recorded once the file's signatures are stored, so an
	// interrupted run leaves the file looking changed.
	fileID, err := e.store.InsertFile(&store.File{
		Path:        path,
		Language:    lang,
		LineCount:   bytes.Count(content, []byte{'\n'}) + 1,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return workItem{}, false, fmt.Errorf("insert file: %w", err)
	}

	return workItem{
		path:    path,
		lang:    lang,
		fileID:  fileID,
		hash:    hash,
		content: content,
	}, false, nil
}

// extractFile finds every signature site in the item's content and writes
// the compiled result to ds.
func (e *Engine) extractFile(ctx context.Context, item workItem, ds store.DataStore) error {
	sites, err := runtime.ExtractSignatures(ctx, item.content, item.lang, e.calls)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for _, site := range sites {
		if err := e.compileSite(ds, item.fileID, site); err != nil {
			return fmt.Errorf("%s at line %d: %w", site.Owner, site.Line+1, err)
		}
	}
	e.logger.Debug("indexed file",
		slog.String("path", item.path),
		slog.Int("signatures", len(sites)))
	return nil
}

// compileSite compiles one extracted signature and stores it with its
// terms. A structural error is stored as a parse diagnostic, not returned.
func (e *Engine) compileSite(ds store.DataStore, fileID int64, site runtime.Site) error {
	terms, parseErr := e.parser.ForOwner(site.Owner).Terms(site.Signature)

	var pe *ParseError
	if parseErr != nil && !errors.As(parseErr, &pe) {
		return parseErr
	}

	sig := &store.Signature{
		FileID:    &fileID,
		Owner:     site.Owner,
		Kind:      site.Call,
		Text:      site.Signature,
		Hash:      store.ComputeSignatureHash(site.Signature),
		TermCount: CountTerms(site.Signature),
		Valid:     parseErr == nil,
		Line:      site.Line,
		Col:       site.Col,
	}
	for _, t := range terms {
		if t.Source.MatchesTables() {
			sig.NeedsTables = true
		}
	}
	sigID, err := ds.InsertSignature(sig)
	if err != nil {
		return err
	}

	if pe != nil {
		_, err := ds.InsertDiagnostic(&store.Diagnostic{
			SignatureID: &sigID,
			FileID:      &fileID,
			Owner:       site.Owner,
			Kind:        store.DiagnosticParse,
			Severity:    "error",
			Message:     fmt.Sprintf("%v: %s", pe.Kind, pe.Reason),
			Detail:      pe.Diagnostic(),
			Offset:      pe.Offset,
			Arg:         pe.Arg,
			Line:        site.Line,
			Col:         site.Col,
		})
		return err
	}

	for _, t := range terms {
		_, err := ds.InsertTerm(&store.Term{
			SignatureID:      sigID,
			Ordinal:          t.Index,
			Identifier:       t.Identifier,
			Source:           t.Source.String(),
			SourceIdentifier: t.SourceIdentifier,
			Operator:         t.Operator.String(),
			Access:           t.Access.String(),
			Offset:           t.Offset,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// skipDirs lists directories that are never indexed.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
}

// IndexDirectory walks root and indexes all files with supported extensions.
// If root is inside a git repository, uses git ls-files to respect .gitignore.
// Falls back to filesystem walk (skipping hidden dirs, node_modules, vendor,
// build) if git is unavailable. Catalog entries for files under root that no
// longer exist are removed.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	paths, err := e.gitListFiles(root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking directory", slog.String("root", root))
		paths, err = e.walkListFiles(root)
		if err != nil {
			return err
		}
	}
	paths = e.filterExcluded(root, paths)

	if _, err := e.pruneMissing(root, paths); err != nil {
		return err
	}
	return e.IndexFiles(ctx, paths)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root, filtered to supported languages.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := runtime.LanguageForFile(absPath); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a fallback
// when git is not available.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := runtime.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

// filterExcluded drops paths matching the Engine's exclude globs.
func (e *Engine) filterExcluded(root string, paths []string) []string {
	if len(e.exclude) == 0 {
		return paths
	}
	kept := paths[:0]
	for _, p := range paths {
		if !e.excluded(root, p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func (e *Engine) excluded(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range e.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// pruneMissing deletes catalog data for files under root that are not in
// paths and returns the removed paths.
func (e *Engine) pruneMissing(root string, paths []string) ([]string, error) {
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
	}
	files, err := e.store.Files()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	prefix := root + string(filepath.Separator)
	var removed []string
	for _, f := range files {
		if !strings.HasPrefix(f.Path, prefix) || present[f.Path] {
			continue
		}
		e.logger.Debug("removing missing file", slog.String("path", f.Path))
		if err := e.store.DeleteFileData(f.ID); err != nil {
			return removed, fmt.Errorf("prune %s: %w", f.Path, err)
		}
		removed = append(removed, f.Path)
	}
	return removed, nil
}

// RemoveFile deletes everything indexed from path. Unknown paths are ignored.
func (e *Engine) RemoveFile(path string) error {
	f, err := e.store.FileByPath(path)
	if err != nil || f == nil {
		return err
	}
	return e.store.DeleteFileData(f.ID)
}

// rulesHash computes a SHA-256 hash of all lint rule scripts, sorted by path.
func (e *Engine) rulesHash() string {
	scripts, err := e.runtime.Scripts()
	if err != nil {
		return ""
	}
	h := sha256.New()
	for _, p := range scripts {
		src, err := e.runtime.LoadScript(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte(src))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// RulesChanged reports whether the lint rules differ from those used for the
// last Lint run. Returns true if the DB has no stored hash (never linted).
func (e *Engine) RulesChanged() bool {
	stored, err := e.store.GetMetadata("rules_hash")
	if err != nil || stored == "" {
		return true
	}
	return e.rulesHash() != stored
}
