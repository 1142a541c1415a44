package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ecsig/internal/store"
)

// stubCompiler splits on commas and treats "SYSTEM." prefixed terms as
// system sources. Enough to exercise the host functions.
type stubCompiler struct{}

func (stubCompiler) Compile(sig string) ([]TermInfo, error) {
	if strings.HasSuffix(strings.TrimSpace(sig), ",") {
		return nil, fmt.Errorf("empty term")
	}
	var terms []TermInfo
	for i, part := range strings.Split(sig, ",") {
		ident := strings.TrimSpace(part)
		t := TermInfo{Identifier: ident, Source: "self", Operator: "and", Access: "inout", Index: i, MatchesTables: true}
		if rest, ok := strings.CutPrefix(ident, "SYSTEM."); ok {
			t.Identifier = rest
			t.Source = "system"
			t.MatchesTables = false
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func (stubCompiler) CountTerms(sig string) int {
	if sig == "" {
		return 0
	}
	return strings.Count(sig, ",") + 1
}

// =============================================================================
// Script loading
// =============================================================================

func TestRunScript_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`result := 1 + 1`), 0644))

	rt := NewRuntime(nil, nil, dir)
	require.NoError(t, rt.RunScript(context.Background(), "test.risor", nil))
}

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(nil, nil, t.TempDir())
	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	mapFS := fstest.MapFS{
		"dup.risor": &fstest.MapFile{Data: []byte(content)},
	}
	rt := NewRuntime(nil, nil, "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("dup.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Absolute-style path should be resolved within the FS.
	got, err = rt.LoadScript("/dup.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FromFS_NotFound(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(nil, nil, "", WithRuntimeFS(fstest.MapFS{}))
	_, err := rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLoadScript_FallsBackToDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `z := 7`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(content), 0644))

	rt := NewRuntime(nil, nil, dir)
	got, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestScripts_ListsRisorFiles(t *testing.T) {
	t.Parallel()

	mapFS := fstest.MapFS{
		"b.risor":   &fstest.MapFile{Data: []byte(`x := 1`)},
		"a.risor":   &fstest.MapFile{Data: []byte(`x := 2`)},
		"README.md": &fstest.MapFile{Data: []byte(`docs`)},
	}
	rt := NewRuntime(nil, nil, "", WithRuntimeFS(mapFS))
	got, err := rt.Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.risor", "b.risor"}, got)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.risor"), []byte(`x := 3`), 0644))
	got, err = NewRuntime(nil, nil, dir).Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"c.risor"}, got)

	got, err = NewRuntime(nil, nil, "").Scripts()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRuleName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "default", RuleName("default.risor"))
	assert.Equal(t, "dup", RuleName(filepath.Join("rules", "dup.risor")))
}

// =============================================================================
// Importers
// =============================================================================

func TestImport_FSImporter(t *testing.T) {
	// Risor's FSImporter resolves "lib_helpers" by trying name + ".risor",
	// so the file must be at the flat path "lib_helpers.risor" in the FS.
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func greet(name) {
	return "hello " + name
}
`)},
	}
	rt := NewRuntime(nil, nil, "", WithRuntimeFS(mapFS))

	script := `
import lib_helpers

msg := lib_helpers.greet("world")
assert(msg == "hello world", 'expected "hello world", got ' + msg)
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	mapFS := fstest.MapFS{
		"helper.risor": &fstest.MapFile{Data: []byte(`
func first_identifier(sig) {
	ts := parse_signature(sig)
	return ts[0]["identifier"]
}
`)},
	}
	rt := NewRuntime(nil, stubCompiler{}, "", WithRuntimeFS(mapFS))

	script := `
import helper
name := helper.first_identifier("Position, Velocity")
assert(name == "Position", 'expected Position, got {name}')
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

// =============================================================================
// Host functions
// =============================================================================

func TestHostFuncs_Compiler(t *testing.T) {
	rt := NewRuntime(nil, stubCompiler{}, "")

	script := `
ts := parse_signature("Position, SYSTEM.Clock")
assert(len(ts) == 2, 'expected 2 terms, got {len(ts)}')
assert(ts[1]["source"] == "system", 'expected system source')
assert(ts[1]["identifier"] == "Clock", 'expected Clock')
assert(ts[0]["matches_tables"], 'expected first term to match tables')

assert(count_terms("A, B, C") == 3, 'expected 3')
assert(count_terms("") == 0, 'expected 0')
assert(needs_tables("Position"), 'Position needs tables')
assert(!needs_tables("SYSTEM.Clock"), 'SYSTEM.Clock needs no tables')
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestHostFuncs_ParseSignatureRaises(t *testing.T) {
	rt := NewRuntime(nil, stubCompiler{}, "")
	err := rt.RunSource(context.Background(), `parse_signature("Foo,")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty term")
}

func TestHostFuncs_NotExposedWithoutDeps(t *testing.T) {
	rt := NewRuntime(nil, nil, "")
	globals := rt.buildGlobals(nil)
	assert.Contains(t, globals, "log")
	assert.NotContains(t, globals, "parse_signature")
	assert.NotContains(t, globals, "signatures_using")
}

func TestHostFuncs_SignaturesUsing(t *testing.T) {
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	sig := &store.Signature{Owner: "Move", Kind: "ECS_SYSTEM", Text: "Position", Hash: "h", Valid: true}
	_, err = s.InsertSignature(sig)
	require.NoError(t, err)
	_, err = s.InsertTerm(&store.Term{SignatureID: sig.ID, Identifier: "Position", Source: "self", Operator: "and", Access: "inout"})
	require.NoError(t, err)

	rt := NewRuntime(s, stubCompiler{}, "")
	script := `
users := signatures_using("Position")
assert(len(users) == 1, 'expected 1 user, got {len(users)}')
assert(users[0]["owner"] == "Move", 'expected Move')
assert(len(signatures_using("Mass")) == 0, 'expected no users of Mass')
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestLogObject_UsesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rt := NewRuntime(nil, nil, "", WithRuntimeLogger(logger))

	require.NoError(t, rt.RunSource(context.Background(), `log.Warn("careful")`, nil))
	assert.Contains(t, buf.String(), "careful")
	assert.Contains(t, buf.String(), "source=rule")
}

// =============================================================================
// Lint
// =============================================================================

func TestLintSource_ReportsFindings(t *testing.T) {
	rt := NewRuntime(nil, stubCompiler{}, "")

	rule := `
for i := 0; i < len(terms); i++ {
	t := terms[i]
	if t["identifier"] == "Velocity" {
		report('{owner} uses Velocity', i)
	}
}
if len(terms) > 1 {
	report('signature {signature} has several terms')
}
`
	input := LintInput{
		Owner:     "Move",
		Signature: "Position, Velocity",
		Terms: []TermInfo{
			{Identifier: "Position", Source: "self", Operator: "and", Access: "inout", Index: 0},
			{Identifier: "Velocity", Source: "self", Operator: "and", Access: "in", Index: 1, Offset: 10},
		},
	}
	findings, err := rt.LintSource(context.Background(), "velocity", rule, input)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, Finding{Rule: "velocity", Message: "Move uses Velocity", TermIndex: 1}, findings[0])
	assert.Equal(t, -1, findings[1].TermIndex)
	assert.Equal(t, "signature Position, Velocity has several terms", findings[1].Message)
}

func TestLintSource_NoFindings(t *testing.T) {
	rt := NewRuntime(nil, nil, "")
	findings, err := rt.LintSource(context.Background(), "noop", `x := len(terms)`, LintInput{Signature: "Position"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestLintSource_ReportArgumentErrors(t *testing.T) {
	rt := NewRuntime(nil, nil, "")
	_, err := rt.LintSource(context.Background(), "bad", `report()`, LintInput{})
	require.Error(t, err)

	_, err = rt.LintSource(context.Background(), "bad", `report(1)`, LintInput{})
	require.Error(t, err)
}

func TestLint_FromFS(t *testing.T) {
	mapFS := fstest.MapFS{
		"always.risor": &fstest.MapFile{Data: []byte(`report("seen " + owner)`)},
	}
	rt := NewRuntime(nil, nil, "", WithRuntimeFS(mapFS))

	findings, err := rt.Lint(context.Background(), "always.risor", LintInput{Owner: "Render"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "always", findings[0].Rule)
	assert.Equal(t, "seen Render", findings[0].Message)
}

func TestNewRuntime_Options(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(nil, nil, "/some/dir")
	require.NotNil(t, rt)
	assert.Nil(t, rt.fsys)
	assert.Equal(t, "/some/dir", rt.scriptsDir)
	assert.NotNil(t, rt.logger)
}
