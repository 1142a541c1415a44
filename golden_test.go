package ecsig

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format.
type goldenFile struct {
	Lint        bool         `json:"lint,omitempty"`
	Signatures  []goldenSig  `json:"signatures,omitempty"`
	Diagnostics []goldenDiag `json:"diagnostics,omitempty"`
	Clean       []string     `json:"clean,omitempty"`
}

type goldenSig struct {
	Owner       string   `json:"owner"`
	Kind        string   `json:"kind"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Text        string   `json:"text"`
	Valid       bool     `json:"valid"`
	NeedsTables bool     `json:"needs_tables"`
	Terms       []string `json:"terms,omitempty"`
}

type goldenDiag struct {
	Owner   string `json:"owner"`
	Kind    string `json:"kind"`
	Rule    string `json:"rule,omitempty"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Arg     int    `json:"arg"`
	Offset  int    `json:"offset"`
	Message string `json:"message"`
}

// TestGolden walks testdata/{language}/ directories and checks the catalog
// built from each src/ directory against its golden.json.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		lang := langDir.Name()
		langRoot := filepath.Join("testdata", lang)
		cases, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}

		for _, c := range cases {
			if !c.IsDir() {
				continue
			}
			testDir := filepath.Join(langRoot, c.Name())
			goldenPath := filepath.Join(testDir, "golden.json")
			srcDir := filepath.Join(testDir, "src")

			if _, err := os.Stat(goldenPath); err != nil {
				continue
			}
			if _, err := os.Stat(srcDir); err != nil {
				continue
			}

			t.Run(lang+"/"+c.Name(), func(t *testing.T) {
				runGoldenTest(t, srcDir, goldenPath)
			})
		}
	}
}

func runGoldenTest(t *testing.T, srcDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	dbPath := filepath.Join(t.TempDir(), "golden.db")
	engine, err := New(dbPath)
	require.NoError(t, err)
	defer engine.Close()

	srcEntries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	var paths []string
	for _, e := range srcEntries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(srcDir, e.Name()))
		}
	}
	require.NoError(t, engine.IndexFiles(context.Background(), paths))

	if golden.Lint {
		_, err := engine.Lint(context.Background())
		require.NoError(t, err)
	}

	if len(golden.Signatures) > 0 {
		t.Run("signatures", func(t *testing.T) {
			verifySignatures(t, engine, golden.Signatures)
		})
	}
	if len(golden.Diagnostics) > 0 {
		t.Run("diagnostics", func(t *testing.T) {
			verifyDiagnostics(t, engine, golden.Diagnostics)
		})
	}
	if len(golden.Clean) > 0 {
		t.Run("clean", func(t *testing.T) {
			verifyClean(t, engine, golden.Clean)
		})
	}
}

func verifySignatures(t *testing.T, engine *Engine, expected []goldenSig) {
	t.Helper()
	s := engine.Store()

	for _, exp := range expected {
		sigs, err := s.SignaturesByOwner(exp.Owner)
		require.NoError(t, err)
		require.Len(t, sigs, 1, "owner %s", exp.Owner)
		sig := sigs[0]

		assert.Equal(t, exp.Kind, sig.Kind, "kind of %s", exp.Owner)
		assert.Equal(t, exp.Line, sig.Line, "line of %s", exp.Owner)
		assert.Equal(t, exp.Text, sig.Text, "text of %s", exp.Owner)
		assert.Equal(t, exp.Valid, sig.Valid, "valid of %s", exp.Owner)
		assert.Equal(t, exp.File, goldenFileName(t, engine, sig.FileID), "file of %s", exp.Owner)
		if !exp.Valid {
			continue
		}
		assert.Equal(t, exp.NeedsTables, sig.NeedsTables, "needs_tables of %s", exp.Owner)

		terms, err := s.TermsBySignature(sig.ID)
		require.NoError(t, err)
		var got []string
		for _, term := range terms {
			got = append(got, term.Operator+" ["+term.Access+"] "+term.Source+"."+term.Identifier)
		}
		assert.Equal(t, exp.Terms, got, "terms of %s", exp.Owner)
	}
}

func verifyDiagnostics(t *testing.T, engine *Engine, expected []goldenDiag) {
	t.Helper()

	type diagKey struct {
		Owner   string
		Kind    string
		Rule    string
		File    string
		Line    int
		Arg     int
		Offset  int
		Message string
	}
	diags, err := engine.Store().Diagnostics("")
	require.NoError(t, err)
	actual := make(map[diagKey]bool, len(diags))
	for _, d := range diags {
		actual[diagKey{d.Owner, d.Kind, d.Rule, goldenFileName(t, engine, d.FileID), d.Line, d.Arg, d.Offset, d.Message}] = true
	}

	for _, exp := range expected {
		key := diagKey{exp.Owner, exp.Kind, exp.Rule, exp.File, exp.Line, exp.Arg, exp.Offset, exp.Message}
		assert.True(t, actual[key], "missing diagnostic: %+v\nhave: %+v", exp, actual)
	}
	assert.Len(t, diags, len(expected), "unexpected extra diagnostics")
}

func verifyClean(t *testing.T, engine *Engine, owners []string) {
	t.Helper()
	diags, err := engine.Store().Diagnostics("")
	require.NoError(t, err)
	for _, d := range diags {
		assert.NotContains(t, owners, d.Owner, "unexpected diagnostic: %s", d.Message)
	}
}

func goldenFileName(t *testing.T, engine *Engine, fileID *int64) string {
	t.Helper()
	if fileID == nil {
		return ""
	}
	f, err := engine.Store().FileByID(*fileID)
	require.NoError(t, err)
	if f == nil {
		return ""
	}
	return filepath.Base(f.Path)
}
