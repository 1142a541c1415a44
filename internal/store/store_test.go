package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// insertTestFile is a helper that inserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path, lang string) *File {
	t.Helper()
	f := &File{Path: path, Language: lang, Hash: "abc123", LastIndexed: time.Now().Truncate(time.Second)}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

// insertTestSignature inserts a valid signature owned by owner.
func insertTestSignature(t *testing.T, s *Store, fileID *int64, owner, text string) *Signature {
	t.Helper()
	sig := &Signature{
		FileID:      fileID,
		Owner:       owner,
		Kind:        "ECS_SYSTEM",
		Text:        text,
		Hash:        ComputeSignatureHash(text),
		TermCount:   1,
		NeedsTables: true,
		Valid:       true,
		Line:        3,
		Col:         1,
	}
	id, err := s.InsertSignature(sig)
	require.NoError(t, err)
	require.Positive(t, id)
	return sig
}

func insertTestTerm(t *testing.T, s *Store, sigID int64, ordinal int, ident, operator, access string) *Term {
	t.Helper()
	term := &Term{
		SignatureID: sigID,
		Ordinal:     ordinal,
		Identifier:  ident,
		Source:      "self",
		Operator:    operator,
		Access:      access,
	}
	_, err := s.InsertTerm(term)
	require.NoError(t, err)
	return term
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "signatures", "terms", "diagnostics", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// File operations
// =============================================================================

func TestFile_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	f := &File{Path: "/src/systems.c", Language: "c", Hash: "sha256abc", LineCount: 42, LastIndexed: now}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.FileByPath("/src/systems.c")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "c", got.Language)
	assert.Equal(t, "sha256abc", got.Hash)
	assert.Equal(t, 42, got.LineCount)
	assert.True(t, now.Equal(got.LastIndexed))

	byID, err := s.FileByID(id)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "/src/systems.c", byID.Path)
}

func TestFile_SetHash(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id, err := s.InsertFile(&File{Path: "/src/pending.c", Language: "c"})
	require.NoError(t, err)
	got, err := s.FileByID(id)
	require.NoError(t, err)
	assert.Empty(t, got.Hash)

	require.NoError(t, s.SetFileHash(id, "sha256def"))
	got, err = s.FileByID(id)
	require.NoError(t, err)
	assert.Equal(t, "sha256def", got.Hash)
}

func TestFile_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.FileByPath("/nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)

	byID, err := s.FileByID(99)
	require.NoError(t, err)
	assert.Nil(t, byID)
}

func TestFile_ListOrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/b.c", "c")
	insertTestFile(t, s, "/a.cpp", "cpp")

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/a.cpp", files[0].Path)
	assert.Equal(t, "/b.c", files[1].Path)
}

// =============================================================================
// Signatures & terms
// =============================================================================

func TestSignature_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.c", "c")
	sig := insertTestSignature(t, s, &f.ID, "Move", "Position, Velocity")

	got, err := s.SignatureByID(sig.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Move", got.Owner)
	assert.Equal(t, "ECS_SYSTEM", got.Kind)
	assert.Equal(t, "Position, Velocity", got.Text)
	require.NotNil(t, got.FileID)
	assert.Equal(t, f.ID, *got.FileID)
	assert.True(t, got.Valid)
	assert.True(t, got.NeedsTables)
	assert.Equal(t, 3, got.Line)
}

func TestSignature_WithoutFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	sig := insertTestSignature(t, s, nil, "adhoc", "Position")

	got, err := s.SignatureByID(sig.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.FileID)
}

func TestSignature_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.SignatureByID(12345)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSignature_Lookups(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.c", "c")
	move := insertTestSignature(t, s, &f.ID, "Move", "Position, Velocity")
	insertTestSignature(t, s, &f.ID, "Render", "Position")
	insertTestSignature(t, s, nil, "Move", "Position ,Velocity")

	byOwner, err := s.SignaturesByOwner("Move")
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	byFile, err := s.SignaturesByFile(f.ID)
	require.NoError(t, err)
	assert.Len(t, byFile, 2)

	byHash, err := s.SignaturesByHash(move.Hash)
	require.NoError(t, err)
	assert.Len(t, byHash, 2, "whitespace differences share a hash")

	all, err := s.AllSignatures()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTerms_OrderedByOrdinal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	sig := insertTestSignature(t, s, nil, "Move", "Position, Velocity")
	insertTestTerm(t, s, sig.ID, 1, "Velocity", "and", "in")
	insertTestTerm(t, s, sig.ID, 0, "Position", "and", "out")

	terms, err := s.TermsBySignature(sig.ID)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "Position", terms[0].Identifier)
	assert.Equal(t, "Velocity", terms[1].Identifier)
	assert.Empty(t, terms[0].SourceIdentifier)
}

func TestTerms_SourceIdentifierRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	sig := insertTestSignature(t, s, nil, "Follow", "Player.Position")
	_, err := s.InsertTerm(&Term{
		SignatureID: sig.ID, Identifier: "Position", Source: "entity",
		SourceIdentifier: "Player", Operator: "and", Access: "inout", Offset: 0,
	})
	require.NoError(t, err)

	terms, err := s.TermsBySignature(sig.ID)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Player", terms[0].SourceIdentifier)
}

func TestSignaturesUsingComponent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	move := insertTestSignature(t, s, nil, "Move", "[out] Position, [in] Velocity")
	insertTestTerm(t, s, move.ID, 0, "Position", "and", "out")
	insertTestTerm(t, s, move.ID, 1, "Velocity", "and", "in")
	render := insertTestSignature(t, s, nil, "Render", "[in] Position")
	insertTestTerm(t, s, render.ID, 0, "Position", "and", "in")
	hidden := insertTestSignature(t, s, nil, "Visible", "Position, !Hidden")
	insertTestTerm(t, s, hidden.ID, 0, "Position", "and", "inout")
	insertTestTerm(t, s, hidden.ID, 1, "Hidden", "not", "inout")

	using, err := s.SignaturesUsingComponent("Position", "")
	require.NoError(t, err)
	assert.Len(t, using, 3)

	writers, err := s.SignaturesUsingComponent("Position", "out")
	require.NoError(t, err)
	require.Len(t, writers, 1)
	assert.Equal(t, "Move", writers[0].Owner)

	excl, err := s.SignaturesExcluding("Hidden")
	require.NoError(t, err)
	require.Len(t, excl, 1)
	assert.Equal(t, "Visible", excl[0].Owner)

	usages, err := s.ComponentUsages()
	require.NoError(t, err)
	byName := make(map[string]*ComponentUsage)
	for _, u := range usages {
		byName[u.Identifier] = u
	}
	require.Contains(t, byName, "Position")
	assert.Equal(t, 2, byName["Position"].Readers)
	assert.Equal(t, 2, byName["Position"].Writers)
	assert.Equal(t, 1, byName["Hidden"].Excluders)
	assert.Equal(t, 0, byName["Hidden"].Readers)
}

func TestSignaturesWithoutTables(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestSignature(t, s, nil, "Move", "Position")
	_, err := s.InsertSignature(&Signature{Owner: "Tick", Kind: "ECS_SYSTEM", Text: "SYSTEM.Time", Hash: "h", Valid: true})
	require.NoError(t, err)
	_, err = s.InsertSignature(&Signature{Owner: "Broken", Kind: "ECS_SYSTEM", Text: "Foo,", Hash: "h2", Valid: false})
	require.NoError(t, err)

	sigs, err := s.SignaturesWithoutTables()
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Tick", sigs[0].Owner)
}

// =============================================================================
// Diagnostics
// =============================================================================

func TestDiagnostics_FilterAndDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.c", "c")
	sig := insertTestSignature(t, s, &f.ID, "Move", "Position, !")

	_, err := s.InsertDiagnostic(&Diagnostic{
		SignatureID: &sig.ID, FileID: &f.ID, Owner: "Move", Kind: DiagnosticParse,
		Severity: "error", Message: "invalid expression", Offset: 10, Arg: 2, Line: 3, Col: 1,
	})
	require.NoError(t, err)
	_, err = s.InsertDiagnostic(&Diagnostic{
		SignatureID: &sig.ID, Owner: "Move", Kind: DiagnosticLint,
		Severity: "warning", Rule: "default", Message: "duplicate Position",
	})
	require.NoError(t, err)

	all, err := s.Diagnostics("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	parse, err := s.Diagnostics(DiagnosticParse)
	require.NoError(t, err)
	require.Len(t, parse, 1)
	assert.Equal(t, 2, parse[0].Arg)
	assert.Equal(t, 10, parse[0].Offset)
	require.NotNil(t, parse[0].FileID)

	require.NoError(t, s.DeleteDiagnosticsByKind(DiagnosticLint))
	all, err = s.Diagnostics("")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, DiagnosticParse, all[0].Kind)
}

// =============================================================================
// File data lifecycle
// =============================================================================

func TestDeleteFileData_RemovesEverything(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.c", "c")
	keep := insertTestFile(t, s, "/b.c", "c")

	sig := insertTestSignature(t, s, &f.ID, "Move", "Position")
	insertTestTerm(t, s, sig.ID, 0, "Position", "and", "inout")
	_, err := s.InsertDiagnostic(&Diagnostic{SignatureID: &sig.ID, FileID: &f.ID, Kind: DiagnosticLint, Severity: "warning", Message: "x"})
	require.NoError(t, err)
	other := insertTestSignature(t, s, &keep.ID, "Render", "Position")

	require.NoError(t, s.DeleteFileData(f.ID))

	got, err := s.FileByPath("/a.c")
	require.NoError(t, err)
	assert.Nil(t, got)

	terms, err := s.TermsBySignature(sig.ID)
	require.NoError(t, err)
	assert.Empty(t, terms)

	diags, err := s.Diagnostics("")
	require.NoError(t, err)
	assert.Empty(t, diags)

	survivor, err := s.SignatureByID(other.ID)
	require.NoError(t, err)
	assert.NotNil(t, survivor)
}

// =============================================================================
// Metadata & stats
// =============================================================================

func TestMetadata_Upsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("rules_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("rules_hash", "one"))
	require.NoError(t, s.SetMetadata("rules_hash", "two"))

	v, err = s.GetMetadata("rules_hash")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.c", "c")
	sig := insertTestSignature(t, s, &f.ID, "Move", "Position, Velocity")
	insertTestTerm(t, s, sig.ID, 0, "Position", "and", "inout")
	insertTestTerm(t, s, sig.ID, 1, "Velocity", "and", "inout")
	_, err := s.InsertSignature(&Signature{Owner: "Bad", Kind: "ECS_SYSTEM", Text: "!", Hash: "h", Valid: false})
	require.NoError(t, err)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 2, st.Signatures)
	assert.Equal(t, 1, st.InvalidSignatures)
	assert.Equal(t, 2, st.Terms)
	assert.Equal(t, 2, st.Components)
	assert.Equal(t, 0, st.Diagnostics)
}

func TestComputeSignatureHash_IgnoresWhitespace(t *testing.T) {
	t.Parallel()
	a := ComputeSignatureHash("Position, Velocity")
	b := ComputeSignatureHash("Position,\n\tVelocity")
	c := ComputeSignatureHash("Position, Mass")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, ComputeContentHash([]byte("x")), ComputeContentHash([]byte("x")))
}
