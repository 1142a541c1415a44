package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// --- Files ---

// InsertFile inserts a file row and returns its ID.
func (s *Store) InsertFile(f *File) (int64, error) {
	var lastIndexed any
	if !f.LastIndexed.IsZero() {
		lastIndexed = f.LastIndexed
	}
	id, err := insertID(s.db,
		"INSERT INTO files (path, language, hash, line_count, last_indexed) VALUES (?, ?, ?, ?, ?)",
		f.Path, f.Language, f.Hash, f.LineCount, lastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	f.ID = id
	return id, nil
}

// SetFileHash records the content hash of an indexed file. An empty hash
// marks the file as not yet indexed.
func (s *Store) SetFileHash(id int64, hash string) error {
	if _, err := s.db.Exec("UPDATE files SET hash = ? WHERE id = ?", hash, id); err != nil {
		return fmt.Errorf("set file hash: %w", err)
	}
	return nil
}

const fileCols = "id, path, language, hash, line_count, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var lastIndexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &hash, &f.LineCount, &lastIndexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	if lastIndexed.Valid {
		f.LastIndexed = lastIndexed.Time
	}
	return f, nil
}

// FileByPath returns the file with the given path, or nil if not found.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FileByID returns the file with the given ID, or nil if not found.
func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

// Files returns all indexed files ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Signatures ---

// InsertSignature inserts a signature and returns its ID.
func (s *Store) InsertSignature(sig *Signature) (int64, error) {
	id, err := insertSignatureTx(s.db, sig)
	if err != nil {
		return 0, err
	}
	sig.ID = id
	return id, nil
}

func insertSignatureTx(db execer, sig *Signature) (int64, error) {
	id, err := insertID(db,
		`INSERT INTO signatures (file_id, owner, kind, text, hash, term_count, needs_tables, valid, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.FileID, sig.Owner, sig.Kind, sig.Text, sig.Hash, sig.TermCount, sig.NeedsTables, sig.Valid, sig.Line, sig.Col,
	)
	if err != nil {
		return 0, fmt.Errorf("insert signature: %w", err)
	}
	return id, nil
}

const signatureCols = "id, file_id, owner, kind, text, hash, term_count, needs_tables, valid, line, col"

func scanSignature(scanner interface{ Scan(...any) error }) (*Signature, error) {
	sig := &Signature{}
	var fileID sql.NullInt64
	var line, col sql.NullInt64
	if err := scanner.Scan(&sig.ID, &fileID, &sig.Owner, &sig.Kind, &sig.Text, &sig.Hash,
		&sig.TermCount, &sig.NeedsTables, &sig.Valid, &line, &col); err != nil {
		return nil, err
	}
	if fileID.Valid {
		sig.FileID = &fileID.Int64
	}
	sig.Line = int(line.Int64)
	sig.Col = int(col.Int64)
	return sig, nil
}

func (s *Store) querySignatures(query string, args ...any) ([]*Signature, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sigs []*Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// SignatureByID returns the signature with the given ID, or nil if not found.
func (s *Store) SignatureByID(id int64) (*Signature, error) {
	sig, err := scanSignature(s.db.QueryRow("SELECT "+signatureCols+" FROM signatures WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signature by id: %w", err)
	}
	return sig, nil
}

// SignaturesByOwner returns all signatures declared by owner.
func (s *Store) SignaturesByOwner(owner string) ([]*Signature, error) {
	return s.querySignatures("SELECT "+signatureCols+" FROM signatures WHERE owner = ? ORDER BY id", owner)
}

// SignaturesByFile returns all signatures extracted from the given file.
func (s *Store) SignaturesByFile(fileID int64) ([]*Signature, error) {
	return s.querySignatures("SELECT "+signatureCols+" FROM signatures WHERE file_id = ? ORDER BY line, col", fileID)
}

// SignaturesByHash returns every signature whose normalized text hashes to hash.
func (s *Store) SignaturesByHash(hash string) ([]*Signature, error) {
	return s.querySignatures("SELECT "+signatureCols+" FROM signatures WHERE hash = ? ORDER BY id", hash)
}

// AllSignatures returns every signature in the catalog.
func (s *Store) AllSignatures() ([]*Signature, error) {
	return s.querySignatures("SELECT " + signatureCols + " FROM signatures ORDER BY id")
}

// TermFilter selects signatures by their terms. Empty slices match anything.
type TermFilter struct {
	Identifier   string
	Accesses     []string // term access is one of these
	Operators    []string // term operator is one of these
	NotOperators []string // term operator is none of these
}

// SignaturesMatchingTerm returns signatures with at least one term that
// satisfies f.
func (s *Store) SignaturesMatchingTerm(f TermFilter) ([]*Signature, error) {
	where := []string{"identifier = ?"}
	args := []any{f.Identifier}
	if len(f.Accesses) > 0 {
		where = append(where, "access IN ("+placeholderList(len(f.Accesses))+")")
		args = append(args, stringsToArgs(f.Accesses)...)
	}
	if len(f.Operators) > 0 {
		where = append(where, "operator IN ("+placeholderList(len(f.Operators))+")")
		args = append(args, stringsToArgs(f.Operators)...)
	}
	if len(f.NotOperators) > 0 {
		where = append(where, "operator NOT IN ("+placeholderList(len(f.NotOperators))+")")
		args = append(args, stringsToArgs(f.NotOperators)...)
	}
	q := "SELECT " + signatureCols + " FROM signatures WHERE id IN (SELECT signature_id FROM terms WHERE " +
		strings.Join(where, " AND ") + ") ORDER BY id"
	sigs, err := s.querySignatures(q, args...)
	if err != nil {
		return nil, fmt.Errorf("signatures matching term: %w", err)
	}
	return sigs, nil
}

// SignaturesUsingComponent returns signatures with at least one term whose
// identifier equals component. An empty access matches any access.
func (s *Store) SignaturesUsingComponent(component, access string) ([]*Signature, error) {
	f := TermFilter{Identifier: component}
	if access != "" {
		f.Accesses = []string{access}
	}
	return s.SignaturesMatchingTerm(f)
}

// SignaturesExcluding returns signatures with a "not" term on component.
func (s *Store) SignaturesExcluding(component string) ([]*Signature, error) {
	return s.SignaturesMatchingTerm(TermFilter{Identifier: component, Operators: []string{"not"}})
}

// SignaturesWithoutTables returns valid signatures that never scan entity tables.
func (s *Store) SignaturesWithoutTables() ([]*Signature, error) {
	return s.querySignatures("SELECT " + signatureCols + " FROM signatures WHERE valid = TRUE AND needs_tables = FALSE ORDER BY id")
}

// --- Terms ---

// InsertTerm inserts a term and returns its ID.
func (s *Store) InsertTerm(t *Term) (int64, error) {
	id, err := insertTermTx(s.db, t)
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func insertTermTx(db execer, t *Term) (int64, error) {
	var sourceID any
	if t.SourceIdentifier != "" {
		sourceID = t.SourceIdentifier
	}
	id, err := insertID(db,
		`INSERT INTO terms (signature_id, ordinal, identifier, source, source_identifier, operator, access, offset)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SignatureID, t.Ordinal, t.Identifier, t.Source, sourceID, t.Operator, t.Access, t.Offset,
	)
	if err != nil {
		return 0, fmt.Errorf("insert term: %w", err)
	}
	return id, nil
}

// TermsBySignature returns the terms of a signature in ordinal order.
func (s *Store) TermsBySignature(sigID int64) ([]*Term, error) {
	rows, err := s.db.Query(
		`SELECT id, signature_id, ordinal, identifier, source, source_identifier, operator, access, offset
		 FROM terms WHERE signature_id = ? ORDER BY ordinal`, sigID)
	if err != nil {
		return nil, fmt.Errorf("terms by signature: %w", err)
	}
	defer rows.Close()
	var terms []*Term
	for rows.Next() {
		t := &Term{}
		var sourceID sql.NullString
		var offset sql.NullInt64
		if err := rows.Scan(&t.ID, &t.SignatureID, &t.Ordinal, &t.Identifier, &t.Source,
			&sourceID, &t.Operator, &t.Access, &offset); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		t.SourceIdentifier = sourceID.String
		t.Offset = int(offset.Int64)
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ComponentUsage is a per-component count of terms across the catalog.
type ComponentUsage struct {
	Identifier string
	Readers    int
	Writers    int
	Excluders  int
}

// ComponentUsages aggregates term access per component identifier.
// Access "inout" counts as both a reader and a writer.
func (s *Store) ComponentUsages() ([]*ComponentUsage, error) {
	rows, err := s.db.Query(`
		SELECT identifier,
		  SUM(CASE WHEN operator != 'not' AND access IN ('in', 'inout') THEN 1 ELSE 0 END),
		  SUM(CASE WHEN operator != 'not' AND access IN ('out', 'inout') THEN 1 ELSE 0 END),
		  SUM(CASE WHEN operator = 'not' THEN 1 ELSE 0 END)
		FROM terms
		WHERE source != 'empty'
		GROUP BY identifier
		ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("component usages: %w", err)
	}
	defer rows.Close()
	var out []*ComponentUsage
	for rows.Next() {
		u := &ComponentUsage{}
		if err := rows.Scan(&u.Identifier, &u.Readers, &u.Writers, &u.Excluders); err != nil {
			return nil, fmt.Errorf("scan component usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Diagnostics ---

// InsertDiagnostic inserts a diagnostic and returns its ID.
func (s *Store) InsertDiagnostic(d *Diagnostic) (int64, error) {
	id, err := insertDiagnosticTx(s.db, d)
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

func insertDiagnosticTx(db execer, d *Diagnostic) (int64, error) {
	id, err := insertID(db,
		`INSERT INTO diagnostics (signature_id, file_id, owner, kind, severity, rule, message, detail, offset, arg, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SignatureID, d.FileID, d.Owner, d.Kind, d.Severity, d.Rule, d.Message, d.Detail, d.Offset, d.Arg, d.Line, d.Col,
	)
	if err != nil {
		return 0, fmt.Errorf("insert diagnostic: %w", err)
	}
	return id, nil
}

// Diagnostics returns diagnostics of the given kind, or all when kind is "".
func (s *Store) Diagnostics(kind string) ([]*Diagnostic, error) {
	q := `SELECT id, signature_id, file_id, owner, kind, severity, rule, message, detail, offset, arg, line, col
	      FROM diagnostics`
	var args []any
	if kind != "" {
		q += " WHERE kind = ?"
		args = append(args, kind)
	}
	q += " ORDER BY file_id, line, col, id"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	defer rows.Close()
	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var sigID, fileID, offset, arg, line, col sql.NullInt64
		var owner, rule, detail sql.NullString
		if err := rows.Scan(&d.ID, &sigID, &fileID, &owner, &d.Kind, &d.Severity, &rule,
			&d.Message, &detail, &offset, &arg, &line, &col); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		if sigID.Valid {
			d.SignatureID = &sigID.Int64
		}
		if fileID.Valid {
			d.FileID = &fileID.Int64
		}
		d.Owner = owner.String
		d.Rule = rule.String
		d.Detail = detail.String
		d.Offset = int(offset.Int64)
		d.Arg = int(arg.Int64)
		d.Line = int(line.Int64)
		d.Col = int(col.Int64)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDiagnosticsByKind removes every diagnostic of the given kind.
func (s *Store) DeleteDiagnosticsByKind(kind string) error {
	if _, err := s.db.Exec("DELETE FROM diagnostics WHERE kind = ?", kind); err != nil {
		return fmt.Errorf("delete diagnostics: %w", err)
	}
	return nil
}
