package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the signature catalog.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  hash            TEXT,
  line_count      INTEGER DEFAULT 0,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS signatures (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER REFERENCES files(id),
  owner           TEXT NOT NULL,
  kind            TEXT NOT NULL,
  text            TEXT NOT NULL,
  hash            TEXT NOT NULL,
  term_count      INTEGER DEFAULT 0,
  needs_tables    BOOLEAN DEFAULT FALSE,
  valid           BOOLEAN DEFAULT TRUE,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS terms (
  id                INTEGER PRIMARY KEY,
  signature_id      INTEGER NOT NULL REFERENCES signatures(id),
  ordinal           INTEGER NOT NULL,
  identifier        TEXT NOT NULL,
  source            TEXT NOT NULL,
  source_identifier TEXT,
  operator          TEXT NOT NULL,
  access            TEXT NOT NULL,
  offset            INTEGER
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  signature_id    INTEGER REFERENCES signatures(id),
  file_id         INTEGER REFERENCES files(id),
  owner           TEXT,
  kind            TEXT NOT NULL,
  severity        TEXT NOT NULL,
  rule            TEXT,
  message         TEXT NOT NULL,
  detail          TEXT,
  offset          INTEGER,
  arg             INTEGER,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_signatures_file ON signatures(file_id);
CREATE INDEX IF NOT EXISTS idx_signatures_owner ON signatures(owner);
CREATE INDEX IF NOT EXISTS idx_signatures_hash ON signatures(hash);
CREATE INDEX IF NOT EXISTS idx_terms_signature ON terms(signature_id);
CREATE INDEX IF NOT EXISTS idx_terms_identifier ON terms(identifier);
CREATE INDEX IF NOT EXISTS idx_diagnostics_signature ON diagnostics(signature_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_file ON diagnostics(file_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_kind ON diagnostics(kind);
`

// DeleteFileData transactionally removes a file and everything extracted
// from it. Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM signatures WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("query signatures: %w", err)
	}
	var sigIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan signature id: %w", err)
		}
		sigIDs = append(sigIDs, id)
	}
	rows.Close()

	if len(sigIDs) > 0 {
		placeholders := placeholderList(len(sigIDs))
		args := int64sToArgs(sigIDs)
		for _, q := range []string{
			"DELETE FROM diagnostics WHERE signature_id IN (" + placeholders + ")",
			"DELETE FROM terms WHERE signature_id IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete signature children: %w", err)
			}
		}
	}

	for _, q := range []string{
		"DELETE FROM diagnostics WHERE file_id = ?",
		"DELETE FROM signatures WHERE file_id = ?",
		"DELETE FROM files WHERE id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}

	return tx.Commit()
}

// GetMetadata returns the value stored under key, or "" if unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata upserts a metadata value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// Stats counts rows in the catalog tables.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{}
	for _, c := range []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM files", &st.Files},
		{"SELECT COUNT(*) FROM signatures", &st.Signatures},
		{"SELECT COUNT(*) FROM signatures WHERE valid = FALSE", &st.InvalidSignatures},
		{"SELECT COUNT(*) FROM terms", &st.Terms},
		{"SELECT COUNT(DISTINCT identifier) FROM terms", &st.Components},
		{"SELECT COUNT(*) FROM diagnostics", &st.Diagnostics},
	} {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}
