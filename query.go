package ecsig

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jward/ecsig/internal/store"
)

// QueryBuilder provides a read-only query API over the signature catalog.
type QueryBuilder struct {
	store *store.Store
}

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByOwner     SortField = "owner"
	SortByFile      SortField = "file"
	SortByTermCount SortField = "term_count"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// SignatureFilter specifies which signatures to include. All fields are optional.
type SignatureFilter struct {
	Owner      *string // exact match
	Kind       *string // declaring call, exact match
	Component  *string // has a term on this component
	Valid      *bool   // compiled without error
	PathPrefix *string // declared in files under this path
}

// SignatureResult extends Signature with the path of its file.
type SignatureResult struct {
	store.Signature
	FilePath string // empty for signatures not read from a file
}

// normalizePathPrefix ensures a path prefix ends with "/" for correct LIKE matching.
func normalizePathPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

// escapeLike escapes SQL LIKE special characters (% and _) with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// signatureOrderBy builds the ORDER BY clause for a Sort. Ties break on id.
func signatureOrderBy(s Sort) string {
	dir := "ASC"
	if s.Order == Desc {
		dir = "DESC"
	}
	var cols []string
	switch s.Field {
	case SortByFile:
		cols = []string{"f.path", "s.line"}
	case SortByTermCount:
		cols = []string{"s.term_count"}
	default:
		cols = []string{"s.owner"}
	}
	for i, c := range cols {
		cols[i] = c + " " + dir
	}
	return strings.Join(append(cols, "s.id"), ", ")
}

// Signatures is the primary listing/filtering endpoint.
func (q *QueryBuilder) Signatures(filter SignatureFilter, sort Sort, page Pagination) (*PagedResult[SignatureResult], error) {
	page = page.normalize()

	var where []string
	var args []any
	if filter.Owner != nil {
		where = append(where, "s.owner = ?")
		args = append(args, *filter.Owner)
	}
	if filter.Kind != nil {
		where = append(where, "s.kind = ?")
		args = append(args, *filter.Kind)
	}
	if filter.Component != nil {
		where = append(where, "s.id IN (SELECT signature_id FROM terms WHERE identifier = ?)")
		args = append(args, *filter.Component)
	}
	if filter.Valid != nil {
		where = append(where, "s.valid = ?")
		args = append(args, *filter.Valid)
	}
	if filter.PathPrefix != nil {
		where = append(where, `f.path LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(normalizePathPrefix(*filter.PathPrefix))+"%")
	}

	from := " FROM signatures s LEFT JOIN files f ON s.file_id = f.id"
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.store.DB().QueryRow("SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("signatures: count: %w", err)
	}

	query := `SELECT s.id, s.file_id, s.owner, s.kind, s.text, s.hash, s.term_count,
	                 s.needs_tables, s.valid, s.line, s.col, f.path` + from +
		" ORDER BY " + signatureOrderBy(sort) +
		" LIMIT ? OFFSET ?"
	rows, err := q.store.DB().Query(query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("signatures: %w", err)
	}
	defer rows.Close()

	items := []SignatureResult{}
	for rows.Next() {
		var r SignatureResult
		var fileID, line, col sql.NullInt64
		var path sql.NullString
		if err := rows.Scan(&r.ID, &fileID, &r.Owner, &r.Kind, &r.Text, &r.Hash, &r.TermCount,
			&r.NeedsTables, &r.Valid, &line, &col, &path); err != nil {
			return nil, fmt.Errorf("signatures: scan: %w", err)
		}
		if fileID.Valid {
			r.FileID = &fileID.Int64
		}
		r.Line = int(line.Int64)
		r.Col = int(col.Int64)
		r.FilePath = path.String
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signatures: rows: %w", err)
	}
	return &PagedResult[SignatureResult]{Items: items, TotalCount: total}, nil
}

// SignaturesByOwner returns all signatures declared by owner.
func (q *QueryBuilder) SignaturesByOwner(owner string) ([]*Signature, error) {
	return q.store.SignaturesByOwner(owner)
}

// Readers returns signatures that read component: a term on it with access
// in or inout that is not negated.
func (q *QueryBuilder) Readers(component string) ([]*Signature, error) {
	return q.store.SignaturesMatchingTerm(store.TermFilter{
		Identifier:   component,
		Accesses:     []string{In.String(), InOut.String()},
		NotOperators: []string{OperNot.String()},
	})
}

// Writers returns signatures that write component: a term on it with access
// out or inout that is not negated.
func (q *QueryBuilder) Writers(component string) ([]*Signature, error) {
	return q.store.SignaturesMatchingTerm(store.TermFilter{
		Identifier:   component,
		Accesses:     []string{Out.String(), InOut.String()},
		NotOperators: []string{OperNot.String()},
	})
}

// Excluders returns signatures that match only entities without component.
func (q *QueryBuilder) Excluders(component string) ([]*Signature, error) {
	return q.store.SignaturesExcluding(component)
}

// Diagnostics returns diagnostics of the given kind, or all when kind is "".
func (q *QueryBuilder) Diagnostics(kind string) ([]*Diagnostic, error) {
	return q.store.Diagnostics(kind)
}

// TableFreeSignatures returns valid signatures that never iterate entity
// tables (only system, entity, empty or cascade sources).
func (q *QueryBuilder) TableFreeSignatures() ([]*Signature, error) {
	return q.store.SignaturesWithoutTables()
}

// Equivalent returns the other signatures whose text matches sigID's once
// whitespace is ignored.
func (q *QueryBuilder) Equivalent(sigID int64) ([]*Signature, error) {
	sig, err := q.store.SignatureByID(sigID)
	if err != nil || sig == nil {
		return nil, err
	}
	same, err := q.store.SignaturesByHash(sig.Hash)
	if err != nil {
		return nil, err
	}
	var out []*Signature
	for _, s := range same {
		if s.ID != sigID {
			out = append(out, s)
		}
	}
	return out, nil
}

// SignatureDetail is a signature with its terms and diagnostics.
type SignatureDetail struct {
	Signature   *Signature
	FilePath    string
	Terms       []*StoredTerm
	Diagnostics []*Diagnostic
}

// SignatureDetail returns a signature with its terms and diagnostics, or
// nil if sigID does not exist.
func (q *QueryBuilder) SignatureDetail(sigID int64) (*SignatureDetail, error) {
	sig, err := q.store.SignatureByID(sigID)
	if err != nil {
		return nil, fmt.Errorf("signature detail: %w", err)
	}
	if sig == nil {
		return nil, nil
	}
	d := &SignatureDetail{Signature: sig}
	if sig.FileID != nil {
		f, err := q.store.FileByID(*sig.FileID)
		if err != nil {
			return nil, fmt.Errorf("signature detail: %w", err)
		}
		if f != nil {
			d.FilePath = f.Path
		}
	}
	if d.Terms, err = q.store.TermsBySignature(sigID); err != nil {
		return nil, fmt.Errorf("signature detail: %w", err)
	}
	diags, err := q.store.Diagnostics("")
	if err != nil {
		return nil, fmt.Errorf("signature detail: %w", err)
	}
	for _, diag := range diags {
		if diag.SignatureID != nil && *diag.SignatureID == sigID {
			d.Diagnostics = append(d.Diagnostics, diag)
		}
	}
	return d, nil
}

// KindCount is the number of signatures declared through one call.
type KindCount struct {
	Kind  string
	Count int
}

// Summary is a high-level overview of the catalog.
type Summary struct {
	Stats         *Stats
	Kinds         []KindCount
	TopComponents []*ComponentUsage
}

// Summary returns catalog counts and the topN most used components
// (by readers plus writers). topN <= 0 returns every component.
func (q *QueryBuilder) Summary(topN int) (*Summary, error) {
	st, err := q.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	summary := &Summary{Stats: st}

	rows, err := q.store.DB().Query("SELECT kind, COUNT(*) FROM signatures GROUP BY kind ORDER BY kind")
	if err != nil {
		return nil, fmt.Errorf("summary: kinds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, fmt.Errorf("summary: scan kind: %w", err)
		}
		summary.Kinds = append(summary.Kinds, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary: kind rows: %w", err)
	}

	usages, err := q.store.ComponentUsages()
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].Readers+usages[i].Writers > usages[j].Readers+usages[j].Writers
	})
	if topN > 0 && len(usages) > topN {
		usages = usages[:topN]
	}
	summary.TopComponents = usages
	return summary, nil
}
