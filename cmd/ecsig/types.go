package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jward/ecsig"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLITerm is a JSON-friendly compiled term.
type CLITerm struct {
	Index            int    `json:"index"`
	Identifier       string `json:"identifier"`
	Source           string `json:"source"`
	SourceIdentifier string `json:"source_identifier,omitempty"`
	Operator         string `json:"operator"`
	Access           string `json:"access"`
	Offset           int    `json:"offset"`
}

// CLIParseError is the structured form of a compile failure.
type CLIParseError struct {
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	Owner      string `json:"owner,omitempty"`
	Offset     int    `json:"offset"`
	Arg        int    `json:"arg"`
	Diagnostic string `json:"diagnostic"`
}

// CLICount is the result of the count command.
type CLICount struct {
	Signature string `json:"signature"`
	Terms     int    `json:"terms"`
}

// CLINeedsTables is the result of the needs-tables command.
type CLINeedsTables struct {
	Signature   string `json:"signature"`
	NeedsTables bool   `json:"needs_tables"`
}

// CLISignature is a JSON-friendly catalog signature.
type CLISignature struct {
	ID          int64  `json:"id"`
	Owner       string `json:"owner"`
	Kind        string `json:"kind"`
	Text        string `json:"text"`
	Valid       bool   `json:"valid"`
	NeedsTables bool   `json:"needs_tables"`
	TermCount   int    `json:"term_count"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line"`
	Col         int    `json:"col"`
}

// CLIDiagnostic is a JSON-friendly diagnostic.
type CLIDiagnostic struct {
	SignatureID *int64 `json:"signature_id,omitempty"`
	Owner       string `json:"owner"`
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	Rule        string `json:"rule,omitempty"`
	Message     string `json:"message"`
	Detail      string `json:"detail,omitempty"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line"`
	Col         int    `json:"col"`
	Arg         int    `json:"arg"`
	Offset      int    `json:"offset"`
}

// CLISignatureDetail is a signature with its terms and diagnostics.
type CLISignatureDetail struct {
	Signature   CLISignature    `json:"signature"`
	Terms       []CLITerm       `json:"terms"`
	Diagnostics []CLIDiagnostic `json:"diagnostics"`
}

// CLIStats is a JSON-friendly catalog row count.
type CLIStats struct {
	Files             int `json:"files"`
	Signatures        int `json:"signatures"`
	InvalidSignatures int `json:"invalid_signatures"`
	Terms             int `json:"terms"`
	Components        int `json:"components"`
	Diagnostics       int `json:"diagnostics"`
}

// CLIComponent is a JSON-friendly component usage count.
type CLIComponent struct {
	Identifier string `json:"identifier"`
	Readers    int    `json:"readers"`
	Writers    int    `json:"writers"`
	Excluders  int    `json:"excluders"`
}

// CLISummary is a JSON-friendly catalog summary.
type CLISummary struct {
	Stats         CLIStats       `json:"stats"`
	Kinds         map[string]int `json:"kinds"`
	TopComponents []CLIComponent `json:"top_components"`
}

func boolPtr(v bool) *bool { return &v }

// resolveFilePath converts a path argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

func termToCLI(t ecsig.Term) CLITerm {
	return CLITerm{
		Index:            t.Index,
		Identifier:       t.Identifier,
		Source:           t.Source.String(),
		SourceIdentifier: t.SourceIdentifier,
		Operator:         t.Operator.String(),
		Access:           t.Access.String(),
		Offset:           t.Offset,
	}
}

func storedTermToCLI(t *ecsig.StoredTerm) CLITerm {
	return CLITerm{
		Index:            t.Ordinal,
		Identifier:       t.Identifier,
		Source:           t.Source,
		SourceIdentifier: t.SourceIdentifier,
		Operator:         t.Operator,
		Access:           t.Access,
		Offset:           t.Offset,
	}
}

func parseErrorToCLI(pe *ecsig.ParseError) CLIParseError {
	return CLIParseError{
		Kind:       pe.Kind.Error(),
		Reason:     pe.Reason,
		Owner:      pe.Owner,
		Offset:     pe.Offset,
		Arg:        pe.Arg,
		Diagnostic: pe.Diagnostic(),
	}
}

func signatureToCLI(sig *ecsig.Signature, filePath string) CLISignature {
	return CLISignature{
		ID:          sig.ID,
		Owner:       sig.Owner,
		Kind:        sig.Kind,
		Text:        sig.Text,
		Valid:       sig.Valid,
		NeedsTables: sig.NeedsTables,
		TermCount:   sig.TermCount,
		File:        filePath,
		Line:        sig.Line,
		Col:         sig.Col,
	}
}

// filePaths resolves file IDs to paths, caching lookups.
type filePaths struct {
	store *ecsig.Store
	cache map[int64]string
}

func newFilePaths(s *ecsig.Store) *filePaths {
	return &filePaths{store: s, cache: make(map[int64]string)}
}

// lookup returns the path of fileID, or "" if it is nil or unknown.
func (p *filePaths) lookup(fileID *int64) string {
	if fileID == nil {
		return ""
	}
	if path, ok := p.cache[*fileID]; ok {
		return path
	}
	var path string
	if f, err := p.store.FileByID(*fileID); err != nil {
		logger.Warn("file lookup failed",
			slog.Int64("file_id", *fileID),
			slog.String("error", err.Error()))
	} else if f != nil {
		path = f.Path
	}
	p.cache[*fileID] = path
	return path
}

func signaturesToCLI(s *ecsig.Store, sigs []*ecsig.Signature) []CLISignature {
	paths := newFilePaths(s)
	out := make([]CLISignature, len(sigs))
	for i, sig := range sigs {
		out[i] = signatureToCLI(sig, paths.lookup(sig.FileID))
	}
	return out
}

func diagnosticsToCLI(s *ecsig.Store, diags []*ecsig.Diagnostic) []CLIDiagnostic {
	paths := newFilePaths(s)
	out := make([]CLIDiagnostic, len(diags))
	for i, d := range diags {
		out[i] = CLIDiagnostic{
			SignatureID: d.SignatureID,
			Owner:       d.Owner,
			Kind:        d.Kind,
			Severity:    d.Severity,
			Rule:        d.Rule,
			Message:     d.Message,
			Detail:      d.Detail,
			File:        paths.lookup(d.FileID),
			Line:        d.Line,
			Col:         d.Col,
			Arg:         d.Arg,
			Offset:      d.Offset,
		}
	}
	return out
}

func detailToCLI(s *ecsig.Store, d *ecsig.SignatureDetail) CLISignatureDetail {
	out := CLISignatureDetail{
		Signature:   signatureToCLI(d.Signature, d.FilePath),
		Terms:       make([]CLITerm, len(d.Terms)),
		Diagnostics: diagnosticsToCLI(s, d.Diagnostics),
	}
	for i, t := range d.Terms {
		out.Terms[i] = storedTermToCLI(t)
	}
	return out
}

func statsToCLI(st *ecsig.Stats) CLIStats {
	return CLIStats{
		Files:             st.Files,
		Signatures:        st.Signatures,
		InvalidSignatures: st.InvalidSignatures,
		Terms:             st.Terms,
		Components:        st.Components,
		Diagnostics:       st.Diagnostics,
	}
}

func summaryToCLI(s *ecsig.Summary) CLISummary {
	out := CLISummary{
		Stats:         statsToCLI(s.Stats),
		Kinds:         make(map[string]int, len(s.Kinds)),
		TopComponents: make([]CLIComponent, len(s.TopComponents)),
	}
	for _, k := range s.Kinds {
		out.Kinds[k.Kind] = k.Count
	}
	for i, c := range s.TopComponents {
		out.TopComponents[i] = CLIComponent{
			Identifier: c.Identifier,
			Readers:    c.Readers,
			Writers:    c.Writers,
			Excluders:  c.Excluders,
		}
	}
	return out
}
