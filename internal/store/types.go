package store

import "time"

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

// Signature is one signature string found in a source file (or compiled
// directly when FileID is nil). Kind names the call it came from.
type Signature struct {
	ID          int64
	FileID      *int64
	Owner       string
	Kind        string
	Text        string
	Hash        string
	TermCount   int
	NeedsTables bool
	Valid       bool
	Line        int
	Col         int
}

// Term is a compiled term of a signature. Source, Operator and Access hold
// the textual names of the ecsig enums.
type Term struct {
	ID               int64
	SignatureID      int64
	Ordinal          int
	Identifier       string
	Source           string
	SourceIdentifier string
	Operator         string
	Access           string
	Offset           int
}

// Diagnostic kinds.
const (
	DiagnosticParse = "parse"
	DiagnosticLint  = "lint"
)

type Diagnostic struct {
	ID          int64
	SignatureID *int64
	FileID      *int64
	Owner       string
	Kind        string
	Severity    string
	Rule        string
	Message     string
	Detail      string
	Offset      int
	Arg         int
	Line        int
	Col         int
}

type Stats struct {
	Files             int
	Signatures        int
	InvalidSignatures int
	Terms             int
	Components        int
	Diagnostics       int
}
