package ecsig

import "github.com/jward/ecsig/internal/store"

// Public type aliases for internal store types used in the Engine and
// QueryBuilder API. External consumers use these names; no conversion is
// needed.

type Store = store.Store
type File = store.File
type Signature = store.Signature
type StoredTerm = store.Term
type Diagnostic = store.Diagnostic
type Stats = store.Stats
type ComponentUsage = store.ComponentUsage

// Diagnostic kinds.
const (
	DiagnosticParse = store.DiagnosticParse
	DiagnosticLint  = store.DiagnosticLint
)
