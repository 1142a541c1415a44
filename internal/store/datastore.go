package store

// DataStore is the interface for extraction-phase writes. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel
// extraction) implement this interface.
type DataStore interface {
	InsertSignature(sig *Signature) (int64, error)
	InsertTerm(term *Term) (int64, error)
	InsertDiagnostic(d *Diagnostic) (int64, error)

	SignaturesByFile(fileID int64) ([]*Signature, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
