package store

import "sync"

// BatchedStore buffers extraction inserts in memory using fake (negative)
// IDs. It implements DataStore so the indexer can write to it without
// knowing whether it's hitting SQLite or an in-memory buffer.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// SignaturesByFile reads through to the underlying Store.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Signatures  []Signature
	Terms       []Term
	Diagnostics []Diagnostic

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertSignature(sig *Signature) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	sig.ID = fakeID
	b.Signatures = append(b.Signatures, *sig)
	return fakeID, nil
}

func (b *BatchedStore) InsertTerm(t *Term) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	t.ID = fakeID
	b.Terms = append(b.Terms, *t)
	return fakeID, nil
}

func (b *BatchedStore) InsertDiagnostic(d *Diagnostic) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Diagnostics = append(b.Diagnostics, *d)
	return fakeID, nil
}

// SignaturesByFile returns signatures for a file, merging any buffered (not
// yet committed) signatures with those already in the database.
func (b *BatchedStore) SignaturesByFile(fileID int64) ([]*Signature, error) {
	dbSigs, err := b.store.SignaturesByFile(fileID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Signatures {
		if b.Signatures[i].FileID != nil && *b.Signatures[i].FileID == fileID {
			dbSigs = append(dbSigs, &b.Signatures[i])
		}
	}
	return dbSigs, nil
}

// Len returns the number of buffered rows.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Signatures) + len(b.Terms) + len(b.Diagnostics)
}
