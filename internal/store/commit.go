package store

import "fmt"

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// IDs, and signature references within the batch are rewritten using the
// fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Signatures (depend on file_id only, which is already real)
//  2. Terms (depend on signature_id)
//  3. Diagnostics (depend on signature_id, file_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)

	// 1. Signatures
	for _, sig := range batch.Signatures {
		realID, err := insertSignatureTx(tx, &sig)
		if err != nil {
			return fmt.Errorf("commit batch: signature %q: %w", sig.Owner, err)
		}
		fakeToReal[sig.ID] = realID
	}

	// 2. Terms
	for _, t := range batch.Terms {
		if t.SignatureID < 0 {
			realID, ok := fakeToReal[t.SignatureID]
			if !ok {
				return fmt.Errorf("commit batch: term %q: unknown signature %d", t.Identifier, t.SignatureID)
			}
			t.SignatureID = realID
		}
		if _, err := insertTermTx(tx, &t); err != nil {
			return fmt.Errorf("commit batch: term %q: %w", t.Identifier, err)
		}
	}

	// 3. Diagnostics
	for _, d := range batch.Diagnostics {
		if d.SignatureID != nil && *d.SignatureID < 0 {
			realID, ok := fakeToReal[*d.SignatureID]
			if !ok {
				return fmt.Errorf("commit batch: diagnostic: unknown signature %d", *d.SignatureID)
			}
			d.SignatureID = &realID
		}
		if _, err := insertDiagnosticTx(tx, &d); err != nil {
			return fmt.Errorf("commit batch: diagnostic: %w", err)
		}
	}

	return tx.Commit()
}
