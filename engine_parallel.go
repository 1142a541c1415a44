package ecsig

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jward/ecsig/internal/store"
)

// workItem holds everything an extraction worker needs.
type workItem struct {
	path    string
	lang    string
	fileID  int64
	hash    string
	content []byte
	batch   *store.BatchedStore
}

// IndexFilesParallel indexes files using a three-phase parallel pipeline:
//
//	Phase A (serial):   Hash check, delete old data, prepare file records.
//	Phase B (parallel): Parse, extract and compile via worker pool.
//	Phase C (serial):   Commit batches to SQLite, then record file hashes.
func (e *Engine) IndexFilesParallel(ctx context.Context, paths []string) error {
	// ---- Phase A: Serial file preparation ----
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(ctx, path)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", path, err)
		}
		if skip {
			continue
		}
		item.batch = store.NewBatchedStore(e.store)
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil
	}

	// ---- Phase B: Parallel extraction ----
	numWorkers := min(runtime.NumCPU(), len(items))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	type result struct {
		item workItem
		err  error
	}
	resultCh := make(chan result, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each item writes only to its own BatchedStore.
			for item := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{item: item, err: err}
					continue
				}
				err := e.extractFile(ctx, item, item.batch)
				resultCh <- result{item: item, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial commit ----
	var errs []error
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("extract %s: %w", res.item.path, res.err))
			continue
		}
		if err := e.store.CommitBatch(res.item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
			continue
		}
		if err := e.store.SetFileHash(res.item.fileID, res.item.hash); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
