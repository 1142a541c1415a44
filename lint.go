package ecsig

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jward/ecsig/internal/runtime"
	"github.com/jward/ecsig/internal/store"
)

// Lint runs every lint rule against every valid signature in the catalog.
// Findings replace the diagnostics of the previous run and are committed in
// one transaction. Returns the number of findings.
func (e *Engine) Lint(ctx context.Context) (int, error) {
	scripts, err := e.runtime.Scripts()
	if err != nil {
		return 0, fmt.Errorf("lint: list rules: %w", err)
	}
	sigs, err := e.store.AllSignatures()
	if err != nil {
		return 0, fmt.Errorf("lint: %w", err)
	}

	batch := store.NewBatchedStore(e.store)
	for _, sig := range sigs {
		if !sig.Valid {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		terms, err := e.store.TermsBySignature(sig.ID)
		if err != nil {
			return 0, fmt.Errorf("lint: %w", err)
		}
		infos, err := storedTermInfos(terms)
		if err != nil {
			return 0, fmt.Errorf("lint %s: %w", sig.Owner, err)
		}
		input := runtime.LintInput{
			Owner:     sig.Owner,
			Signature: sig.Text,
			Terms:     infos,
		}
		for _, script := range scripts {
			findings, err := e.runtime.Lint(ctx, script, input)
			if err != nil {
				return 0, fmt.Errorf("lint %s on %s: %w", script, sig.Owner, err)
			}
			for _, f := range findings {
				if _, err := batch.InsertDiagnostic(lintDiagnostic(sig, terms, f)); err != nil {
					return 0, err
				}
			}
		}
	}

	if err := e.store.DeleteDiagnosticsByKind(store.DiagnosticLint); err != nil {
		return 0, fmt.Errorf("lint: %w", err)
	}
	if err := e.store.CommitBatch(batch); err != nil {
		return 0, fmt.Errorf("lint: %w", err)
	}
	if err := e.store.SetMetadata("rules_hash", e.rulesHash()); err != nil {
		return 0, fmt.Errorf("lint: %w", err)
	}

	e.logger.Debug("lint finished",
		slog.Int("rules", len(scripts)),
		slog.Int("signatures", len(sigs)),
		slog.Int("findings", len(batch.Diagnostics)))
	return len(batch.Diagnostics), nil
}

func lintDiagnostic(sig *store.Signature, terms []*store.Term, f runtime.Finding) *store.Diagnostic {
	id := sig.ID
	d := &store.Diagnostic{
		SignatureID: &id,
		FileID:      sig.FileID,
		Owner:       sig.Owner,
		Kind:        store.DiagnosticLint,
		Severity:    "warning",
		Rule:        f.Rule,
		Message:     f.Message,
		Arg:         1,
		Line:        sig.Line,
		Col:         sig.Col,
	}
	if f.TermIndex >= 0 && f.TermIndex < len(terms) {
		off := terms[f.TermIndex].Offset
		if off >= 0 && off <= len(sig.Text) {
			d.Offset = off
			d.Arg = argumentIndex(sig.Text, off)
		}
	}
	return d
}

// storedTermInfos rebuilds script-facing terms from catalog rows.
func storedTermInfos(terms []*store.Term) ([]runtime.TermInfo, error) {
	infos := make([]runtime.TermInfo, len(terms))
	for i, t := range terms {
		var src ElementSource
		if err := src.UnmarshalText([]byte(t.Source)); err != nil {
			return nil, fmt.Errorf("term %d: %w", t.Ordinal, err)
		}
		infos[i] = runtime.TermInfo{
			Identifier:       t.Identifier,
			Source:           t.Source,
			SourceIdentifier: t.SourceIdentifier,
			Operator:         t.Operator,
			Access:           t.Access,
			Index:            t.Ordinal,
			Offset:           t.Offset,
			MatchesTables:    src.MatchesTables(),
		}
	}
	return infos, nil
}
