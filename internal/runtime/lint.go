package runtime

import (
	"context"
	"sync"

	"github.com/risor-io/risor/object"
)

// LintInput is one signature handed to a rule script.
type LintInput struct {
	Owner     string
	Signature string
	Terms     []TermInfo
}

// Finding is a problem reported by a rule script.
type Finding struct {
	Rule      string
	Message   string
	TermIndex int // -1 when the finding is about the whole signature
}

// Lint runs the rule script at scriptPath against input and returns what
// the script reported. Scripts see the globals signature, owner and terms,
// and call report(message) or report(message, term_index).
func (r *Runtime) Lint(ctx context.Context, scriptPath string, input LintInput) ([]Finding, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.lint(ctx, RuleName(scriptPath), src, scriptPath, input)
}

// LintSource is Lint for inline rule source.
func (r *Runtime) LintSource(ctx context.Context, rule, source string, input LintInput) ([]Finding, error) {
	return r.lint(ctx, rule, source, "<inline>", input)
}

func (r *Runtime) lint(ctx context.Context, rule, source, label string, input LintInput) ([]Finding, error) {
	var (
		mu       sync.Mutex
		findings []Finding
	)
	report := object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("report: expected 1 or 2 arguments, got %d", len(args))
		}
		msg, err := toString(args[0])
		if err != nil {
			return object.Errorf("report: message: %v", err)
		}
		f := Finding{Rule: rule, Message: msg, TermIndex: -1}
		if len(args) == 2 {
			idx, err := toInt64(args[1])
			if err != nil {
				return object.Errorf("report: term index: %v", err)
			}
			f.TermIndex = int(idx)
		}
		mu.Lock()
		findings = append(findings, f)
		mu.Unlock()
		return object.Nil
	})

	err := r.eval(ctx, source, label, map[string]any{
		"signature": input.Signature,
		"owner":     input.Owner,
		"terms":     termsToList(input.Terms),
		"report":    report,
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}
