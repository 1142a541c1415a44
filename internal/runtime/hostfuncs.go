package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/ecsig/internal/store"
)

// makeParseSignatureFn creates the "parse_signature" host function.
//
// parse_signature(sig) → list of term maps; raises on an invalid signature.
func makeParseSignatureFn(c Compiler) *object.Builtin {
	return object.NewBuiltin("parse_signature", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_signature", 1, len(args))
		}
		sig, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_signature: %v", err)
		}
		terms, err := c.Compile(sig)
		if err != nil {
			return object.Errorf("parse_signature: %v", err)
		}
		return termsToList(terms)
	})
}

// count_terms(sig) → int
func makeCountTermsFn(c Compiler) *object.Builtin {
	return object.NewBuiltin("count_terms", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("count_terms", 1, len(args))
		}
		sig, err := toString(args[0])
		if err != nil {
			return object.Errorf("count_terms: %v", err)
		}
		return object.NewInt(int64(c.CountTerms(sig)))
	})
}

// needs_tables(sig) → bool; raises on an invalid signature.
func makeNeedsTablesFn(c Compiler) *object.Builtin {
	return object.NewBuiltin("needs_tables", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("needs_tables", 1, len(args))
		}
		sig, err := toString(args[0])
		if err != nil {
			return object.Errorf("needs_tables: %v", err)
		}
		terms, err := c.Compile(sig)
		if err != nil {
			return object.Errorf("needs_tables: %v", err)
		}
		for _, t := range terms {
			if t.MatchesTables {
				return object.NewBool(true)
			}
		}
		return object.NewBool(false)
	})
}

// makeSignaturesUsingFn creates the "signatures_using" host function.
//
// signatures_using(identifier) → list of {id, owner, kind, text}
func makeSignaturesUsingFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("signatures_using", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("signatures_using", 1, len(args))
		}
		ident, err := toString(args[0])
		if err != nil {
			return object.Errorf("signatures_using: %v", err)
		}
		sigs, err := s.SignaturesUsingComponent(ident, "")
		if err != nil {
			return object.Errorf("signatures_using: %v", err)
		}
		items := make([]object.Object, 0, len(sigs))
		for _, sig := range sigs {
			items = append(items, object.NewMap(map[string]object.Object{
				"id":    object.NewInt(sig.ID),
				"owner": object.NewString(sig.Owner),
				"kind":  object.NewString(sig.Kind),
				"text":  object.NewString(sig.Text),
			}))
		}
		return object.NewList(items)
	})
}

func termsToList(terms []TermInfo) *object.List {
	items := make([]object.Object, 0, len(terms))
	for _, t := range terms {
		items = append(items, object.NewMap(map[string]object.Object{
			"identifier":        object.NewString(t.Identifier),
			"source":            object.NewString(t.Source),
			"source_identifier": object.NewString(t.SourceIdentifier),
			"operator":          object.NewString(t.Operator),
			"access":            object.NewString(t.Access),
			"index":             object.NewInt(int64(t.Index)),
			"offset":            object.NewInt(int64(t.Offset)),
			"matches_tables":    object.NewBool(t.MatchesTables),
		}))
	}
	return object.NewList(items)
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, slog.String("source", "rule"))
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, slog.String("source", "rule"))
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, slog.String("source", "rule"))
}
