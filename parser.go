package ecsig

import (
	"errors"
	"log/slog"
)

// Consumer receives each term of a signature in order. A non-nil error
// aborts the parse and is returned to the caller of Parse unchanged.
type Consumer func(Term) error

// Parser compiles signatures into terms. A Parser is immutable after
// construction and safe for concurrent use.
type Parser struct {
	owner         string
	annotationMax int
	logger        *slog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithOwner names the system or query that declared the signature.
// The name is used in diagnostics.
func WithOwner(owner string) ParserOption {
	return func(p *Parser) {
		p.owner = owner
	}
}

// WithAnnotationMaxLength sets the longest word accepted inside an
// annotation. Zero or negative disables the check.
func WithAnnotationMaxLength(n int) ParserOption {
	return func(p *Parser) {
		p.annotationMax = n
	}
}

// WithLogger sets the logger used to report rejected signatures at debug level.
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = l
	}
}

// NewParser creates a Parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{annotationMax: DefaultAnnotationMaxLength}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// ForOwner returns a copy of p that labels diagnostics with owner.
func (p *Parser) ForOwner(owner string) *Parser {
	c := *p
	c.owner = owner
	return &c
}

// Parse compiles signature with default options, calling fn once per term.
func Parse(signature string, fn Consumer) error {
	return defaultParser.Parse(signature, fn)
}

// Parse compiles signature, calling fn once per term. Structural errors
// are returned as *ParseError; no term is delivered past the first one.
func (p *Parser) Parse(signature string, fn Consumer) error {
	err := p.parse(signature, fn)
	if p.logger != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			p.logger.Debug("signature rejected",
				slog.String("owner", pe.owner()),
				slog.String("signature", signature),
				slog.Int("arg", pe.Arg),
				slog.Int("offset", pe.Offset),
				slog.String("reason", pe.Reason))
		}
	}
	return err
}

func (p *Parser) fail(kind error, reason, sig string, offset int) *ParseError {
	return newParseError(kind, reason, sig, p.owner, offset)
}

func (p *Parser) parse(sig string, fn Consumer) error {
	if len(sig) == 0 {
		return nil
	}

	// buf holds the current term with whitespace removed; pos maps each
	// buffered byte back to its offset in sig.
	buf := make([]byte, 0, len(sig))
	pos := make([]int, 0, len(sig))

	var (
		index     int
		start     = -1
		openedOr  bool
		qualified bool
		access    = InOut
	)

	for i := 0; ; i++ {
		i = skipSpace(sig, i)
		end := i >= len(sig)

		var ch byte
		if !end {
			ch = sig[i]
		}

		switch {
		case ch == '[' && !end:
			if len(buf) != 0 {
				return p.fail(ErrInvalidSignature, "annotation must appear at the start of a term", sig, i)
			}
			if start < 0 {
				start = i
			}
			a, next, fault := parseAnnotation(sig, i+1, p.annotationMax, access)
			if fault != nil {
				return p.fail(ErrInvalidSignature, fault.reason, sig, fault.at)
			}
			access = a
			i = next - 1

		case end || ch == ',' || ch == '|':
			if len(buf) == 0 {
				return p.fail(ErrInvalidSignature, "empty term", sig, i)
			}

			t := Term{
				Source:     FromSelf,
				Operator:   OperAnd,
				Access:     access,
				Identifier: string(buf),
				Index:      index,
				Offset:     start,
			}
			if openedOr || ch == '|' {
				t.Operator = OperOr
			}

			if qualified {
				q, fault := parseQualifier(t.Identifier)
				if fault != nil {
					return p.fail(ErrInvalidExpression, fault.reason, sig, pos[fault.at])
				}
				if q.hasOper {
					if q.oper == OperNot && t.Operator == OperOr {
						return p.fail(ErrInvalidExpression, "cannot use NOT in an OR expression", sig, pos[0])
					}
					t.Operator = q.oper
				}
				t.Source = q.source
				t.SourceIdentifier = q.sourceID
				t.Identifier = q.ident
			}

			if t.Identifier == "0" {
				switch {
				case qualified:
					return p.fail(ErrZeroNotAlone, "0 cannot carry an operator or source", sig, pos[0])
				case index > 0:
					return p.fail(ErrZeroNotAlone, "0 must be the only term", sig, pos[0])
				case !end:
					return p.fail(ErrZeroNotAlone, "0 must be the only term", sig, i)
				}
				t.Source = FromEmpty
			}

			if t.Operator == OperOr && t.Source == FromEmpty {
				return p.fail(ErrInvalidExpression, "cannot use OR with an empty source", sig, pos[0])
			}

			if err := fn(t); err != nil {
				return err
			}
			if end {
				return nil
			}

			openedOr = ch == '|'
			qualified = false
			access = InOut
			start = -1
			buf = buf[:0]
			pos = pos[:0]
			index++

		default:
			if start < 0 {
				start = i
			}
			buf = append(buf, ch)
			pos = append(pos, i)
			if ch == '.' || ch == '!' || ch == '?' {
				qualified = true
			}
		}
	}
}
