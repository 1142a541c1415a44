package ecsig

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every *ParseError matches exactly one of these with errors.Is.
var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrZeroNotAlone      = errors.New("0 can only appear by itself")
)

// defaultOwner labels diagnostics for signatures parsed without WithOwner.
const defaultOwner = "ecsig.Parse"

// ParseError describes the first structural violation found in a signature.
type ParseError struct {
	Kind      error  // one of the Err* kinds above
	Reason    string // short description of the violation
	Signature string
	Owner     string // system or query that declared the signature, may be empty
	Offset    int    // byte offset of the fault, may equal len(Signature)
	Arg       int    // 1-based argument index of the fault
}

func newParseError(kind error, reason, sig, owner string, offset int) *ParseError {
	if offset < 0 {
		offset = 0
	}
	if offset > len(sig) {
		offset = len(sig)
	}
	return &ParseError{
		Kind:      kind,
		Reason:    reason,
		Signature: sig,
		Owner:     owner,
		Offset:    offset,
		Arg:       argumentIndex(sig, offset),
	}
}

// argumentIndex is 1 plus the number of commas strictly before offset.
func argumentIndex(sig string, offset int) int {
	return strings.Count(sig[:offset], ",") + 1
}

func (e *ParseError) owner() string {
	if e.Owner == "" {
		return defaultOwner
	}
	return e.Owner
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ecsig: %s at argument #%d: %v: %s", e.owner(), e.Arg, e.Kind, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Kind }

// Diagnostic renders the multi-line caret message:
//
//	Move at argument #2. Error: "invalid expression: ..."
//	Position, !
//	~~~~~~~~~~^
func (e *ParseError) Diagnostic() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at argument #%d. Error: \"%v: %s\"\n", e.owner(), e.Arg, e.Kind, e.Reason)
	b.WriteString(e.Signature)
	b.WriteByte('\n')
	b.WriteString(e.Caret())
	b.WriteByte('\n')
	return b.String()
}

// Caret returns the pointer line: '~' up to the fault column, '^' at it.
func (e *ParseError) Caret() string {
	return strings.Repeat("~", e.Offset) + "^"
}
