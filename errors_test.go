package ecsig

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseError_Diagnostic(t *testing.T) {
	t.Parallel()
	err := NewParser(WithOwner("Move")).Parse("Position, !", func(Term) error { return nil })

	var pe *ParseError
	require.True(t, errors.As(err, &pe))

	want := "Move at argument #2. Error: \"invalid expression: operator '!' must be followed by a component\"\n" +
		"Position, !\n" +
		"~~~~~~~~~~^\n"
	assert.Equal(t, want, pe.Diagnostic())
}

func TestParseError_DefaultOwner(t *testing.T) {
	t.Parallel()
	err := Parse("Player.", func(Term) error { return nil })

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Empty(t, pe.Owner)
	assert.True(t, strings.HasPrefix(pe.Diagnostic(), "ecsig.Parse at argument #1."))
	assert.Equal(t, "ecsig: ecsig.Parse at argument #1: invalid expression: missing component after 'Player.'", pe.Error())
}

func TestParseError_CaretAtEndOfSignature(t *testing.T) {
	t.Parallel()
	err := Parse("[in Position", func(Term) error { return nil })

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, len("[in Position"), pe.Offset)
	assert.Equal(t, strings.Repeat("~", 12)+"^", pe.Caret())
}

func TestParseError_LongSignature(t *testing.T) {
	t.Parallel()
	// Diagnostics are not bounded by a fixed buffer.
	sig := strings.Repeat("Component, ", 100) + "!"
	err := Parse(sig, func(Term) error { return nil })

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 101, pe.Arg)
	assert.Len(t, pe.Caret(), len(sig))
	assert.Contains(t, pe.Diagnostic(), sig)
}

func TestArgumentIndex(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, argumentIndex("A, B", 0))
	assert.Equal(t, 1, argumentIndex("A, B", 1))
	assert.Equal(t, 2, argumentIndex("A, B", 2))
	// Pipes do not advance the argument index.
	assert.Equal(t, 1, argumentIndex("A|B", 2))
}
