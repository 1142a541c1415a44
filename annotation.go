package ecsig

import (
	"fmt"
	"strings"
)

// DefaultAnnotationMaxLength is the longest word accepted inside [...].
const DefaultAnnotationMaxLength = 16

var annotationAccess = map[string]Access{
	"in":    In,
	"out":   Out,
	"inout": InOut,
}

// syntaxFault locates a violation found by a sub-parser.
type syntaxFault struct {
	reason string
	at     int
}

// parseAnnotation scans a bracketed annotation list starting just past
// the opening '['. Words are separated by ','; the last recognized
// access word wins and unknown words are ignored. It returns the index
// just past the closing ']'.
func parseAnnotation(sig string, i, maxWord int, access Access) (Access, int, *syntaxFault) {
	i = skipSpace(sig, i)
	wordStart := i
	for ; i < len(sig); i++ {
		ch := sig[i]
		if ch == ',' || ch == ']' {
			if a, ok := annotationAccess[strings.TrimSpace(sig[wordStart:i])]; ok {
				access = a
			}
			if ch == ']' {
				return access, i + 1, nil
			}
			i = skipSpace(sig, i+1) - 1
			wordStart = i + 1
			continue
		}
		if maxWord > 0 && i-wordStart >= maxWord {
			return access, i, &syntaxFault{
				reason: fmt.Sprintf("annotation word longer than %d characters", maxWord),
				at:     i,
			}
		}
	}
	return access, i, &syntaxFault{reason: "unterminated annotation, missing ']'", at: len(sig)}
}
