package store

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ComputeSignatureHash hashes a signature's text with whitespace removed,
// so reformatting a signature does not change its hash. Whitespace is
// never significant to the compiler.
func ComputeSignatureHash(text string) string {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\v', '\f', '\r':
			return -1
		}
		return r
	}, text)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(compact)))
}

// ComputeContentHash hashes raw file content for change detection.
func ComputeContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}
