// Package normalize canonicalizes raw search text into the lookup key used
// by every other component: ingest, query, filter, and history all run the
// same function, since divergence here breaks cache hits and index lookups.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/evgenyvinnik/wordsuggest/internal/svcerr"
)

// MaxLength is the default maximum accepted phrase length in code points.
const MaxLength = 80

// Normalize converts text to its canonical form: NFKC, lowercase, trimmed,
// internal whitespace collapsed to single spaces. It rejects text that is
// empty after normalization, exceeds maxLen code points, or contains
// control characters.
func Normalize(text string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxLength
	}

	composed := norm.NFKC.String(text)
	lowered := strings.ToLower(composed)
	trimmed := strings.TrimSpace(lowered)

	var b strings.Builder
	b.Grow(len(trimmed))
	lastWasSpace := false
	count := 0
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", svcerr.New(svcerr.CodeInvalidInput, "phrase contains control characters")
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
		} else {
			lastWasSpace = false
			b.WriteRune(r)
		}
		count++
		if count > maxLen {
			return "", svcerr.New(svcerr.CodeInvalidInput, "phrase exceeds maximum length")
		}
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", svcerr.New(svcerr.CodeInvalidInput, "phrase is empty after normalization")
	}
	if utf8RuneCount(result) > maxLen {
		return "", svcerr.New(svcerr.CodeInvalidInput, "phrase exceeds maximum length")
	}
	return result, nil
}

func utf8RuneCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
