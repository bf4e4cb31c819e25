// Package fingerprint derives stable content keys for generation inputs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// separator cannot occur in normalized input, so field boundaries stay
// unambiguous ("ab"+"c" never collides with "a"+"bc").
const separator = "\x1f"

// Compute returns the hex sha256 fingerprint of a generation request.
// The script is normalized (trimmed, lowercased, internal whitespace
// collapsed) before hashing, so inputs differing only in case or spacing
// map to the same key. The result is stable across process restarts.
func Compute(script, language, storyType, tone string) string {
	parts := []string{
		Normalize(script),
		strings.ToLower(strings.TrimSpace(language)),
		strings.ToLower(strings.TrimSpace(storyType)),
		strings.ToLower(strings.TrimSpace(tone)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases, trims, and collapses runs of whitespace to a
// single space.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return reWhitespace.ReplaceAllString(s, " ")
}
