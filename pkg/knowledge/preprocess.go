package knowledge

import (
	"regexp"
	"strings"
)

// Arabic presentation and extension blocks are preserved alongside \w so that
// Arabic questions survive punctuation stripping intact.
var (
	stripRe    = regexp.MustCompile(`[^\w\s\x{0600}-\x{06FF}\x{0750}-\x{077F}\x{08A0}-\x{08FF}\x{FB50}-\x{FDFF}\x{FE70}-\x{FEFF}]`)
	collapseRe = regexp.MustCompile(`\s+`)
)

// Preprocess normalizes a user message for matching: lowercase, punctuation
// stripped, whitespace collapsed.
func Preprocess(message string) string {
	s := strings.ToLower(message)
	s = stripRe.ReplaceAllString(s, "")
	s = collapseRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// tokens splits a preprocessed message into search tokens, dropping short
// words that would match everything.
func tokens(preprocessed string) []string {
	parts := strings.Fields(preprocessed)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) > 2 {
			out = append(out, p)
		}
	}
	return out
}
