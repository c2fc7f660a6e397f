package webui

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SanitizePrompt normalizes a user prompt before it is submitted to a
// backend: Unicode NFC normalization, runs of whitespace collapsed to single
// spaces, leading and trailing whitespace trimmed. Applying it twice yields
// the same result as applying it once.
func SanitizePrompt(prompt string) string {
	prompt = norm.NFC.String(prompt)
	return strings.Join(strings.Fields(prompt), " ")
}
