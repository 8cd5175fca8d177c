// Package extract pulls the design and testbench sections out of a raw model
// response.
package extract

import (
	"strings"

	"svagent/internal/prompt"
)

// Blocks is the extracted artifact pair.
type Blocks struct {
	Design    string
	Testbench string
}

// Parse returns the two sections, or ok=false when either opening marker is
// missing. A missing closing marker extends the section to the end of text.
// Malformed input is a normal outcome, never an error.
func Parse(text string) (Blocks, bool) {
	design, ok := section(text, prompt.DesignOpen, prompt.DesignClose)
	if !ok {
		return Blocks{}, false
	}
	tb, ok := section(text, prompt.TBOpen, prompt.TBClose)
	if !ok {
		return Blocks{}, false
	}
	return Blocks{Design: design, Testbench: tb}, true
}

func section(text, open, close string) (string, bool) {
	_, after, found := strings.Cut(text, open)
	if !found {
		return "", false
	}
	body, _, _ := strings.Cut(after, close)
	return strings.TrimSpace(body), true
}
