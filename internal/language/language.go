// Package language provides the text predicate that gates
// summarization.
package language

import (
	"regexp"
	"unicode"
)

// Predicate reports whether text is in a language the summarizer
// should handle. The pipeline takes one as a dependency so detection
// can be swapped without touching orchestration.
type Predicate func(text string) bool

var urlPattern = regexp.MustCompile(`https?://\S+`)

// English strips URLs, looks at letters only, and calls the text
// English when more than half of them are ASCII. Crude, but cheap and
// stable enough for gating.
func English(text string) bool {
	text = urlPattern.ReplaceAllString(text, " ")

	var letters, ascii int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 128 {
			ascii++
		}
	}

	if letters == 0 {
		return false
	}
	return float64(ascii)/float64(letters) > 0.5
}
