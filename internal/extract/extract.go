// Package extract evaluates structural selectors against fetched HTML
// and produces normalized text suitable for diffing.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ExtractError reports a selector that matched no nodes in an
// otherwise well-formed document.
type ExtractError struct {
	SiteID   string
	Selector string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: selector %q matched no nodes", e.SiteID, e.Selector)
}

var whitespace = regexp.MustCompile(`\s+`)

// Extract parses html, evaluates the CSS selector, and returns the
// matched nodes' visible text concatenated in document order.
// script, style, noscript and iframe subtrees are dropped first; only
// text a reader can see counts as content.
func Extract(html, selector, siteID string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", eris.Wrapf(err, "extract %s: parse document", siteID)
	}

	doc.Find("script, style, noscript, iframe").Remove()

	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", &ExtractError{SiteID: siteID, Selector: selector}
	}

	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})

	return Normalize(strings.Join(parts, " ")), nil
}

// Normalize applies NFC, collapses every whitespace run (newlines
// included) to a single space, and trims. Diffing stays insensitive to
// markup reflow and encoding form differences between fetches.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ValidateSelector reports whether a selector parses. Used at startup
// so a typo fails the run before any site is fetched; a valid selector
// that matches nothing is a runtime ExtractError instead.
func ValidateSelector(selector string) error {
	if _, err := cascadia.Compile(selector); err != nil {
		return eris.Wrapf(err, "extract: invalid selector %q", selector)
	}
	return nil
}
