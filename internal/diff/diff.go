// Package diff computes line-level differences between two snapshots
// of extracted text. Everything here is pure; no I/O.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sells-group/pagewatch/internal/model"
)

// Diff aligns the previous and current text and tags each line as
// added, removed or unchanged, preserving document order. The result
// is significant iff at least one line was added or removed.
//
// Both sides are segmented with Split, so the alignment granularity is
// identical for both inputs.
func Diff(siteID, prev, curr string) model.DiffResult {
	a := Split(prev)
	b := Split(curr)

	res := model.DiffResult{SiteID: siteID}
	m := difflib.NewMatcher(a, b)

	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, line := range b[op.J1:op.J2] {
				res.Lines = append(res.Lines, model.LineChange{Op: model.LineUnchanged, Text: line})
			}
		case 'd':
			for _, line := range a[op.I1:op.I2] {
				res.Lines = append(res.Lines, model.LineChange{Op: model.LineRemoved, Text: line})
				res.Removed++
			}
		case 'i':
			for _, line := range b[op.J1:op.J2] {
				res.Lines = append(res.Lines, model.LineChange{Op: model.LineAdded, Text: line})
				res.Added++
			}
		case 'r':
			for _, line := range a[op.I1:op.I2] {
				res.Lines = append(res.Lines, model.LineChange{Op: model.LineRemoved, Text: line})
				res.Removed++
			}
			for _, line := range b[op.J1:op.J2] {
				res.Lines = append(res.Lines, model.LineChange{Op: model.LineAdded, Text: line})
				res.Added++
			}
		}
	}

	res.Significant = res.Added > 0 || res.Removed > 0
	return res
}

// Split segments normalized text into sentence-level lines. Extraction
// collapses all whitespace, so a raw newline split would degenerate to
// one line per document; sentences are the unit a human reads a change
// in. ASCII terminators split only when followed by a space (keeps
// "3.5" together), fullwidth terminators split unconditionally since
// Japanese text carries no spaces.
func Split(text string) []string {
	if text == "" {
		return nil
	}

	var lines []string
	var b strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		b.WriteRune(r)

		split := false
		switch r {
		case '。', '！', '？':
			split = true
		case '.', '!', '?':
			split = i == len(runes)-1 || runes[i+1] == ' '
		}

		if split {
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
			b.Reset()
		}
	}

	if line := strings.TrimSpace(b.String()); line != "" {
		lines = append(lines, line)
	}

	return lines
}

// Format renders a diff as a classic +/- text block for mail bodies
// and terminal output. Unchanged lines keep a two-space prefix so the
// changed ones stand out.
func Format(res model.DiffResult) string {
	var b strings.Builder
	for _, line := range res.Lines {
		switch line.Op {
		case model.LineAdded:
			b.WriteString("+ ")
		case model.LineRemoved:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
