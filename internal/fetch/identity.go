package fetch

import (
	"fmt"

	"github.com/samber/lo"
)

// Candidates returns the ordered identity list for one fetch: the
// last-successful identity first (when set), then the configured pool
// in declared order, duplicates removed keeping the first occurrence.
func Candidates(last string, pool []string) []string {
	out := make([]string, 0, len(pool)+1)
	if last != "" {
		out = append(out, last)
	}
	out = append(out, pool...)
	return lo.Uniq(out)
}

// FetchError reports that every identity candidate was exhausted for a
// site without a successful response.
type FetchError struct {
	SiteID   string
	Attempts int
	Last     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: exhausted %d attempt(s): %v", e.SiteID, e.Attempts, e.Last)
}

func (e *FetchError) Unwrap() error { return e.Last }
