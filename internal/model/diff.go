package model

// LineOp tags a single line of a computed diff.
type LineOp string

const (
	LineAdded     LineOp = "added"
	LineRemoved   LineOp = "removed"
	LineUnchanged LineOp = "unchanged"
)

// LineChange is one line-level change record.
type LineChange struct {
	Op   LineOp `json:"op"`
	Text string `json:"text"`
}

// DiffResult is the line-level difference between the previous and
// current snapshot of a site. Computed per run, never persisted.
type DiffResult struct {
	SiteID      string       `json:"site_id"`
	Lines       []LineChange `json:"lines"`
	Added       int          `json:"added"`
	Removed     int          `json:"removed"`
	Significant bool         `json:"significant"`
}
