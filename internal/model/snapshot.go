package model

import "time"

// Snapshot is the last-known normalized text extracted from a site.
// Exactly one snapshot exists per site at any time; it reflects the
// content observed at the end of the most recent run in which
// extraction succeeded, and is never rolled back.
type Snapshot struct {
	SiteID     string    `json:"site_id"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}
