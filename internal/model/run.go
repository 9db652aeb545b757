package model

import "time"

// SiteStatus is the terminal status of one site within a run.
type SiteStatus string

const (
	StatusBaseline  SiteStatus = "baseline_established"
	StatusUnchanged SiteStatus = "unchanged"
	StatusChanged   SiteStatus = "changed"
	StatusFailed    SiteStatus = "failed"
)

// AllSiteStatuses returns all defined site statuses.
func AllSiteStatuses() []SiteStatus {
	return []SiteStatus{
		StatusBaseline,
		StatusUnchanged,
		StatusChanged,
		StatusFailed,
	}
}

// Stage identifies the pipeline stage a site has reached.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageDiffing    Stage = "diffing"
	StagePersisting Stage = "persisting"
	StageNotifying  Stage = "notifying"
)

// RunOutcome is the per-site result of one pipeline run.
//
// Status is always terminal. Stage is the last stage entered; for a
// failed site it names where processing stopped. Err is non-empty for
// failed sites and for changed sites whose notification delivery
// failed (the change itself stands regardless).
type RunOutcome struct {
	SiteID   string        `json:"site_id"`
	Status   SiteStatus    `json:"status"`
	Stage    Stage         `json:"stage"`
	Err      string        `json:"error,omitempty"`
	Diff     *DiffResult   `json:"diff,omitempty"`
	Summary  string        `json:"summary,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the site ended in the failed status.
func (o RunOutcome) Failed() bool {
	return o.Status == StatusFailed
}
