package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/model"
	"github.com/sells-group/pagewatch/internal/pipeline"
)

func configuredSites() []config.Site {
	return []config.Site{
		{Name: "alpha", URL: "https://alpha.example.com", Selector: "main"},
		{Name: "beta", URL: "https://beta.example.com", Selector: "#news"},
		{Name: "gamma", URL: "https://gamma.example.com", Selector: ".updates"},
	}
}

func TestResolveSitesDefaultsToAll(t *testing.T) {
	all := configuredSites()

	got, err := resolveSites(all, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(all, got); diff != "" {
		t.Errorf("resolveSites() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSitesPreservesArgumentOrder(t *testing.T) {
	all := configuredSites()

	got, err := resolveSites(all, []string{"gamma", "alpha"})
	require.NoError(t, err)

	want := []config.Site{all[2], all[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolveSites() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSitesUnknownName(t *testing.T) {
	_, err := resolveSites(configuredSites(), []string{"alpha", "delta"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown site "delta"`)
}

func TestFormatOutcomes(t *testing.T) {
	result := &pipeline.Result{
		RunID: "run-42",
		Outcomes: []model.RunOutcome{
			{
				SiteID:   "alpha",
				Status:   model.StatusChanged,
				Stage:    model.StageNotifying,
				Diff:     &model.DiffResult{Added: 2, Removed: 1, Significant: true},
				Duration: 1500 * time.Millisecond,
			},
			{
				SiteID:   "beta",
				Status:   model.StatusFailed,
				Stage:    model.StageFetching,
				Err:      "fetch beta: all identities exhausted",
				Duration: 30 * time.Second,
			},
		},
	}

	var buf bytes.Buffer
	formatOutcomes(&buf, result)

	out := buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "changed")
	assert.Contains(t, out, "+2/-1")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "fetching")
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "-", formatChange(nil))
	assert.Equal(t, "+3/-0", formatChange(&model.DiffResult{Added: 3}))
}

func TestTruncateErr(t *testing.T) {
	assert.Equal(t, "short", truncateErr("short"))

	long := truncateErr(string(bytes.Repeat([]byte("x"), 100)))
	assert.Len(t, long, 60)
	assert.Contains(t, long, "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0b944945", truncateID("0b944945-8d9f-4f78-a26c-6b54e3a0cd11"))
	assert.Equal(t, "short", truncateID("short"))
}
