// Package pipeline orchestrates the per-site change detection flow:
// fetch, extract, diff, persist, notify. Sites are isolated; one
// site's failure never affects another's outcome.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/diff"
	"github.com/sells-group/pagewatch/internal/extract"
	"github.com/sells-group/pagewatch/internal/fetch"
	"github.com/sells-group/pagewatch/internal/journal"
	"github.com/sells-group/pagewatch/internal/language"
	"github.com/sells-group/pagewatch/internal/model"
	"github.com/sells-group/pagewatch/internal/notify"
	"github.com/sells-group/pagewatch/internal/snapshot"
	"github.com/sells-group/pagewatch/internal/summarize"
)

// Pipeline runs the change detection flow for each configured site.
type Pipeline struct {
	cfg        *config.Config
	fetcher    fetch.Fetcher
	snapshots  snapshot.Store
	summarizer summarize.Summarizer
	notifier   notify.Notifier
	identities *fetch.IdentityState
	journal    journal.Store
	predicate  language.Predicate
}

// New creates a Pipeline. summarizer may be nil when summaries are
// disabled; identities may be nil when identity state is not tracked.
func New(
	cfg *config.Config,
	fetcher fetch.Fetcher,
	snapshots snapshot.Store,
	summarizer summarize.Summarizer,
	notifier notify.Notifier,
	identities *fetch.IdentityState,
	jrnl journal.Store,
	predicate language.Predicate,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		fetcher:    fetcher,
		snapshots:  snapshots,
		summarizer: summarizer,
		notifier:   notifier,
		identities: identities,
		journal:    jrnl,
		predicate:  predicate,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID    string             `json:"run_id"`
	Outcomes []model.RunOutcome `json:"outcomes"`
}

// Run processes the given sites with bounded concurrency and returns
// one outcome per site, in input order. Journal writes are best
// effort; a broken journal never fails a run.
func (p *Pipeline) Run(ctx context.Context, sites []config.Site) *Result {
	run, err := p.journal.CreateRun(ctx)
	if err != nil {
		zap.L().Warn("pipeline: journal create run failed", zap.Error(err))
		run = &journal.Run{ID: uuid.New().String(), StartedAt: time.Now().UTC()}
	}

	concurrency := p.cfg.Pipeline.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run",
		zap.Int("sites", len(sites)),
		zap.Int("concurrency", concurrency),
	)

	outcomes := make([]model.RunOutcome, len(sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, site := range sites {
		g.Go(func() error {
			outcomes[i] = p.processSite(gctx, site)
			if jerr := p.journal.RecordResult(ctx, run.ID, outcomes[i]); jerr != nil {
				log.Warn("pipeline: journal record failed",
					zap.String("site", site.Name),
					zap.Error(jerr),
				)
			}
			return nil // site isolation: individual failures never abort the run
		})
	}
	_ = g.Wait()

	if err := p.journal.FinishRun(ctx, run.ID, outcomes); err != nil {
		log.Warn("pipeline: journal finish failed", zap.Error(err))
	}

	if p.identities != nil {
		if err := p.identities.Save(); err != nil {
			log.Warn("pipeline: save identity state failed", zap.Error(err))
		}
	}

	changed, failed := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case model.StatusChanged:
			changed++
		case model.StatusFailed:
			failed++
		}
	}
	log.Info("pipeline: run complete",
		zap.Int("sites", len(outcomes)),
		zap.Int("changed", changed),
		zap.Int("failed", failed),
	)

	return &Result{RunID: run.ID, Outcomes: outcomes}
}

// processSite walks one site through the full flow. Every error path
// produces a failed outcome naming the stage that broke; no error
// escapes to the caller.
func (p *Pipeline) processSite(ctx context.Context, site config.Site) model.RunOutcome {
	start := time.Now()
	log := zap.L().With(zap.String("site", site.Name), zap.String("url", site.URL))

	outcome := model.RunOutcome{SiteID: site.Name, Stage: model.StageFetching}
	fail := func(err error) model.RunOutcome {
		outcome.Status = model.StatusFailed
		outcome.Err = err.Error()
		outcome.Duration = time.Since(start)
		log.Error("pipeline: site failed",
			zap.String("stage", string(outcome.Stage)),
			zap.Error(err),
		)
		return outcome
	}

	// A run canceled before this site started never touches the network.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	var last string
	if p.identities != nil {
		last = p.identities.Last(site.Name)
	}
	res, err := p.fetcher.Fetch(ctx, site, last)
	if err != nil {
		return fail(err)
	}
	if p.identities != nil {
		p.identities.Record(site.Name, res.Identity)
	}

	outcome.Stage = model.StageExtracting
	text, err := extract.Extract(res.Body, site.Selector, site.Name)
	if err != nil {
		return fail(err)
	}

	captured := time.Now().UTC()

	outcome.Stage = model.StageDiffing
	prev, err := p.snapshots.Get(site.Name)
	if err != nil {
		return fail(err)
	}

	// First observation establishes the baseline without notifying.
	if prev == nil {
		outcome.Stage = model.StagePersisting
		if err := p.snapshots.Put(site.Name, text, captured); err != nil {
			return fail(err)
		}
		outcome.Status = model.StatusBaseline
		outcome.Duration = time.Since(start)
		log.Info("pipeline: baseline established")
		return outcome
	}

	d := diff.Diff(site.Name, prev.Text, text)
	outcome.Diff = &d

	if !d.Significant {
		// Refresh the stored snapshot even when nothing changed.
		outcome.Stage = model.StagePersisting
		if err := p.snapshots.Put(site.Name, text, captured); err != nil {
			return fail(err)
		}
		outcome.Status = model.StatusUnchanged
		outcome.Duration = time.Since(start)
		log.Debug("pipeline: no significant change")
		return outcome
	}

	// Persist before notifying: a crash after this point must not
	// re-notify the same change on the next run.
	outcome.Stage = model.StagePersisting
	if err := p.snapshots.Put(site.Name, text, captured); err != nil {
		return fail(err)
	}

	if p.summarizer != nil && p.cfg.Summary.Enabled && p.predicate != nil && p.predicate(text) {
		summary, serr := p.summarizer.Summarize(ctx, site.Name, text)
		if serr != nil {
			log.Warn("pipeline: summary failed", zap.Error(serr))
		} else {
			outcome.Summary = summary
		}
	}

	outcome.Stage = model.StageNotifying
	outcome.Status = model.StatusChanged
	err = p.notifier.Notify(ctx, notify.Notification{
		SiteID:     site.Name,
		URL:        site.URL,
		Diff:       d,
		Summary:    outcome.Summary,
		CapturedAt: captured,
	})
	if err != nil {
		// The change is already persisted; surface the delivery error
		// without flipping the status.
		outcome.Err = err.Error()
		log.Error("pipeline: notification failed", zap.Error(err))
	}

	outcome.Duration = time.Since(start)
	log.Info("pipeline: change detected",
		zap.Int("added", d.Added),
		zap.Int("removed", d.Removed),
		zap.Bool("summarized", outcome.Summary != ""),
	)
	return outcome
}
