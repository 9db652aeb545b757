package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/extract"
	"github.com/sells-group/pagewatch/internal/fetch"
	"github.com/sells-group/pagewatch/internal/journal"
	"github.com/sells-group/pagewatch/internal/language"
	"github.com/sells-group/pagewatch/internal/notify"
	"github.com/sells-group/pagewatch/internal/pipeline"
	"github.com/sells-group/pagewatch/internal/render"
	"github.com/sells-group/pagewatch/internal/snapshot"
	"github.com/sells-group/pagewatch/internal/summarize"
	"github.com/sells-group/pagewatch/pkg/anthropic"
)

// pipelineEnv holds the wired collaborators needed by the run, check,
// and serve commands.
type pipelineEnv struct {
	Pipeline   *pipeline.Pipeline
	Fetcher    fetch.Fetcher
	Snapshots  snapshot.Store
	Identities *fetch.IdentityState
	Journal    journal.Store

	browser *render.Browser // nil unless rendering is wired
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.browser != nil {
		if err := pe.browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if pe.Journal != nil {
		_ = pe.Journal.Close()
	}
}

// initPipeline wires the fetcher, snapshot store, notifier, journal,
// and optional summarizer into a Pipeline. Selector validation happens
// here so a bad config fails at startup, not mid-run. Callers should
// defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if len(cfg.Sites) == 0 {
		return nil, eris.New("no sites configured")
	}
	for _, s := range cfg.Sites {
		if err := extract.ValidateSelector(s.Selector); err != nil {
			return nil, eris.Wrapf(err, "site %s", s.Name)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "create data dir")
	}

	snapshots, err := snapshot.NewFileStore(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		return nil, err
	}

	identities, err := fetch.LoadIdentityState(filepath.Join(cfg.DataDir, "identities.yaml"))
	if err != nil {
		return nil, err
	}

	// Start a browser only when some site actually needs one.
	var browser *render.Browser
	var renderer fetch.Renderer
	if needsRender(cfg) {
		if cfg.Render.Enabled {
			browser = render.NewBrowser(cfg.Render)
			renderer = browser
			zap.L().Info("headless rendering enabled")
		} else {
			zap.L().Warn("some sites request rendering but render.enabled is false; those sites will fail")
		}
	}

	fetcher := fetch.NewHTTPFetcher(cfg.Fetch, renderer)

	var summarizer summarize.Summarizer
	if cfg.Summary.Enabled {
		if cfg.Summary.APIKey == "" {
			zap.L().Warn("summary enabled but no api key set, summaries disabled")
		} else {
			summarizer = summarize.New(anthropic.NewClient(cfg.Summary.APIKey), cfg.Summary)
			zap.L().Info("change summaries enabled", zap.String("model", cfg.Summary.Model))
		}
	}

	notifier := notify.FromConfig(cfg.Notify)

	jrnl, err := journal.Open(ctx, cfg.Journal, cfg.DataDir)
	if err != nil {
		if browser != nil {
			_ = browser.Close()
		}
		return nil, err
	}

	p := pipeline.New(cfg, fetcher, snapshots, summarizer, notifier, identities, jrnl, language.English)

	return &pipelineEnv{
		Pipeline:   p,
		Fetcher:    fetcher,
		Snapshots:  snapshots,
		Identities: identities,
		Journal:    jrnl,
		browser:    browser,
	}, nil
}

// needsRender reports whether any configured site has the render flag.
func needsRender(c *config.Config) bool {
	for _, s := range c.Sites {
		if s.Render {
			return true
		}
	}
	return false
}
