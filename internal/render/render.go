// Package render drives a headless browser so sites that assemble
// their content with JavaScript can be fetched like static pages.
package render

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pagewatch/internal/config"
)

// Browser renders pages in a shared headless Chrome instance. The
// browser is launched lazily on first use, so configurations without
// rendered sites never pay the startup cost.
type Browser struct {
	cfg config.RenderConfig

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowser creates an unstarted Browser.
func NewBrowser(cfg config.RenderConfig) *Browser {
	return &Browser{cfg: cfg}
}

// Render navigates to url with the given User-Agent, waits for the
// load event, and returns the rendered document HTML.
func (b *Browser) Render(ctx context.Context, url, userAgent string) (string, error) {
	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", eris.Wrap(err, "render: create page")
	}
	defer page.Close()

	if userAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})
		if err != nil {
			return "", eris.Wrap(err, "render: set user agent")
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return "", eris.Wrapf(err, "render: navigate %s", url)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		// The DOM is often usable even when the load event never
		// fires; fall through and let Eval decide.
		zap.L().Warn("render: wait load", zap.String("url", url), zap.Error(err))
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", eris.Wrapf(err, "render: read dom %s", url)
	}

	return res.Value.Str(), nil
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "render: launch browser")
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "render: connect browser")
	}

	b.launcher = l
	b.browser = browser
	zap.L().Info("render: browser started")

	return browser, nil
}

// Close shuts the browser down. Safe to call when it never started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		_ = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}

	return nil
}
