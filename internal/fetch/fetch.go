// Package fetch retrieves raw page content for watched sites, rotating
// through client identities until one succeeds.
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/motemen/go-loghttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/sells-group/pagewatch/internal/config"
)

// Result holds the content of a successful fetch along with the
// identity that produced it. The caller records the identity so the
// next fetch for the same site tries it first; site configuration is
// never mutated.
type Result struct {
	Body     string
	Identity string
}

// Fetcher retrieves raw page content for a site.
type Fetcher interface {
	Fetch(ctx context.Context, site config.Site, lastIdentity string) (*Result, error)
}

// Renderer produces fully rendered HTML for a URL. Implementations
// live in internal/render; failures are opaque to the fetcher and
// count as a failed attempt for the identity in use.
type Renderer interface {
	Render(ctx context.Context, url, userAgent string) (string, error)
}

// HTTPFetcher fetches pages over HTTP, handing rendered sites to an
// optional Renderer. The identity rotation applies to both paths.
type HTTPFetcher struct {
	client   *resty.Client
	renderer Renderer
	cfg      config.FetchConfig
	limiter  *rate.Limiter
}

// NewHTTPFetcher creates a fetcher from config. renderer may be nil,
// in which case sites with the render flag fail immediately.
func NewHTTPFetcher(cfg config.FetchConfig, renderer Renderer) *HTTPFetcher {
	client := resty.New()
	client.SetTimeout(time.Duration(cfg.TimeoutSecs) * time.Second)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if cfg.AcceptLanguage != "" {
		client.SetHeader("Accept-Language", cfg.AcceptLanguage)
	}
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	base := client.GetClient().Transport
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(&loghttp.Transport{
		Transport: base,
		LogRequest: func(req *http.Request) {
			zap.L().Debug("fetch: request",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
			)
		},
		LogResponse: func(resp *http.Response) {
			zap.L().Debug("fetch: response",
				zap.Int("status", resp.StatusCode),
				zap.String("url", resp.Request.URL.String()),
			)
		},
	})

	f := &HTTPFetcher{
		client:   client,
		renderer: renderer,
		cfg:      cfg,
	}

	if cfg.RateLimitRPS > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return f.limiter.Wait(req.Context())
		})
	}

	return f
}

// Fetch tries each identity candidate in order and returns the first
// successful response. The candidate order is the site's
// last-successful identity followed by the configured pool; no
// candidate is tried twice and no attempt is retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, site config.Site, lastIdentity string) (*Result, error) {
	if site.Render && f.renderer == nil {
		return nil, &FetchError{
			SiteID: site.Name,
			Last:   eris.New("fetch: site requires rendering but renderer is disabled"),
		}
	}

	candidates := Candidates(lastIdentity, f.cfg.UserAgents)
	log := zap.L().With(zap.String("site", site.Name))

	var lastErr error
	attempts := 0
	for _, identity := range candidates {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts++
		body, err := f.attempt(ctx, site, identity)
		if err != nil {
			log.Debug("fetch: identity failed, trying next",
				zap.String("identity", identity),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		return &Result{Body: body, Identity: identity}, nil
	}

	return nil, &FetchError{SiteID: site.Name, Attempts: attempts, Last: lastErr}
}

func (f *HTTPFetcher) attempt(ctx context.Context, site config.Site, identity string) (string, error) {
	if site.Render {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		html, err := f.renderer.Render(ctx, site.URL, identity)
		if err != nil {
			return "", eris.Wrap(err, "fetch: render")
		}
		return html, nil
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", identity).
		Get(site.URL)
	if err != nil {
		return "", eris.Wrap(err, "fetch: request")
	}
	if !resp.IsSuccess() {
		return "", eris.Errorf("fetch: status %d", resp.StatusCode())
	}

	return f.decode(resp)
}

// decode converts the response body to UTF-8 using the Content-Type
// header and in-document hints, capping it at the configured size.
func (f *HTTPFetcher) decode(resp *resty.Response) (string, error) {
	body := resp.Body()
	if f.cfg.MaxBodyBytes > 0 && int64(len(body)) > f.cfg.MaxBodyBytes {
		body = body[:f.cfg.MaxBodyBytes]
	}

	r, err := charset.NewReader(bytes.NewReader(body), resp.Header().Get("Content-Type"))
	if err != nil {
		return "", eris.Wrap(err, "fetch: detect charset")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "fetch: decode body")
	}

	return string(decoded), nil
}
