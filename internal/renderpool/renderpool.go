// Package renderpool owns one long-lived headless browser and a bounded
// pool of pre-created contexts, fans out fetches under a per-domain
// semaphore, and maintains a TTL HTML cache with conditional
// revalidation and on-failure snapshotting (SPEC_FULL.md §4.2). The
// context-pool-plus-semaphore shape follows the teacher's worker-pool
// idiom (market_fetcher.go's pageQueue/WaitGroup pattern, generalized
// here to acquire/release instead of fixed-size fan-out). The HTML cache
// entry is stored in Redis as-is; the meta record (HTML plus validators)
// follows the teacher's MarketOrderCache gzip-compressed-Redis pattern
// (cache.go).
package renderpool

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/redis/go-redis/v9"

	"github.com/dealwatch/scout/internal/apperr"
	"github.com/dealwatch/scout/internal/metrics"
	"github.com/dealwatch/scout/internal/politeness"
	"github.com/dealwatch/scout/internal/snapshot"
	"github.com/dealwatch/scout/pkg/logger"
)

const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// domainRPS paces requests to a single domain to roughly the original
// Fetcher's `random.uniform(0.5, 1.5)` per-domain delay between attempts
// (render_pool/fetcher.py), independent of the per-domain concurrency cap.
const domainRPS = 1.0

// navRetryConfig bounds how many times a single navigation is retried
// in-process before surfacing a transient apperr to the queue's own
// redelivery retry, mirroring the original Fetcher's `max_attempts` loop
// with exponential per-domain backoff (render_pool/fetcher.py:44-78).
var navRetryConfig = politeness.RetryConfig{MaxRetries: 2, InitialBackoff: 1 * time.Second, MaxBackoff: 8 * time.Second}

// Cookie mirrors the adapter-produced region cookie shape.
type Cookie struct {
	Name, Value, Domain, Path string
}

// FetchOptions configures one fetch call.
type FetchOptions struct {
	Cookies       []Cookie
	WaitSelector  string
	ExtraHeaders  map[string]string
	RegionHint    string
	TimeoutMS     int
	SleepMS       int
	SleepJitterMS int
	CacheTTL      *time.Duration
	ETag          string
	LastModified  string
}

type cacheMeta struct {
	HTML         string `json:"html"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Pool is the bounded browser-context pool plus per-domain fan-out.
type Pool struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctxPool     chan context.Context
	ctxCancels  []context.CancelFunc

	domainSemsMu sync.Mutex
	domainSems   map[string]chan struct{}
	perDomain    int

	redis   *redis.Client
	snap    *snapshot.Store
	log     *logger.Logger
	site    string
	robots  *politeness.RobotsChecker
	limiter *politeness.DomainLimiter
}

// New starts one headless browser and pre-creates poolSize tab contexts.
// Each tab gets its own isolated browser context (chromedp.WithNewBrowserContext)
// so a region cookie set for one pooled slot never leaks into another's
// navigations, mirroring the teacher's per-task Playwright browser.new_context()
// isolation (app/scraper/render.py).
func New(ctx context.Context, poolSize, perDomain int, rdb *redis.Client, snap *snapshot.Store, log *logger.Logger, site string) (*Pool, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserAgent(defaultUA),
			chromedp.Flag("headless", true),
			chromedp.Flag("no-sandbox", true),
		)...,
	)

	p := &Pool{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctxPool:     make(chan context.Context, poolSize),
		domainSems:  make(map[string]chan struct{}),
		perDomain:   perDomain,
		redis:       rdb,
		snap:        snap,
		log:         log,
		site:        site,
		robots:      politeness.NewRobotsChecker(defaultUA),
		limiter:     politeness.NewDomainLimiter(domainRPS, perDomain),
	}

	for i := 0; i < poolSize; i++ {
		tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithNewBrowserContext())
		if err := chromedp.Run(tabCtx); err != nil {
			p.Stop()
			return nil, fmt.Errorf("start browser context %d: %w", i, err)
		}
		p.ctxCancels = append(p.ctxCancels, cancel)
		p.ctxPool <- tabCtx
	}
	return p, nil
}

// Stop closes every pooled context and the underlying browser.
func (p *Pool) Stop() {
	for _, cancel := range p.ctxCancels {
		cancel()
	}
	p.allocCancel()
}

func (p *Pool) semFor(domain string) chan struct{} {
	p.domainSemsMu.Lock()
	defer p.domainSemsMu.Unlock()
	sem, ok := p.domainSems[domain]
	if !ok {
		sem = make(chan struct{}, p.perDomain)
		p.domainSems[domain] = sem
	}
	return sem
}

func (p *Pool) cacheKeys(pageURL string) (string, string) {
	base := "render:" + pageURL
	return base, base + ":meta"
}

// Fetch implements the render-pool algorithm of SPEC_FULL.md §4.2.
func (p *Pool) Fetch(ctx context.Context, pageURL string, opts FetchOptions) (html string, screenshot []byte, err error) {
	u, perr := url.Parse(pageURL)
	if perr != nil {
		return "", nil, apperr.Permanent("renderpool.Fetch", perr)
	}
	domain := u.Hostname()

	cacheKey, metaKey := p.cacheKeys(pageURL)

	if opts.CacheTTL == nil && p.redis != nil {
		d := time.Duration(30+rand.Intn(150)) * time.Second
		opts.CacheTTL = &d
	}

	var cachedHTML string
	var meta cacheMeta
	if p.redis != nil {
		if raw, gerr := p.redis.Get(ctx, cacheKey).Bytes(); gerr == nil {
			metrics.RenderCacheHitsTotal.Inc()
			return string(raw), nil, nil
		}
		metrics.RenderCacheMissesTotal.Inc()
		if raw, gerr := p.redis.Get(ctx, metaKey).Bytes(); gerr == nil {
			if jerr := decompress(raw, &meta); jerr == nil {
				cachedHTML = meta.HTML
				if opts.ETag == "" {
					opts.ETag = meta.ETag
				}
				if opts.LastModified == "" {
					opts.LastModified = meta.LastModified
				}
			}
		}
	}

	if p.robots != nil {
		if rerr := p.robots.Check(pageURL); rerr != nil {
			return "", nil, rerr
		}
	}

	if p.limiter != nil {
		if lerr := p.limiter.Wait(ctx, domain); lerr != nil {
			return "", nil, lerr
		}
	}

	sem := p.semFor(domain)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
	defer func() { <-sem }()

	var tabCtx context.Context
	select {
	case tabCtx = <-p.ctxPool:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
	defer func() {
		p.resetContext(tabCtx)
		p.ctxPool <- tabCtx
	}()

	timeout := time.Duration(opts.TimeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RenderLatency.WithLabelValues(p.site).Observe(time.Since(start).Seconds())
	}()

	html, screenshot, err = p.navigate(fetchCtx, tabCtx, pageURL, domain, opts, cachedHTML)
	if err != nil {
		metrics.RenderErrorsTotal.WithLabelValues(domain).Inc()
		return "", nil, err
	}
	return html, screenshot, nil
}

// navigate applies the region cookie and conditional-request headers,
// drives the page load, and captures the resulting document. It mirrors
// app/scraper/render.py's fetch(): ctx.add_cookies (plus the synthesized
// region cookie), ctx.set_extra_http_headers, then a status == 304
// short-circuit back to the cached HTML before falling through to a
// fresh capture.
func (p *Pool) navigate(fetchCtx, tabCtx context.Context, pageURL, domain string, opts FetchOptions, cachedHTML string) (string, []byte, error) {
	headers := buildHeaders(opts)
	cookies := buildCookieParams(opts, domain)

	var status int64
	chromedp.ListenTarget(fetchCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && resp.Response != nil {
				status = resp.Response.Status
			}
		}
	})

	setup := []chromedp.Action{network.Enable()}
	if len(cookies) > 0 {
		setup = append(setup, network.SetCookies(cookies))
	}
	if len(headers) > 0 {
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	setup = append(setup, chromedp.Navigate(pageURL))

	runCtx := fetchCtx
	if opts.WaitSelector != "" {
		waitCtx, waitCancel := context.WithTimeout(fetchCtx, time.Until(deadlineHalf(fetchCtx)))
		defer waitCancel()
		runCtx = waitCtx
		setup = append(setup, chromedp.WaitReady(opts.WaitSelector))
	}

	runErr := politeness.RetryWithBackoff(runCtx, navRetryConfig, func() error {
		return chromedp.Run(runCtx, setup...)
	})
	if runErr != nil {
		_, _ = p.captureOnFailure(tabCtx, pageURL, snapshot.PrefixErrors)
		if opts.WaitSelector != "" {
			return "", nil, apperr.Parse("renderpool.navigate", fmt.Errorf("wait_selector timeout: %w", runErr))
		}
		return "", nil, apperr.Parse("renderpool.navigate", runErr)
	}

	if shouldUseCachedHTML(status, cachedHTML) {
		if p.redis != nil && opts.CacheTTL != nil {
			cacheKey, metaKey := p.cacheKeys(pageURL)
			p.redis.Expire(fetchCtx, cacheKey, *opts.CacheTTL)
			p.redis.Expire(fetchCtx, metaKey, 24*time.Hour)
		}
		return cachedHTML, nil, nil
	}

	time.Sleep(politeness.Jitter(opts.SleepMS, opts.SleepJitterMS))

	var outHTML string
	var outPNG []byte
	if err := chromedp.Run(fetchCtx,
		chromedp.OuterHTML("html", &outHTML, chromedp.ByQuery),
		chromedp.FullScreenshot(&outPNG, 90),
	); err != nil {
		return "", nil, apperr.Parse("renderpool.capture", err)
	}

	if p.redis != nil && opts.CacheTTL != nil {
		cacheKey, metaKey := p.cacheKeys(pageURL)
		p.redis.Set(fetchCtx, cacheKey, outHTML, *opts.CacheTTL)
		meta := cacheMeta{HTML: outHTML, ETag: opts.ETag, LastModified: opts.LastModified}
		if b, err := compress(meta); err == nil {
			p.redis.Set(fetchCtx, metaKey, b, 24*time.Hour)
		}
	}

	return outHTML, outPNG, nil
}

func (p *Pool) captureOnFailure(tabCtx context.Context, pageURL string, prefix snapshot.Prefix) (string, error) {
	var html string
	var png []byte
	_ = chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	_ = chromedp.Run(tabCtx, chromedp.FullScreenshot(&png, 90))
	if p.snap != nil {
		if err := p.snap.Save(tabCtx, prefix, pageURL, []byte(html), png); err != nil && p.log != nil {
			p.log.Warn("snapshot save failed", "url", pageURL, "err", err)
		}
	}
	return html, nil
}

// resetContext clears cookies, extra headers and local/session storage
// between pooled-context reuses so a region cookie or conditional header
// set for one task's geoid never leaks into the next task's navigation,
// per app/scraper/render.py's _reset_context.
func (p *Pool) resetContext(tabCtx context.Context) {
	_ = chromedp.Run(tabCtx,
		network.ClearBrowserCookies(),
		network.SetExtraHTTPHeaders(network.Headers{}),
		chromedp.Evaluate(`try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}`, nil),
	)
}

// buildHeaders composes the extra headers plus conditional-request
// validators for one navigation, mirroring render.py's
// `headers = dict(extra_headers or {})` + If-None-Match/If-Modified-Since.
func buildHeaders(opts FetchOptions) network.Headers {
	headers := network.Headers{}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.ETag != "" {
		headers["If-None-Match"] = opts.ETag
	}
	if opts.LastModified != "" {
		headers["If-Modified-Since"] = opts.LastModified
	}
	return headers
}

// buildCookieParams composes the adapter-supplied region cookies plus a
// synthesized "region" cookie from opts.RegionHint, mirroring render.py's
// ctx.add_cookies call plus its synthesized {"name": "region", ...} entry.
func buildCookieParams(opts FetchOptions, domain string) []*network.CookieParam {
	cookies := make([]*network.CookieParam, 0, len(opts.Cookies)+1)
	for _, c := range opts.Cookies {
		cookies = append(cookies, &network.CookieParam{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	if opts.RegionHint != "" {
		cookies = append(cookies, &network.CookieParam{Name: "region", Value: opts.RegionHint, Domain: "." + domain, Path: "/"})
	}
	return cookies
}

// shouldUseCachedHTML implements the §4.2 step 6 short-circuit: a 304
// response with cached HTML on hand means the origin confirmed no change,
// so the stale-but-valid cache entry is reused instead of re-capturing.
func shouldUseCachedHTML(status int64, cachedHTML string) bool {
	return status == 304 && cachedHTML != ""
}

func deadlineHalf(ctx context.Context) time.Time {
	dl, ok := ctx.Deadline()
	if !ok {
		return time.Now().Add(30 * time.Second)
	}
	remaining := time.Until(dl)
	return time.Now().Add(remaining / 2)
}

// compress/decompress mirror the teacher's gzip-compressed Redis payload
// pattern (cache.go), used here for the meta cache record when it grows
// large (full HTML + headers).
func compress(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, v any) error {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
