// Package politeness provides per-domain pacing, robots.txt honoring, and
// the exponential-backoff retry helper, generalizing the teacher's
// ESIRateLimiter/RetryWithBackoff to per-domain keys instead of a single
// global limiter.
package politeness

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dealwatch/scout/internal/apperr"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// DomainLimiter hands out a token-bucket rate.Limiter per domain, created
// lazily on first use.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func NewDomainLimiter(rps float64, burst int) *DomainLimiter {
	return &DomainLimiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return d.limiterFor(domain).Wait(ctx)
}

func (d *DomainLimiter) limiterFor(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.rps), d.burst)
		d.limiters[domain] = l
	}
	return l
}

// Jitter returns a duration of sleepMS plus a uniform random component up
// to jitterMS, used for the render pool's sleep before capture.
func Jitter(sleepMS, jitterMS int) time.Duration {
	extra := 0
	if jitterMS > 0 {
		extra = rand.Intn(jitterMS)
	}
	return time.Duration(sleepMS+extra) * time.Millisecond
}

// RetryConfig configures RetryWithBackoff.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, InitialBackoff: 1 * time.Second, MaxBackoff: 32 * time.Second}
}

// RetryWithBackoff executes fn with exponential backoff, stopping early
// if fn's error is permanent (per apperr.IsPermanent).
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if apperr.IsPermanent(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// RobotsChecker fetches and caches robots.txt per domain, denying fetches
// per the fetched rules. A disallow maps to apperr.RobotsDisallow, which
// the queue routes straight to the DLQ per the error taxonomy.
type RobotsChecker struct {
	mu     sync.Mutex
	groups map[string]*robotstxt.RobotsData
	client *http.Client
	ua     string
}

func NewRobotsChecker(userAgent string) *RobotsChecker {
	return &RobotsChecker{
		groups: make(map[string]*robotstxt.RobotsData),
		client: &http.Client{Timeout: 5 * time.Second},
		ua:     userAgent,
	}
}

func (r *RobotsChecker) Allowed(target string) (bool, error) {
	u, err := url.Parse(target)
	if err != nil {
		return false, err
	}
	data, err := r.dataFor(u)
	if err != nil {
		// Fail open: an unreachable robots.txt does not block scraping.
		return true, nil
	}
	return data.TestAgent(u.Path, r.ua), nil
}

func (r *RobotsChecker) Check(target string) error {
	ok, err := r.Allowed(target)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.RobotsDisallow("politeness.Check", fmt.Errorf("disallowed by robots.txt: %s", target))
	}
	return nil
}

func (r *RobotsChecker) dataFor(u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Scheme + "://" + u.Host
	r.mu.Lock()
	if data, ok := r.groups[host]; ok {
		r.mu.Unlock()
		return data, nil
	}
	r.mu.Unlock()

	resp, err := r.client.Get(host + "/robots.txt")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.groups[host] = data
	r.mu.Unlock()
	return data, nil
}
