package renderpool

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*Pool, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Pool{
		redis:      client,
		domainSems: make(map[string]chan struct{}),
		perDomain:  2,
		site:       "test",
	}, mr
}

func TestFetchReturnsCachedHTMLWithoutTouchingTheBrowserPool(t *testing.T) {
	p, mr := newTestPool(t)
	require.NoError(t, mr.Set("render:https://ozon.ru/search/phones", "<html>cached</html>"))

	html, shot, err := p.Fetch(context.Background(), "https://ozon.ru/search/phones", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "<html>cached</html>", html)
	assert.Nil(t, shot)
}

func TestShouldUseCachedHTMLRequiresBoth304AndCachedEntry(t *testing.T) {
	assert.True(t, shouldUseCachedHTML(304, "<html>old</html>"))
	assert.False(t, shouldUseCachedHTML(304, ""), "304 with no cached HTML on hand cannot short-circuit")
	assert.False(t, shouldUseCachedHTML(200, "<html>old</html>"), "200 means the page changed and must be recaptured")
}

func TestBuildHeadersAddsConditionalValidators(t *testing.T) {
	h := buildHeaders(FetchOptions{
		ExtraHeaders: map[string]string{"Accept-Language": "ru-RU"},
		ETag:         `"abc123"`,
		LastModified: "Wed, 21 Oct 2026 07:28:00 GMT",
	})
	assert.Equal(t, "ru-RU", h["Accept-Language"])
	assert.Equal(t, `"abc123"`, h["If-None-Match"])
	assert.Equal(t, "Wed, 21 Oct 2026 07:28:00 GMT", h["If-Modified-Since"])
}

func TestBuildHeadersOmitsValidatorsWhenUnset(t *testing.T) {
	h := buildHeaders(FetchOptions{})
	_, hasEtag := h["If-None-Match"]
	_, hasLM := h["If-Modified-Since"]
	assert.False(t, hasEtag)
	assert.False(t, hasLM)
}

func TestBuildCookieParamsCarriesAdapterCookiesAndSynthesizesRegion(t *testing.T) {
	cookies := buildCookieParams(FetchOptions{
		Cookies:    []Cookie{{Name: "yandex_gid", Value: "213", Domain: ".yandex.ru", Path: "/"}},
		RegionHint: "213",
	}, "market.yandex.ru")

	require.Len(t, cookies, 2)
	names := map[string]string{}
	for _, c := range cookies {
		names[c.Name] = c.Domain
	}
	assert.Equal(t, ".yandex.ru", names["yandex_gid"])
	assert.Equal(t, ".market.yandex.ru", names["region"], "synthesized region cookie must scope to the navigated domain")
}

func TestBuildCookieParamsOmitsRegionCookieWhenNoHintGiven(t *testing.T) {
	cookies := buildCookieParams(FetchOptions{}, "ozon.ru")
	assert.Len(t, cookies, 0)
}

func TestSemForReturnsSameChannelPerDomain(t *testing.T) {
	p, _ := newTestPool(t)
	a := p.semFor("ozon.ru")
	b := p.semFor("ozon.ru")
	assert.Equal(t, a, b)

	c := p.semFor("market.yandex.ru")
	assert.NotEqual(t, a, c)
}

func TestSemForEnforcesPerDomainCapacity(t *testing.T) {
	p, _ := newTestPool(t)
	sem := p.semFor("ozon.ru")

	for i := 0; i < p.perDomain; i++ {
		select {
		case sem <- struct{}{}:
		default:
			t.Fatalf("expected slot %d to be available", i)
		}
	}

	select {
	case sem <- struct{}{}:
		t.Fatal("semaphore exceeded its configured per-domain capacity")
	default:
	}

	<-sem
	select {
	case sem <- struct{}{}:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("releasing a slot should immediately free capacity for the next acquire")
	}
}
