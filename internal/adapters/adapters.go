// Package adapters implements the per-site scraping logic: region
// verification cookies, listing/product HTML parsing into
// models.RawOffer, and external-id extraction from canonical URLs.
// Grounded in app/scraper/adapters/{ozon,market}.py, translated from
// BeautifulSoup+re onto the selectors registry and goquery.
package adapters

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/selectors"
)

// Adapter is the behavior one site (ozon, market) must supply.
type Adapter interface {
	Site() string
	RegionCookies(geoid string) []RegionCookie
	EnsureRegion(html, geoid string) bool
	ParseListing(html, geoid string) []models.RawOffer
	ParseProduct(html, geoid string) models.RawOffer
	ExternalIDFromURL(url string) string
}

// RegionCookie is the cookie an adapter asks the render pool to set
// before navigation so the origin serves region-pinned prices.
type RegionCookie struct {
	Name, Value, Domain, Path string
}

var (
	couponRe   = regexp.MustCompile(`купон.*?(\d+)`)
	shippingRe = regexp.MustCompile(`(\d+)[^\d]{0,5}дн`)
)

func extractPrice(text string) *int64 {
	if text == "" {
		return nil
	}
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	v, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// promoHeuristics mirrors the Python listing/product parsers' shared
// regex heuristics over the lowercased visible text of a card or page.
func promoHeuristics(textBlock string) (promoFlags models.PromoFlags, shippingDays *int, shippingIncluded, priceInCart, subscription bool) {
	lower := strings.ToLower(textBlock)
	promoFlags = models.PromoFlags{}

	if m := couponRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			promoFlags["instant_coupon"] = n
		}
	}
	if m := shippingRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			shippingDays = &n
		}
	}
	shippingIncluded = strings.Contains(lower, "бесп")
	priceInCart = strings.Contains(lower, "корзин")
	subscription = strings.Contains(lower, "подпис")
	return
}

func truncateTitle(title string, max int) string {
	r := []rune(title)
	if len(r) > max {
		return string(r[:max])
	}
	return title
}

func resolveSelector(reg selectors.Registry, site, page, field string, fallbackCSS string) selectors.Selector {
	var page2 selectors.PageSelectors
	ss := reg.Get(site)
	if page == "listing" {
		page2 = ss.Listing
	} else {
		page2 = ss.Product
	}
	if sel, ok := page2[field]; ok {
		return sel
	}
	return selectors.Selector{CSS: fallbackCSS}
}

// findOne resolves a single element within scope through the CSS -> XPath
// selector chain. Used for per-card lookups (a listing card) as well as
// full-document lookups; the XPath layer only applies when scope carries
// an html.Node (see selectors.NewDocument), so per-card lookups resolve
// through CSS only. Embedded-JSON selectors are not consulted here; only
// findPrice falls back to them.
func findOne(scope *selectors.Node, sel selectors.Selector) *goquery.Selection {
	return selectors.SelectOne(scope, sel)
}

// findAll resolves every matching element within scope, same chain as
// findOne.
func findAll(scope *selectors.Node, sel selectors.Selector) *goquery.Selection {
	return selectors.SelectAll(scope, sel)
}

// findPrice resolves a price either from a matched element's attribute or
// text, or, when no CSS/XPath element matches, from an embedded-JSON
// payload addressed by sel.JSON. attr may be empty to read element text
// instead of an attribute value.
func findPrice(scope *selectors.Node, sel selectors.Selector, attr string) *int64 {
	if el := findOne(scope, sel); el != nil && el.Length() > 0 {
		if attr != "" {
			if v, ok := el.Attr(attr); ok {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					return &n
				}
			}
			return nil
		}
		return extractPrice(el.Text())
	}
	if v, ok := selectors.SelectJSON(scope, sel); ok {
		switch t := v.(type) {
		case float64:
			n := int64(t)
			return &n
		case string:
			return extractPrice(t)
		}
	}
	return nil
}
