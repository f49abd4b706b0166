package adapters

import (
	"encoding/json"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/selectors"
	"github.com/dealwatch/scout/pkg/logger"
)

// OzonGeoidToCity is the built-in geoid->city table, overridable via the
// OZON_GEOID_TO_CITY JSON env var (see app/scraper/adapters/ozon/__init__.py).
var OzonGeoidToCity = map[string]string{
	"213": "Москва",
	"2":   "Санкт-Петербург",
}

func init() {
	if extra := os.Getenv("OZON_GEOID_TO_CITY"); extra != "" {
		var override map[string]string
		if err := json.Unmarshal([]byte(extra), &override); err == nil {
			for k, v := range override {
				OzonGeoidToCity[k] = v
			}
		} else {
			logger.New().Warn("failed to parse OZON_GEOID_TO_CITY")
		}
	}
}

const ozonBase = "https://www.ozon.ru"

var ozonExternalIDRe = regexp.MustCompile(`(\d+)(?:/|$)`)

// ozonCardPriceRe finds a "19 990 ₽"-style amount in a card's visible text,
// used when no price selector resolves one.
var ozonCardPriceRe = regexp.MustCompile(`(\d[\d\s\x{00a0}\x{2009}\x{202f}]*)\s*₽`)

// Ozon implements Adapter for ozon.ru.
type Ozon struct {
	Selectors selectors.Registry
}

func NewOzon(reg selectors.Registry) *Ozon { return &Ozon{Selectors: reg} }

func (o *Ozon) Site() string { return "ozon" }

func (o *Ozon) RegionCookies(geoid string) []RegionCookie {
	return []RegionCookie{{Name: "region", Value: geoid, Domain: ".ozon.ru", Path: "/"}}
}

func ozonCityFromHTML(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	el := doc.Find("[data-widget='headerLocation']").First()
	if el.Length() == 0 {
		el = doc.Find("[data-widget='regionSelect']").First()
	}
	if el.Length() > 0 {
		return strings.TrimSpace(el.Text())
	}
	if m := regexp.MustCompile(`Товары для города\s+([\w\-\s]+)`).FindStringSubmatch(htmlStr); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func (o *Ozon) EnsureRegion(htmlStr, geoid string) bool {
	expected, ok := OzonGeoidToCity[geoid]
	if !ok || expected == "" {
		return true
	}
	return ozonCityFromHTML(htmlStr) == expected
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func (o *Ozon) ParseListing(htmlStr, geoid string) []models.RawOffer {
	doc, err := selectors.NewDocument(htmlStr)
	if err != nil {
		return nil
	}

	containerSel := resolveSelector(o.Selectors, "ozon", "listing", "container", `[data-widget="searchResultsV2"]`)
	cardSel := resolveSelector(o.Selectors, "ozon", "listing", "card", `a[href*="/product/"]`)
	priceSel := resolveSelector(o.Selectors, "ozon", "listing", "price", "")
	imageSel := resolveSelector(o.Selectors, "ozon", "listing", "image", "img")

	container := doc
	if containerSel.CSS != "" || containerSel.XPath != "" {
		if found := findAll(doc, containerSel); found != nil && found.Length() > 0 {
			container = selectors.FromSelection(found)
		}
	}

	var items []models.RawOffer
	seen := map[string]bool{}
	findAll(container, cardSel).Each(func(_ int, a *goquery.Selection) {
		href, exists := a.Attr("href")
		if !exists || !strings.Contains(href, "/product/") {
			return
		}
		u := resolveURL(ozonBase, href)
		if seen[u] {
			return
		}
		seen[u] = true

		title := strings.TrimSpace(a.Text())

		cardNode := selectors.FromSelection(a)
		var price *int64
		if priceSel.CSS != "" || priceSel.XPath != "" || priceSel.JSON != "" {
			price = findPrice(cardNode, priceSel, "")
		}
		if price == nil {
			if m := ozonCardPriceRe.FindStringSubmatch(a.Text()); m != nil {
				price = extractPrice(m[1])
			}
		}
		if price == nil {
			logger.New().Warn("skip card: missing price", "url", u)
			return
		}

		var img *string
		if imgEl := findOne(cardNode, imageSel); imgEl != nil && imgEl.Length() > 0 {
			if src, ok := imgEl.Attr("src"); ok {
				v := resolveURL(ozonBase, src)
				img = &v
			}
		}

		textBlock := strings.TrimSpace(a.Text())
		promoFlags, shippingDays, shippingIncluded, priceInCart, subscription := promoHeuristics(textBlock)

		if title == "" {
			title = "Товар Ozon"
		}

		items = append(items, models.RawOffer{
			Source:           "ozon",
			Title:            truncateTitle(title, 200),
			URL:              u,
			Img:              img,
			Price:            price,
			ShippingDays:     shippingDays,
			PromoFlags:       promoFlags,
			ShippingIncluded: shippingIncluded,
			PriceInCart:      priceInCart,
			Subscription:     subscription,
			Geoid:            nil,
		})
	})
	return items
}

func (o *Ozon) ParseProduct(htmlStr, geoid string) models.RawOffer {
	doc, err := selectors.NewDocument(htmlStr)
	if err != nil {
		return models.RawOffer{Source: "ozon", Title: "Товар Ozon", URL: ozonBase}
	}

	u := ozonBase
	if href, ok := doc.Doc.Find("link[rel='canonical']").Attr("href"); ok {
		u = resolveURL(ozonBase, href)
	}

	titleSel := resolveSelector(o.Selectors, "ozon", "product", "title", "h1")
	title := "Товар Ozon"
	if el := findOne(doc, titleSel); el != nil && el.Length() > 0 {
		title = strings.TrimSpace(el.Text())
	}

	priceSel := resolveSelector(o.Selectors, "ozon", "product", "price", `[data-widget='webPrice']`)
	price := findPrice(doc, priceSel, "")

	imageSel := resolveSelector(o.Selectors, "ozon", "product", "image", "img")
	var img *string
	if el := findOne(doc, imageSel); el != nil && el.Length() > 0 {
		if src, ok := el.Attr("src"); ok {
			v := resolveURL(ozonBase, src)
			img = &v
		}
	}

	textBlock := strings.TrimSpace(doc.Doc.Text())
	promoFlags, shippingDays, shippingIncluded, priceInCart, subscription := promoHeuristics(textBlock)

	return models.RawOffer{
		Source:           "ozon",
		Title:            truncateTitle(title, 200),
		URL:              u,
		Img:              img,
		Price:            price,
		ShippingDays:     shippingDays,
		PromoFlags:       promoFlags,
		ShippingIncluded: shippingIncluded,
		PriceInCart:      priceInCart,
		Subscription:     subscription,
		Geoid:            nil,
	}
}

func (o *Ozon) ExternalIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if m := ozonExternalIDRe.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return strings.Trim(u.Path, "/")
}
