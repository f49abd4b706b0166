package adapters

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/selectors"
	"github.com/dealwatch/scout/pkg/logger"
)

// MarketGeoidToCity is the built-in geoid->city table for the Yandex
// Market adapter (app/scraper/adapters/market.py).
var MarketGeoidToCity = map[string]string{
	"213": "Москва",
	"2":   "Санкт-Петербург",
}

const marketBase = "https://market.yandex.ru"

var marketExternalIDRe = regexp.MustCompile(`/product--[^/]+/(\d+)`)

// Market implements Adapter for market.yandex.ru.
type Market struct {
	Selectors selectors.Registry
}

func NewMarket(reg selectors.Registry) *Market { return &Market{Selectors: reg} }

func (m *Market) Site() string { return "market" }

func (m *Market) RegionCookies(geoid string) []RegionCookie {
	return []RegionCookie{{Name: "yandex_gid", Value: geoid, Domain: ".yandex.ru", Path: "/"}}
}

func marketCityFromHTML(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	el := doc.Find("[data-autotest-id='region']").First()
	if el.Length() == 0 {
		el = doc.Find("[data-zone-name='region']").First()
	}
	if el.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func (m *Market) EnsureRegion(htmlStr, geoid string) bool {
	expected, ok := MarketGeoidToCity[geoid]
	if !ok || expected == "" {
		return true
	}
	return marketCityFromHTML(htmlStr) == expected
}

func (m *Market) ParseListing(htmlStr, geoid string) []models.RawOffer {
	doc, err := selectors.NewDocument(htmlStr)
	if err != nil {
		return nil
	}

	cardSel := resolveSelector(m.Selectors, "market", "listing", "card", `article[data-autotest-id='product-snippet']`)
	linkSel := resolveSelector(m.Selectors, "market", "listing", "link", `a[href*='/product--']`)
	titleSel := resolveSelector(m.Selectors, "market", "listing", "title", `[data-baobab-name='title']`)
	priceSel := resolveSelector(m.Selectors, "market", "listing", "price", `[data-autotest-value]`)
	imageSel := resolveSelector(m.Selectors, "market", "listing", "image", "img")

	var geoidPtr *string
	if geoid != "" {
		geoidPtr = &geoid
	}

	var items []models.RawOffer
	findAll(doc, cardSel).Each(func(_ int, card *goquery.Selection) {
		cardNode := selectors.FromSelection(card)
		link := findOne(cardNode, linkSel)
		if link == nil || link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		u := resolveURL(marketBase, href)

		titleEl := findOne(cardNode, titleSel)
		title := "Товар Маркета"
		if titleEl != nil && titleEl.Length() > 0 {
			title = strings.TrimSpace(titleEl.Text())
		} else {
			title = strings.TrimSpace(link.Text())
		}

		price := findPrice(cardNode, priceSel, "data-autotest-value")
		if price == nil {
			logger.New().Warn("skip card: missing price", "url", u)
			return
		}

		var img *string
		if imgEl := findOne(cardNode, imageSel); imgEl != nil && imgEl.Length() > 0 {
			if src, ok := imgEl.Attr("src"); ok {
				v := resolveURL(marketBase, src)
				img = &v
			}
		}

		textBlock := strings.TrimSpace(card.Text())
		promoFlags, shippingDays, _, priceInCart, subscription := promoHeuristics(textBlock)

		items = append(items, models.RawOffer{
			Source:       "market",
			Title:        truncateTitle(title, 200),
			URL:          u,
			Img:          img,
			Price:        price,
			ShippingDays: shippingDays,
			PromoFlags:   promoFlags,
			PriceInCart:  priceInCart,
			Subscription: subscription,
			Geoid:        geoidPtr,
		})
	})
	return items
}

func (m *Market) ParseProduct(htmlStr, geoid string) models.RawOffer {
	doc, err := selectors.NewDocument(htmlStr)
	if err != nil {
		return models.RawOffer{Source: "market", Title: "Товар Маркета", URL: marketBase}
	}

	u := marketBase
	if href, ok := doc.Doc.Find("link[rel='canonical']").Attr("href"); ok {
		u = resolveURL(marketBase, href)
	}

	titleSel := resolveSelector(m.Selectors, "market", "product", "title", "h1")
	title := "Товар Маркета"
	if el := findOne(doc, titleSel); el != nil && el.Length() > 0 {
		title = strings.TrimSpace(el.Text())
	}

	priceSel := resolveSelector(m.Selectors, "market", "product", "price", `[data-auto='mainPrice']`)
	price := findPrice(doc, priceSel, "")

	imageSel := resolveSelector(m.Selectors, "market", "product", "image", "img")
	var img *string
	if el := findOne(doc, imageSel); el != nil && el.Length() > 0 {
		if src, ok := el.Attr("src"); ok {
			v := resolveURL(marketBase, src)
			img = &v
		}
	}

	textBlock := strings.TrimSpace(doc.Doc.Text())
	promoFlags, shippingDays, _, priceInCart, subscription := promoHeuristics(textBlock)

	var geoidPtr *string
	if geoid != "" {
		geoidPtr = &geoid
	}

	return models.RawOffer{
		Source:       "market",
		Title:        truncateTitle(title, 200),
		URL:          u,
		Img:          img,
		Price:        price,
		ShippingDays: shippingDays,
		PromoFlags:   promoFlags,
		PriceInCart:  priceInCart,
		Subscription: subscription,
		Geoid:        geoidPtr,
	}
}

func (m *Market) ExternalIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if mm := marketExternalIDRe.FindStringSubmatch(u.Path); mm != nil {
		return mm[1]
	}
	return strings.Trim(u.Path, "/")
}
