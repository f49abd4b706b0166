package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOzonParseListingSkipsCardsWithoutPrice(t *testing.T) {
	html := `<html><body>
		<div data-widget="searchResultsV2">
			<a href="/product/phone-123456789/">Phone Title без цены</a>
			<a href="/product/tablet-987654321/">Tablet Title 19 990 ₽ бесплатно купон 500</a>
		</div>
	</body></html>`

	o := NewOzon(nil)
	items := o.ParseListing(html, "213")
	require.Len(t, items, 1)
	assert.Equal(t, "ozon", items[0].Source)
	assert.Equal(t, int64(19990), *items[0].Price)
	assert.True(t, items[0].ShippingIncluded)
	assert.Equal(t, 500, items[0].PromoFlags.IntFlag("instant_coupon"))
}

func TestOzonExternalIDFromURL(t *testing.T) {
	o := NewOzon(nil)
	assert.Equal(t, "123456789", o.ExternalIDFromURL("https://www.ozon.ru/product/slug-123456789/"))
}

func TestOzonEnsureRegionPassesWhenNoMapping(t *testing.T) {
	o := NewOzon(nil)
	assert.True(t, o.EnsureRegion("<html></html>", "999999"))
}

func TestMarketParseListingExtractsPriceFromDataAttr(t *testing.T) {
	html := `<html><body>
		<article data-autotest-id="product-snippet">
			<a href="/product--phone/555666777">
				<span data-baobab-name="title">Phone X</span>
			</a>
			<span data-autotest-value="15000">15 000 ₽</span>
		</article>
	</body></html>`

	m := NewMarket(nil)
	items := m.ParseListing(html, "213")
	require.Len(t, items, 1)
	assert.Equal(t, int64(15000), *items[0].Price)
	assert.Equal(t, "market", items[0].Source)
}

func TestMarketExternalIDFromURL(t *testing.T) {
	m := NewMarket(nil)
	assert.Equal(t, "555666777", m.ExternalIDFromURL("https://market.yandex.ru/product--phone/555666777?x=1"))
}
