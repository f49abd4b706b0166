package selectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHTML = `<!DOCTYPE html>
<html><body>
<div class="price" data-value="1999">1 999 ₽</div>
<ul class="cards">
  <li class="card"><span class="name">one</span></li>
  <li class="card"><span class="name">two</span></li>
</ul>
<script type="application/json">{"props":{"price":{"value":2499}}}</script>
</body></html>`

func TestSelectOneResolvesViaCSS(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	el := SelectOne(doc, Selector{CSS: ".price"})
	require.NotNil(t, el)
	assert.Equal(t, "1 999 ₽", el.Text())
}

func TestSelectAllResolvesMultipleViaCSS(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	all := SelectAll(doc, Selector{CSS: ".card"})
	assert.Equal(t, 2, all.Length())
}

func TestSelectOneFallsBackToXPathWhenCSSMissing(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	// No CSS configured; the field must still resolve through XPath.
	el := SelectOne(doc, Selector{XPath: "//div[@class='price']"})
	require.NotNil(t, el)
	assert.Equal(t, "1 999 ₽", el.Text())
}

func TestSelectOneReturnsNilWhenNothingMatches(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	el := SelectOne(doc, Selector{CSS: ".does-not-exist"})
	assert.Nil(t, el)
}

func TestSelectJSONResolvesDottedPathFromEmbeddedScript(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	v, ok := SelectJSON(doc, Selector{JSON: "props.price.value"})
	require.True(t, ok)
	assert.Equal(t, float64(2499), v)
}

func TestSelectJSONMissingPathReturnsNotFound(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	_, ok := SelectJSON(doc, Selector{JSON: "props.stock.value"})
	assert.False(t, ok)
}

func TestFromSelectionScopesLookupToCard(t *testing.T) {
	doc, err := NewDocument(testHTML)
	require.NoError(t, err)

	cards := SelectAll(doc, Selector{CSS: ".card"})
	require.Equal(t, 2, cards.Length())

	first := FromSelection(cards.Eq(0))
	el := SelectOne(first, Selector{CSS: ".name"})
	require.NotNil(t, el)
	assert.Equal(t, "one", el.Text())
}

func TestRegistryGetUnknownSiteReturnsEmptySet(t *testing.T) {
	reg := Registry{"ozon": SiteSelectors{Listing: PageSelectors{"price": {CSS: ".price"}}}}
	got := reg.Get("market")
	assert.Nil(t, got.Listing)
	assert.Nil(t, got.Product)
}
