package pipeline

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealwatch/scout/internal/adapters"
	"github.com/dealwatch/scout/internal/apperr"
	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/renderpool"
	"github.com/dealwatch/scout/internal/store"
)

type fakeRenderer struct {
	html string
	err  error
}

func (f *fakeRenderer) Fetch(ctx context.Context, pageURL string, opts renderpool.FetchOptions) (string, []byte, error) {
	return f.html, nil, f.err
}

// stubAdapter satisfies adapters.Adapter with canned responses, letting
// pipeline tests exercise fetchSiteList/ProcessPreset without real HTML.
type stubAdapter struct {
	site         string
	listing      []models.RawOffer
	regionOK     bool
	externalBase string
}

func (a *stubAdapter) Site() string { return a.site }
func (a *stubAdapter) RegionCookies(geoid string) []adapters.RegionCookie {
	return []adapters.RegionCookie{{Name: "region", Value: geoid}}
}
func (a *stubAdapter) EnsureRegion(html, geoid string) bool { return a.regionOK }
func (a *stubAdapter) ParseListing(html, geoid string) []models.RawOffer {
	return a.listing
}
func (a *stubAdapter) ParseProduct(html, geoid string) models.RawOffer {
	return models.RawOffer{}
}
func (a *stubAdapter) ExternalIDFromURL(url string) string {
	return a.externalBase + url
}

func TestFetchSiteListReturnsRegionMismatchError(t *testing.T) {
	d := Deps{
		Adapters:     map[string]adapters.Adapter{"ozon": &stubAdapter{site: "ozon", regionOK: false}},
		Render:       &fakeRenderer{html: "<html></html>"},
		DefaultGeoid: "213",
	}
	_, err := fetchSiteList(context.Background(), d, "ozon", "https://ozon.ru/search/phones", "2")
	require.Error(t, err)
}

func TestFetchSiteListReturnsParsedOffers(t *testing.T) {
	price := int64(1000)
	offers := []models.RawOffer{{Source: "ozon", Title: "Phone", URL: "https://ozon.ru/product/1/", Price: &price}}
	d := Deps{
		Adapters:     map[string]adapters.Adapter{"ozon": &stubAdapter{site: "ozon", regionOK: true, listing: offers}},
		Render:       &fakeRenderer{html: "<html></html>"},
		DefaultGeoid: "213",
	}
	got, err := fetchSiteList(context.Background(), d, "ozon", "https://ozon.ru/search/phones", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Phone", got[0].Title)
}

func TestFetchSiteListUnknownSiteReturnsPermanentError(t *testing.T) {
	d := Deps{Adapters: map[string]adapters.Adapter{}, Render: &fakeRenderer{}}
	got, err := fetchSiteList(context.Background(), d, "unknown", "https://example.com", "")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, apperr.IsPermanent(err), "unknown site must route straight to the DLQ, not retry")
}

func TestUpsertOfferCreatesProductWhenMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, source, external_id").WithArgs("https://ozon.ru/product/1/").
		WillReturnRows(mock.NewRows([]string{
			"id", "source", "external_id", "url", "title", "image_url", "img_hash", "brand",
			"category", "finger", "geoid", "avg_price_30d", "min_price_30d",
			"avg_price_90d", "min_price_90d", "trend_30d", "created_at", "updated_at",
		}))
	mock.ExpectQuery("INSERT INTO products").WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("INSERT INTO offers").WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(70)))
	mock.ExpectQuery("INSERT INTO price_history").WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(700)))

	d := Deps{
		Products: store.NewProductStore(mock),
		Offers:   store.NewOfferStore(mock),
		History:  store.NewPriceHistoryStore(mock),
	}

	price := int64(1000)
	n := models.NormalizedOffer{
		RawOffer: models.RawOffer{Source: "ozon", Title: "Phone", URL: "https://ozon.ru/product/1/", Price: &price},
		Finger:   "f1",
	}
	n.PriceFinal = &price

	up, err := upsertOffer(context.Background(), d, n)
	require.NoError(t, err)
	assert.Equal(t, int64(7), up.product.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
