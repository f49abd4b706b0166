// Package pipeline wires fetch -> parse -> normalize -> dedupe -> upsert
// -> features -> score -> filter -> sort into one preset run, grounded
// in app/processing/pipeline.py's fetch_site_list/upsert_offer/
// compute_features/process_preset.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/dealwatch/scout/internal/adapters"
	"github.com/dealwatch/scout/internal/apperr"
	"github.com/dealwatch/scout/internal/dedupe"
	"github.com/dealwatch/scout/internal/features"
	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/normalize"
	"github.com/dealwatch/scout/internal/renderpool"
	"github.com/dealwatch/scout/internal/scoring"
	"github.com/dealwatch/scout/internal/store"
)

// Result is one surfaced deal, the Go shape of process_preset's dict rows.
type Result struct {
	Title       string
	URL         string
	Price       int64
	DiscountPct *float64
	Score       float64
	Source      string
	Img         *string
	FakeMSRP    bool
}

// Renderer is the fetch capability pipeline needs from the render pool,
// narrowed to an interface so tests can substitute a fake.
type Renderer interface {
	Fetch(ctx context.Context, pageURL string, opts renderpool.FetchOptions) (string, []byte, error)
}

// Deps bundles the collaborators one preset run needs.
type Deps struct {
	Adapters     map[string]adapters.Adapter
	Render       Renderer
	Products     *store.ProductStore
	Offers       *store.OfferStore
	History      *store.PriceHistoryStore
	ShippingCost int64
	DefaultGeoid string
}

// waitSelectorFor mirrors fetch_site_list's per-site wait_selector choice.
func waitSelectorFor(site string) string {
	switch site {
	case "ozon":
		return `[data-widget="searchResultsV2"]`
	case "market":
		return `article[data-autotest-id='product-snippet']`
	default:
		return ""
	}
}

// fetchSiteList fetches and parses one listing page for a site, applying
// the region-cookie/region-verification contract the adapters encode.
func fetchSiteList(ctx context.Context, d Deps, site, url, geoid string) ([]models.RawOffer, error) {
	ad, ok := d.Adapters[site]
	if !ok {
		return nil, apperr.Permanent("pipeline.fetchSiteList", fmt.Errorf("unknown site %q", site))
	}
	geoidActual := geoid
	if geoidActual == "" {
		geoidActual = d.DefaultGeoid
	}

	cookies := ad.RegionCookies(geoidActual)
	rpCookies := make([]renderpool.Cookie, len(cookies))
	for i, c := range cookies {
		rpCookies[i] = renderpool.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
	}

	ttl := time.Duration(30+rand.Intn(150)) * time.Second
	html, _, err := d.Render.Fetch(ctx, url, renderpool.FetchOptions{
		Cookies:      rpCookies,
		WaitSelector: waitSelectorFor(site),
		RegionHint:   geoid,
		CacheTTL:     &ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch site list: %w", err)
	}

	if !ad.EnsureRegion(html, geoidActual) {
		return nil, apperr.RegionMismatch("pipeline.fetchSiteList", fmt.Errorf("could not select region %s for %s", geoidActual, site))
	}

	return ad.ParseListing(html, geoid), nil
}

type upserted struct {
	product *models.Product
	offer   *models.Offer
}

func upsertOffer(ctx context.Context, d Deps, n models.NormalizedOffer) (*upserted, error) {
	prod, err := d.Products.GetByURL(ctx, n.URL)
	if err != nil {
		return nil, fmt.Errorf("lookup product: %w", err)
	}
	now := time.Now().UTC()
	if prod == nil {
		prod = &models.Product{
			Source:     n.Source,
			ExternalID: n.ExternalID,
			URL:        n.URL,
			Title:      n.Title,
			Brand:      n.Brand,
			Finger:     n.Finger,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if n.Img != nil {
			prod.ImageURL = *n.Img
		}
		if n.Geoid != nil {
			prod.Geoid = *n.Geoid
		}
		if err := d.Products.Create(ctx, prod); err != nil {
			return nil, fmt.Errorf("create product: %w", err)
		}
	}
	if n.ImgHash != nil {
		if err := d.Products.FillImgHashIfMissing(ctx, prod.ID, *n.ImgHash); err != nil {
			return nil, fmt.Errorf("fill img hash: %w", err)
		}
	}

	offer := &models.Offer{
		ProductID:        prod.ID,
		Price:            n.Price,
		PriceOld:         n.PriceOld,
		PriceFinal:       n.PriceFinal,
		Seller:           n.Seller,
		SellerRating:     n.SellerRating,
		ShippingDays:     n.ShippingDays,
		PromoFlags:       n.PromoFlags,
		ShippingIncluded: n.ShippingIncluded,
		PriceInCart:      n.PriceInCart,
		Subscription:     n.Subscription,
		ObservedAt:       now,
	}
	if err := d.Offers.Insert(ctx, offer); err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}

	hist := &models.PriceHistory{ProductID: prod.ID, Ts: now, Seller: n.Seller}
	if n.PriceFinal != nil {
		hist.PriceFinal = *n.PriceFinal
	}
	if err := d.History.Insert(ctx, hist); err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}

	return &upserted{product: prod, offer: offer}, nil
}

// ProcessPreset runs one full preset cycle and returns the surfaced deals
// sorted by descending score, mirroring process_preset's return contract.
func ProcessPreset(ctx context.Context, d Deps, task models.TaskPayload) ([]Result, error) {
	raws, err := fetchSiteList(ctx, d, task.Site, task.URL, task.Geoid)
	if err != nil {
		return nil, err
	}

	normalized := make([]models.NormalizedOffer, 0, len(raws))
	for _, r := range raws {
		n := normalize.Normalize(r, d.ShippingCost)
		if ad, ok := d.Adapters[task.Site]; ok {
			n.ExternalID = ad.ExternalIDFromURL(n.URL)
		}
		normalized = append(normalized, n)
	}
	normalized = dedupe.Dedupe(normalized)

	infos := make([]*upserted, 0, len(normalized))
	for _, n := range normalized {
		up, err := upsertOffer(ctx, d, n)
		if err != nil {
			return nil, err
		}
		infos = append(infos, up)
	}

	results := make([]Result, 0, len(normalized))
	now := time.Now().UTC()
	for i, n := range normalized {
		up := infos[i]
		history, err := d.History.ForFeatures(ctx, up.product.ID)
		if err != nil {
			return nil, fmt.Errorf("load feature history: %w", err)
		}
		agg := features.Compute(history, now)
		if err := d.Products.UpdateAggregates(ctx, up.product.ID, agg.Avg30d, agg.Min30d, agg.Avg90d, agg.Min90d, agg.Trend); err != nil {
			return nil, fmt.Errorf("update aggregates: %w", err)
		}

		var absSaving *int64
		if agg.Avg30d != nil && n.PriceFinal != nil {
			v := int64(*agg.Avg30d) - *n.PriceFinal
			absSaving = &v
		}

		base := n.PriceOld
		if base == nil {
			if agg.Avg30d != nil {
				v := int64(*agg.Avg30d)
				base = &v
			}
		}
		disc := scoring.DiscountPct(base, n.PriceFinal)
		fakeMSRP := scoring.IsFakeMSRP(n.PriceOld, agg.Avg30d, agg.Min90d)
		score := scoring.ComputeScore(disc, absSaving, n.SellerRating, n.ShippingDays, task.Weights)

		up.offer.DiscountPct = disc
		up.offer.AbsSaving = absSaving
		up.offer.Score = &score
		up.offer.FakeMSRP = fakeMSRP

		discOK := disc != nil && int(*disc) >= task.MinDiscount
		scoreOK := int(score) >= task.MinScore
		if discOK || scoreOK {
			price := int64(0)
			if n.PriceFinal != nil {
				price = *n.PriceFinal
			} else if n.Price != nil {
				price = *n.Price
			}
			results = append(results, Result{
				Title:       n.Title,
				URL:         n.URL,
				Price:       price,
				DiscountPct: disc,
				Score:       score,
				Source:      n.Source,
				Img:         n.Img,
				FakeMSRP:    fakeMSRP,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}
