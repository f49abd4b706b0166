// Package scoring computes discount percentage, the weighted deal score,
// and the fake-MSRP heuristic, in the grouping/derive style of the
// teacher's ProfitAnalyzer.
package scoring

import (
	"math"

	"github.com/dealwatch/scout/internal/models"
)

// DefaultWeights are the spec-pinned scoring coefficients.
var DefaultWeights = models.ScoreWeights{
	Discount: f(0.4),
	Abs:      f(0.3),
	Seller:   f(0.2),
	Shipping: f(0.1),
	Base:     f(10.0),
}

func f(v float64) *float64 { return &v }

// DiscountPct computes round((base-priceFinal)/base*100, 2); returns nil
// if either input is missing or base is non-positive.
func DiscountPct(base, priceFinal *int64) *float64 {
	if base == nil || priceFinal == nil || *base <= 0 {
		return nil
	}
	pct := round2(float64(*base-*priceFinal) / float64(*base) * 100)
	return &pct
}

// ComputeScore applies the weighted score formula, falling back to
// DefaultWeights for any field the caller's weights leave unset.
func ComputeScore(discPct *float64, absSaving *int64, sellerRating *float64, shippingDays *int, weights *models.ScoreWeights) float64 {
	w := resolve(weights)

	dp := 0.0
	if discPct != nil {
		dp = *discPct
	}
	abs := 0.0
	if absSaving != nil {
		abs = float64(*absSaving) / 100.0
	}
	sr := 0.0
	if sellerRating != nil {
		sr = *sellerRating * 20
	}
	sd := 0.0
	if shippingDays != nil {
		sd = -float64(*shippingDays)
	}

	score := *w.Discount*dp + *w.Abs*abs + *w.Seller*sr + *w.Shipping*sd + *w.Base
	return round2(score)
}

func resolve(override *models.ScoreWeights) models.ScoreWeights {
	w := DefaultWeights
	if override == nil {
		return w
	}
	if override.Discount != nil {
		w.Discount = override.Discount
	}
	if override.Abs != nil {
		w.Abs = override.Abs
	}
	if override.Seller != nil {
		w.Seller = override.Seller
	}
	if override.Shipping != nil {
		w.Shipping = override.Shipping
	}
	if override.Base != nil {
		w.Base = override.Base
	}
	return w
}

// IsFakeMSRP reports whether priceOld exceeds 1.5x the lesser of the
// 30-day average and 90-day minimum baselines. False if either baseline
// is missing.
func IsFakeMSRP(priceOld *int64, avg30 *float64, min90 *int64) bool {
	if priceOld == nil || avg30 == nil || min90 == nil {
		return false
	}
	baseline := math.Min(*avg30, float64(*min90))
	return float64(*priceOld) > baseline*1.5
}

func round2(v float64) float64 {
	shifted := v * 100
	if shifted >= 0 {
		return math.Floor(shifted+0.5) / 100
	}
	return math.Ceil(shifted-0.5) / 100
}
