// Package normalize cleans titles, guesses brands, computes the stable
// content fingerprint, and applies the pricing rule to raw offers.
package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/dealwatch/scout/internal/models"
)

// knownBrands is a small allow-list used to guess a brand from a title,
// mirroring the original's conservative substring match.
var knownBrands = []string{
	"Samsung", "Apple", "Xiaomi", "Sony", "LG", "Huawei", "Honor",
	"Lenovo", "Asus", "Acer", "HP", "Dell", "Philips", "Bosch",
	"Panasonic", "JBL", "Logitech", "Redmi", "Nokia", "Oppo", "Vivo",
}

var spaceRe = regexp.MustCompile(`\s+`)

// NormTitle trims, lowercases, and collapses internal whitespace.
func NormTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	return spaceRe.ReplaceAllString(t, " ")
}

// GuessBrand returns the first known brand whose lowercase form appears
// as a substring of the normalized title.
func GuessBrand(titleNorm string) *string {
	for _, b := range knownBrands {
		if strings.Contains(titleNorm, strings.ToLower(b)) {
			brand := b
			return &brand
		}
	}
	return nil
}

// Fingerprint computes the deterministic content fingerprint: md5 of the
// space-joined lowercase title, brand (if any), and model (if any). This
// is the canonical, pinned join — see SPEC_FULL.md Open Questions.
func Fingerprint(titleNorm string, brand, model *string) string {
	parts := []string{titleNorm}
	if brand != nil && *brand != "" {
		parts = append(parts, strings.ToLower(*brand))
	}
	if model != nil && *model != "" {
		parts = append(parts, strings.ToLower(*model))
	}
	sum := md5.Sum([]byte(strings.Join(parts, " ")))
	return hex.EncodeToString(sum[:])
}

// ImgHash computes the 16-hex image fingerprint from an image URL.
func ImgHash(imgURL string) string {
	sum := md5.Sum([]byte(imgURL))
	return hex.EncodeToString(sum[:])[:16]
}

// ComputeFinalPrice applies the pricing rule (SPEC_FULL.md §4.5):
// null if price is nil or the offer requires adding to cart to see the
// real price; otherwise price minus any instant coupon, plus shipping
// cost when shipping applies and isn't waived by subscription or an
// already-included-shipping offer.
func ComputeFinalPrice(price *int64, promo models.PromoFlags, shippingDays *int, shippingIncluded, subscription, priceInCart bool, shippingCost int64) *int64 {
	if price == nil || priceInCart {
		return nil
	}
	coupon := int64(promo.IntFlag("instant_coupon"))
	final := *price - coupon
	if shippingDays != nil && !subscription && !shippingIncluded {
		final += shippingCost
	}
	return &final
}

// Normalize converts a RawOffer into a NormalizedOffer: title cleanup,
// brand guess, fingerprint, image hash (when an image is present), and
// final-price computation.
func Normalize(raw models.RawOffer, shippingCost int64) models.NormalizedOffer {
	titleNorm := NormTitle(raw.Title)
	brand := GuessBrand(titleNorm)

	var imgHash *string
	if raw.Img != nil && *raw.Img != "" {
		h := ImgHash(*raw.Img)
		imgHash = &h
	}

	finger := Fingerprint(titleNorm, brand, nil)
	priceFinal := ComputeFinalPrice(raw.Price, raw.PromoFlags, raw.ShippingDays, raw.ShippingIncluded, raw.Subscription, raw.PriceInCart, shippingCost)

	return models.NormalizedOffer{
		RawOffer:   raw,
		TitleNorm:  titleNorm,
		Brand:      brand,
		Finger:     finger,
		ImgHash:    imgHash,
		PriceFinal: priceFinal,
	}
}
