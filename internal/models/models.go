// Package models defines the canonical product/offer/history data model.
package models

import "time"

// Product is the canonical entity per (source, external_id), also unique
// on URL. Rolling aggregates are maintained by the features component.
type Product struct {
	ID           int64
	Source       string
	ExternalID   string
	URL          string
	Title        string
	ImageURL     string
	ImgHash      *string
	Brand        *string
	Category     string
	Finger       string
	Geoid        string
	AvgPrice30d  *float64
	MinPrice30d  *int64
	AvgPrice90d  *float64
	MinPrice90d  *int64
	Trend30d     *float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PromoFlags is a tagged label->value map (int or bool), e.g.
// {"instant_coupon": 100} or {"cashback": true}.
type PromoFlags map[string]any

// IntFlag returns the integer value of a promo flag, or 0 if absent or
// not an integer-compatible value.
func (p PromoFlags) IntFlag(key string) int {
	v, ok := p[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Offer is a per-observation snapshot of a product at a seller/point in
// time, with derived pricing and scoring fields filled by the pipeline.
type Offer struct {
	ID               int64
	ProductID        int64
	Price            *int64
	PriceOld         *int64
	PriceFinal       *int64
	Seller           string
	SellerRating     *float64
	ShippingDays     *int
	PromoFlags       PromoFlags
	ShippingIncluded bool
	PriceInCart      bool
	Subscription     bool
	ObservedAt       time.Time
	DiscountPct      *float64
	AbsSaving        *int64
	Score            *float64
	FakeMSRP         bool
}

// PriceHistory is an append-only observation row, the source of truth for
// rolling feature computation. Rows are never mutated after insert.
type PriceHistory struct {
	ID         int64
	ProductID  int64
	Ts         time.Time
	PriceFinal int64
	Seller     string
}

// Event is a typed log entry (e.g. price-drop) attached to a product.
type Event struct {
	ID        int64
	ProductID int64
	Type      string
	Payload   map[string]any
	Ts        time.Time
}

// ScoreWeights overrides the default weighted-score coefficients.
type ScoreWeights struct {
	Discount *float64
	Abs      *float64
	Seller   *float64
	Shipping *float64
	Base     *float64
}

// User is a notification recipient identified by chat ID.
type User struct {
	ID            int64
	ChatID        int64
	Geoid         string
	MinDiscount   int
	MinScore      int
	Categories    []string
	Weights       *ScoreWeights
	ScheduleCron  *string
}

// Favorite pins a product for a user with optional per-pin overrides.
type Favorite struct {
	ID          int64
	UserID      int64
	ProductID   int64
	Geoid       *string
	MinDiscount *int
	MinScore    *int
	Schedule    *string
}

// RawOffer is the adapter-produced, unnormalized representation of a
// single listing card or product page.
type RawOffer struct {
	Source           string
	Title            string
	URL              string
	Img              *string
	Price            *int64
	PriceOld         *int64
	Seller           string
	SellerRating     *float64
	ShippingDays     *int
	PromoFlags       PromoFlags
	ShippingIncluded bool
	PriceInCart      bool
	Subscription     bool
	Geoid            *string
}

// NormalizedOffer is a RawOffer after title/brand/fingerprint/pricing
// normalization, ready for dedupe and upsert.
type NormalizedOffer struct {
	RawOffer
	TitleNorm  string
	Brand      *string
	Model      *string
	Finger     string
	ImgHash    *string
	PriceFinal *int64
	ExternalID string
}

// TaskPayload is the wire format published onto the work queue.
type TaskPayload struct {
	Site        string        `json:"site"`
	URL         string        `json:"url"`
	Geoid       string        `json:"geoid"`
	Category    string        `json:"category"`
	MinDiscount int           `json:"min_discount"`
	MinScore    int           `json:"min_score"`
	Notify      bool          `json:"notify"`
	URLTemplate string        `json:"url_template,omitempty"`
	Page        int           `json:"page,omitempty"`
	ChatID      *int64        `json:"chat_id,omitempty"`
	Weights     *ScoreWeights `json:"weights,omitempty"`

	IdempotencyKey string `json:"idempotency_key"`
	Retries        int    `json:"retries,omitempty"`
}
