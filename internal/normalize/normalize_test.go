package normalize

import (
	"testing"

	"github.com/dealwatch/scout/internal/models"
	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64 { return &v }
func i(v int) *int       { return &v }

func TestFingerprintEqualForSameTitleAndBrand(t *testing.T) {
	brand := "Samsung"
	f1 := Fingerprint(NormTitle("Samsung Galaxy S23  "), &brand, nil)
	f2 := Fingerprint(NormTitle(" samsung galaxy s23"), &brand, nil)
	assert.Equal(t, f1, f2)
}

func TestComputeFinalPrice(t *testing.T) {
	cases := []struct {
		name             string
		price            *int64
		promo            models.PromoFlags
		shippingDays     *int
		shippingIncluded bool
		subscription     bool
		priceInCart      bool
		want             *int64
	}{
		{
			name:        "price in cart is always null",
			price:       i64(1000),
			priceInCart: true,
			want:        nil,
		},
		{
			name:         "coupon plus shipping",
			price:        i64(1000),
			promo:        models.PromoFlags{"instant_coupon": 100},
			shippingDays: i(3),
			want:         i64(1099),
		},
		{
			name:         "subscription waives shipping",
			price:        i64(1000),
			shippingDays: i(5),
			subscription: true,
			want:         i64(1000),
		},
		{
			name:             "shipping already included",
			price:            i64(1000),
			shippingDays:     i(2),
			shippingIncluded: true,
			want:             i64(1000),
		},
		{
			name:  "nil price stays nil",
			price: nil,
			want:  nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeFinalPrice(tc.price, tc.promo, tc.shippingDays, tc.shippingIncluded, tc.subscription, tc.priceInCart, 199)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				assert.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}
