package dedupe

import (
	"testing"

	"github.com/dealwatch/scout/internal/models"
	"github.com/stretchr/testify/assert"
)

func p(v int64) *int64 { return &v }
func s(v string) *string { return &v }

func offer(finger string, img *string, price int64) models.NormalizedOffer {
	return models.NormalizedOffer{
		RawOffer:   models.RawOffer{URL: finger},
		Finger:     finger,
		ImgHash:    img,
		PriceFinal: p(price),
	}
}

func TestDedupeByImage(t *testing.T) {
	img := s("i1")
	a := offer("f1", img, 100)
	b := offer("f2", img, 90)
	out := Dedupe([]models.NormalizedOffer{a, b})
	assert.Len(t, out, 1)
	assert.Equal(t, int64(90), *out[0].PriceFinal)
}

func TestDedupeOutputLengthNeverExceedsInput(t *testing.T) {
	offers := []models.NormalizedOffer{
		offer("f1", nil, 50),
		offer("f1", nil, 40),
		offer("f2", nil, 30),
	}
	out := Dedupe(offers)
	assert.LessOrEqual(t, len(out), len(offers))
	for _, o := range out {
		if o.Finger == "f1" {
			assert.Equal(t, int64(40), *o.PriceFinal)
		}
	}
}

func TestDedupeNoImageUsesFingerOnly(t *testing.T) {
	out := Dedupe([]models.NormalizedOffer{
		offer("f1", nil, 100),
		offer("f1", nil, 50),
	})
	assert.Len(t, out, 1)
	assert.Equal(t, int64(50), *out[0].PriceFinal)
}
