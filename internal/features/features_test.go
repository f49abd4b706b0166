package features

import (
	"testing"
	"time"

	"github.com/dealwatch/scout/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestWindowAndTrendScenario(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	history := []models.PriceHistory{
		{Ts: now.Add(-40 * day), PriceFinal: 200},
		{Ts: now.Add(-20 * day), PriceFinal: 100},
		{Ts: now.Add(-10 * day), PriceFinal: 80},
		{Ts: now.Add(-1 * day), PriceFinal: 120},
	}

	s30 := WindowStats(history, now, 30*day)
	assert.InDelta(t, 100, s30.Avg, 0.01)
	assert.Equal(t, int64(80), s30.Min)

	s90 := WindowStats(history, now, 90*day)
	assert.InDelta(t, 125, s90.Avg, 0.01)
	assert.Equal(t, int64(80), s90.Min)

	trend := Trend30d(history, now)
	assert.NotNil(t, trend)
}

func TestTrendNilWithFewerThanTwoPoints(t *testing.T) {
	now := time.Now()
	history := []models.PriceHistory{{Ts: now.Add(-1 * time.Hour), PriceFinal: 100}}
	assert.Nil(t, Trend30d(history, now))
}

func TestTrendNilWhenFirstPriceZero(t *testing.T) {
	now := time.Now()
	history := []models.PriceHistory{
		{Ts: now.Add(-10 * 24 * time.Hour), PriceFinal: 0},
		{Ts: now.Add(-5 * 24 * time.Hour), PriceFinal: 50},
	}
	assert.Nil(t, Trend30d(history, now))
}
