// Package features computes rolling price statistics and the 30-day
// linear trend from a product's append-only price history, in the style
// of the teacher's VolumeService liquidity/volatility computations.
package features

import (
	"time"

	"github.com/dealwatch/scout/internal/models"
)

// Stats holds an average and minimum price over a window.
type Stats struct {
	Avg float64
	Min int64
}

// WindowStats computes {avg, min} over history rows with ts >= now-window.
// Returns nil if no rows fall within the window.
func WindowStats(history []models.PriceHistory, now time.Time, window time.Duration) *Stats {
	cutoff := now.Add(-window)
	var sum, count, min float64
	first := true
	for _, h := range history {
		if h.Ts.Before(cutoff) {
			continue
		}
		sum += float64(h.PriceFinal)
		count++
		if first || float64(h.PriceFinal) < min {
			min = float64(h.PriceFinal)
			first = false
		}
	}
	if count == 0 {
		return nil
	}
	return &Stats{Avg: sum / count, Min: int64(min)}
}

// Trend30d computes the 30-day percent trend by ordinary-least-squares
// slope of price_final against days-since-first-point within the 30-day
// window, projected over 30 days relative to the first observed price:
// trend = slope * 30 / first_price * 100, rounded to two decimals.
// Returns nil with fewer than 2 points in the window or a zero first
// price (see Boundary conditions).
func Trend30d(history []models.PriceHistory, now time.Time) *float64 {
	cutoff := now.Add(-30 * 24 * time.Hour)
	type point struct {
		days  float64
		price float64
	}
	var pts []point
	var first *models.PriceHistory
	for i := range history {
		h := history[i]
		if h.Ts.Before(cutoff) {
			continue
		}
		if first == nil || h.Ts.Before(first.Ts) {
			first = &h
		}
	}
	if first == nil {
		return nil
	}
	for i := range history {
		h := history[i]
		if h.Ts.Before(cutoff) {
			continue
		}
		days := h.Ts.Sub(first.Ts).Hours() / 24
		pts = append(pts, point{days: days, price: float64(h.PriceFinal)})
	}
	if len(pts) < 2 {
		return nil
	}
	if first.PriceFinal == 0 {
		return nil
	}

	var n, sumX, sumY, sumXY, sumXX float64
	for _, pt := range pts {
		n++
		sumX += pt.days
		sumY += pt.price
		sumXY += pt.days * pt.price
		sumXX += pt.days * pt.days
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom

	trend := round2(slope * 30 / float64(first.PriceFinal) * 100)
	return &trend
}

func round2(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Compute derives all persisted Product aggregates from a product's full
// price history at the given instant.
type Aggregates struct {
	Avg30d  *float64
	Min30d  *int64
	Avg90d  *float64
	Min90d  *int64
	Trend   *float64
}

func Compute(history []models.PriceHistory, now time.Time) Aggregates {
	var agg Aggregates
	if s30 := WindowStats(history, now, 30*24*time.Hour); s30 != nil {
		agg.Avg30d, agg.Min30d = &s30.Avg, &s30.Min
	}
	if s90 := WindowStats(history, now, 90*24*time.Hour); s90 != nil {
		agg.Avg90d, agg.Min90d = &s90.Avg, &s90.Min
	}
	agg.Trend = Trend30d(history, now)
	return agg
}
