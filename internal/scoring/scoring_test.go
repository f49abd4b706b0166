package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func TestFakeMSRPFalseWhenBaselineMissing(t *testing.T) {
	assert.False(t, IsFakeMSRP(i64(1000), nil, i64(500)))
	assert.False(t, IsFakeMSRP(i64(1000), f64(500), nil))
}

func TestFakeMSRPThreshold(t *testing.T) {
	assert.True(t, IsFakeMSRP(i64(1000), f64(600), i64(500)))
	assert.False(t, IsFakeMSRP(i64(700), f64(600), i64(500)))
}

func TestDiscountPct(t *testing.T) {
	got := DiscountPct(i64(1000), i64(800))
	assert.NotNil(t, got)
	assert.InDelta(t, 20.0, *got, 0.001)
}

func TestComputeScoreDefaultWeights(t *testing.T) {
	score := ComputeScore(f64(20), i64(2000), f64(4.5), nil, nil)
	assert.InDelta(t, 0.4*20+0.3*20+0.2*90+10.0, score, 0.01)
}
