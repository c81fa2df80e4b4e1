package services

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lis-trader/internal/models"
)

func pricePoints(ts time.Time, prices ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{SkinName: "a", Price: p, Ts: ts.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func TestComputeStats(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	st := ComputeStats(pricePoints(t0, 100, 102, 101, 104))

	assert.Equal(t, 4, st.N)
	assert.InDelta(t, 4.0, st.ChangeUSD, 1e-9)
	assert.InDelta(t, 0.04, st.ChangePct, 1e-9)
	assert.InDelta(t, 101.75, st.Mean, 1e-9)
	assert.InDelta(t, 1.70783, st.Std, 1e-4)
	assert.InDelta(t, st.Std/st.Mean, st.CV, 1e-9)
}

func TestComputeStatsEdgeCases(t *testing.T) {
	assert.Equal(t, SeriesStats{}, ComputeStats(nil))

	t0 := time.Now()
	one := ComputeStats(pricePoints(t0, 42))
	assert.Equal(t, 1, one.N)
	assert.Zero(t, one.ChangePct)
	assert.Zero(t, one.Std)

	// Non-finite samples are skipped, not propagated.
	pts := pricePoints(t0, 100, 110)
	pts = append(pts, models.PricePoint{Price: math.NaN(), Ts: t0.Add(3 * time.Hour)})
	st := ComputeStats(pts)
	assert.Equal(t, 2, st.N)
	assert.InDelta(t, 0.10, st.ChangePct, 1e-9)
}

func TestExtractFeatures(t *testing.T) {
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	unlock := now.Add(30*time.Minute + 90*time.Hour)
	created := now.Add(-95 * time.Minute)
	offer := models.Offer{
		SkinID:    9,
		SkinName:  "AWP | Atheris (Minimal Wear)",
		Price:     12.80,
		UnlockAt:  &unlock,
		CreatedAt: created,
	}
	t0 := now.Add(-100 * time.Hour)
	fts := ExtractFeatures(offer, pricePoints(t0, 12.00, 12.40, 12.80), 7, now)

	assert.Equal(t, 12.80, fts.PriceUSD)
	// 90.5h until unlock rounds up to the next full hour.
	assert.Equal(t, 91, fts.UnlockHours)
	assert.Equal(t, 95, fts.AgeMinutes)
	assert.Equal(t, 7, fts.HoldDays)
	assert.Equal(t, 3, fts.Samples)
	assert.InDelta(t, 0.80/12.00, fts.ChangePct, 1e-9)
}

func TestExtractFeaturesUnlockedAndFuturelessOffer(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	fts := ExtractFeatures(models.Offer{Price: 5, UnlockAt: &past, CreatedAt: now.Add(time.Minute)}, nil, 7, now)

	assert.Equal(t, 0, fts.UnlockHours, "expired lock counts as zero")
	assert.Equal(t, 0, fts.AgeMinutes, "future created_at clamps to zero")
	assert.Equal(t, 0, fts.Samples)
}
