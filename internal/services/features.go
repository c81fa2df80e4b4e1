package services

import (
	"math"
	"time"

	"lis-trader/internal/models"
)

// historyWindow is the trailing window the trend features are measured over.
const historyWindow = 168 * time.Hour

// LowConfidenceSamples is the sample count below which the trend estimate is
// treated as low-confidence by the forecast prior.
const LowConfidenceSamples = 6

// SeriesStats summarizes a price series: sample count, total-period change,
// mean, sample standard deviation (n-1) and coefficient of variation.
type SeriesStats struct {
	N         int     `json:"n"`
	ChangePct float64 `json:"change_pct"`
	ChangeUSD float64 `json:"change_usd"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	CV        float64 `json:"cv"`
}

// ComputeStats is pure; it performs no I/O.
func ComputeStats(points []models.PricePoint) SeriesStats {
	var s SeriesStats
	prices := make([]float64, 0, len(points))
	for _, p := range points {
		if !math.IsNaN(p.Price) && !math.IsInf(p.Price, 0) {
			prices = append(prices, p.Price)
		}
	}
	s.N = len(prices)
	if s.N == 0 {
		return s
	}
	first, last := prices[0], prices[s.N-1]
	s.ChangeUSD = last - first
	if first > 0 {
		s.ChangePct = s.ChangeUSD / first
	}
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	s.Mean = sum / float64(s.N)
	variance := 0.0
	for _, p := range prices {
		variance += (p - s.Mean) * (p - s.Mean)
	}
	variance /= math.Max(1, float64(s.N-1))
	s.Std = math.Sqrt(variance)
	if s.Mean > 0 {
		s.CV = s.Std / s.Mean
	}
	return s
}

// ExtractFeatures maps an offer and its trailing history window to the
// bounded feature set used by pre-scoring and forecasting. Pure.
func ExtractFeatures(offer models.Offer, series []models.PricePoint, holdDays int, now time.Time) models.Features {
	unlockH := 0
	if offer.UnlockAt != nil && offer.UnlockAt.After(now) {
		unlockH = int(math.Ceil(offer.UnlockAt.Sub(now).Hours()))
	}
	ageMin := 0
	if now.After(offer.CreatedAt) {
		ageMin = int(math.Round(now.Sub(offer.CreatedAt).Minutes()))
	}
	st := ComputeStats(series)
	return models.Features{
		PriceUSD:    offer.Price,
		AgeMinutes:  ageMin,
		UnlockHours: unlockH,
		HoldDays:    holdDays,
		ChangePct:   st.ChangePct,
		ChangeUSD:   st.ChangeUSD,
		Mean:        st.Mean,
		Std:         st.Std,
		Samples:     st.N,
	}
}
