package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lis-trader/internal/database"
	"lis-trader/internal/models"
)

type fakePredictor struct {
	calls   int
	lastReq PredictRequest
	resp    *ModelForecast
	err     error
}

func (p *fakePredictor) Predict(_ context.Context, req PredictRequest) (*ModelForecast, error) {
	p.calls++
	p.lastReq = req
	return p.resp, p.err
}

func testForecastCfg() ForecastConfig {
	return ForecastConfig{
		ShortHorizonHours: 3,
		HoldDays:          7,
		CacheTTL:          180 * time.Minute,
		PriceTolPct:       0.015,
		UnlockTolHours:    6,
		SeriesPointsMax:   96,
		SeriesStep:        time.Hour,
	}
}

func risingFeatures() models.Features {
	return models.Features{
		PriceUSD:    100,
		UnlockHours: 0,
		HoldDays:    7,
		ChangePct:   0.10,
		ChangeUSD:   10,
		Mean:        100,
		Std:         5,
		Samples:     24,
	}
}

func newTestEngine(predictor Predictor, guard *QuotaGuard, clock Clock) (*ForecastEngine, *database.MemoryStore) {
	store := database.NewMemoryStore()
	rec := NewHistoryRecorder(store, 0.0001, 0.0005, 0)
	return NewForecastEngine(store, rec, predictor, guard, testForecastCfg(), clock), store
}

func TestResolveHeuristicTier(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, store := newTestEngine(nil, nil, clock)

	f := engine.Resolve(context.Background(), "AK-47 | Redline (Field-Tested)", risingFeatures(), true)

	assert.Equal(t, models.SourceHeuristic, f.Source)
	// prior = 0.5 + 0.8*0.10 - 0.10*cv, cv = 5/100.
	assert.InDelta(t, 0.575, f.ProbUpHold, jitterAmpProb+1e-9)
	assert.InDelta(t, 0.575*0.6+0.2, f.ProbUpShort, jitterAmpProb+1e-9)
	// Trend over the full 168h hold horizon.
	assert.InDelta(t, 0.10, f.ExpUpPctHold, jitterAmpPct+1e-9)
	assert.InDelta(t, 0.10*3.0/168.0, f.ExpUpPctShort, jitterAmpPct+1e-9)
	assert.InDelta(t, f.ExpUpPctHold*100, f.ExpUpUSDHold, 1e-9)
	assert.Equal(t, "up", f.Label)

	// Every produced forecast is written through.
	rec, err := store.GetForecastCache("AK-47 | Redline (Field-Tested)")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 100.0, rec.PriceUSD)
	assert.Equal(t, 168, rec.UnlockHours)
}

func TestResolveLowSamplePriorShrinksTowardNeutral(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, _ := newTestEngine(nil, nil, clock)

	fts := risingFeatures()
	fts.Samples = 3
	f := engine.Resolve(context.Background(), "thin-history", fts, true)

	assert.InDelta(t, 0.5*0.6+0.575*0.4, f.ProbUpHold, jitterAmpProb+1e-9)
}

func TestResolveCacheHit(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, _ := newTestEngine(nil, nil, clock)
	fts := risingFeatures()

	first := engine.Resolve(context.Background(), "skin", fts, true)
	require.Equal(t, models.SourceHeuristic, first.Source)

	clock.Advance(time.Hour)
	second := engine.Resolve(context.Background(), "skin", fts, true)
	assert.Equal(t, models.SourceCached, second.Source)
	assert.InDelta(t, first.ProbUpHold, second.ProbUpHold, 2*jitterAmpProb+0.25)
}

func TestResolveCacheMissOnTTL(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, _ := newTestEngine(nil, nil, clock)
	fts := risingFeatures()

	engine.Resolve(context.Background(), "skin", fts, true)
	clock.Advance(181 * time.Minute)
	f := engine.Resolve(context.Background(), "skin", fts, true)
	assert.Equal(t, models.SourceHeuristic, f.Source)
}

func TestResolveCacheMissOnPriceDrift(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, _ := newTestEngine(nil, nil, clock)
	fts := risingFeatures()

	engine.Resolve(context.Background(), "skin", fts, true)

	fts.PriceUSD = 103 // 3% above the cached snapshot, tolerance is 1.5%
	f := engine.Resolve(context.Background(), "skin", fts, true)
	assert.Equal(t, models.SourceHeuristic, f.Source)
}

func TestResolveCacheMissOnUnlockDrift(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, _ := newTestEngine(nil, nil, clock)
	fts := risingFeatures()

	engine.Resolve(context.Background(), "skin", fts, true)

	fts.UnlockHours = 8 // horizon moved by 8h, tolerance is 6h
	f := engine.Resolve(context.Background(), "skin", fts, true)
	assert.Equal(t, models.SourceHeuristic, f.Source)
}

func TestResolveCorruptCacheIsMiss(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, store := newTestEngine(nil, nil, clock)
	fts := risingFeatures()

	require.NoError(t, store.PutForecastCache(models.ForecastCache{
		SkinName:     "skin",
		PriceUSD:     100,
		UnlockHours:  168,
		ResponseJSON: "{not json",
		Ts:           clock.Now(),
	}))

	f := engine.Resolve(context.Background(), "skin", fts, true)
	assert.Equal(t, models.SourceHeuristic, f.Source)
}

func TestResolveModelTierBlendsWithPrior(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	predictor := &fakePredictor{resp: &ModelForecast{
		Label:         "up",
		ProbUpShort:   1.0,
		ProbUpHold:    1.0,
		ExpUpPctShort: 0.05,
		ExpUpPctHold:  0.20,
	}}
	guard := NewQuotaGuard(6, 0, clock)
	engine, _ := newTestEngine(predictor, guard, clock)

	f := engine.Resolve(context.Background(), "skin", risingFeatures(), true)

	require.Equal(t, 1, predictor.calls)
	assert.Equal(t, models.SourceModel, f.Source)
	// A saturated model output is pulled back toward the prior.
	assert.InDelta(t, 0.65*1.0+0.35*0.575, f.ProbUpHold, jitterAmpProb+1e-9)
	assert.InDelta(t, 0.85*1.0+0.15*0.53, f.ProbUpShort, jitterAmpProb+1e-9)
	assert.InDelta(t, 0.20, f.ExpUpPctHold, jitterAmpPct+1e-9)
	assert.Equal(t, "up", f.Label)

	// Request carried the prior and horizons.
	assert.InDelta(t, 0.575, predictor.lastReq.PriorUp, 1e-9)
	assert.Equal(t, 168, predictor.lastReq.HoldHours)
	assert.Equal(t, 3, predictor.lastReq.ShortHours)
}

func TestResolveQuotaExhaustionFallsBack(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	predictor := &fakePredictor{resp: &ModelForecast{ProbUpHold: 0.9, ProbUpShort: 0.9}}
	guard := NewQuotaGuard(1, 0, clock)
	engine, _ := newTestEngine(predictor, guard, clock)

	a := engine.Resolve(context.Background(), "first", risingFeatures(), true)
	b := engine.Resolve(context.Background(), "second", risingFeatures(), true)

	assert.Equal(t, 1, predictor.calls)
	assert.Equal(t, models.SourceModel, a.Source)
	assert.Equal(t, models.SourceHeuristic, b.Source)
}

func TestResolveModelErrorFallsBack(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	predictor := &fakePredictor{err: errors.New("upstream 503")}
	guard := NewQuotaGuard(6, 0, clock)
	engine, store := newTestEngine(predictor, guard, clock)

	f := engine.Resolve(context.Background(), "skin", risingFeatures(), true)

	assert.Equal(t, models.SourceHeuristic, f.Source)
	// The fallback is still cached, so the next pass does not retry
	// immediately.
	rec, err := store.GetForecastCache("skin")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestResolveRespectsAllowModel(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	predictor := &fakePredictor{resp: &ModelForecast{ProbUpHold: 0.9}}
	guard := NewQuotaGuard(6, 0, clock)
	engine, _ := newTestEngine(predictor, guard, clock)

	f := engine.Resolve(context.Background(), "skin", risingFeatures(), false)

	assert.Zero(t, predictor.calls)
	assert.Equal(t, models.SourceHeuristic, f.Source)
}

func TestJitterForecastDeterministicPerKey(t *testing.T) {
	f := models.Forecast{
		ProbUpShort:  0.55,
		ProbUpHold:   0.60,
		ExpUpPctHold: 0.04,
		Horizons:     models.ForecastHorizons{PriceUSD: 50},
	}
	a := jitterForecast(f, "name|50|48")
	b := jitterForecast(f, "name|50|48")
	c := jitterForecast(f, "name|51|48")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.ProbUpHold, c.ProbUpHold)
	assert.InDelta(t, f.ProbUpHold, a.ProbUpHold, jitterAmpProb)
	assert.InDelta(t, f.ExpUpPctHold, a.ExpUpPctHold, jitterAmpPct)
	assert.InDelta(t, 50*a.ExpUpPctHold, a.ExpUpUSDHold, 1e-12)
}
