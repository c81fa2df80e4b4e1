package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"lis-trader/internal/models"
)

// Display jitter amplitudes. Cosmetic only: repeated queries for an unchanged
// forecast should not show bit-identical numbers, while staying perfectly
// reproducible for the same key.
const (
	jitterAmpProb = 0.010
	jitterAmpPct  = 0.005
)

// labelEps separates "up"/"down" from "flat" on the hold-horizon move.
const labelEps = 0.003

// PredictRequest carries everything the external model needs for one skin.
type PredictRequest struct {
	Skin       string          `json:"skin"`
	PriceUSD   float64         `json:"price_usd"`
	ShortHours int             `json:"short_h"`
	HoldHours  int             `json:"hold_h"`
	PriorUp    float64         `json:"prior_up"`
	Stats      SeriesStats     `json:"hist_7d"`
	SeriesAbs  []float64       `json:"series_abs"`
	SeriesPct  []float64       `json:"series_pct_from_first"`
	Features   models.Features `json:"features"`
}

// ModelForecast is the raw output of the external prediction model, before
// blending and clamping.
type ModelForecast struct {
	Label         string  `json:"label"`
	ProbUpShort   float64 `json:"probUp_short"`
	ProbUpHold    float64 `json:"probUp_hold"`
	ExpUpPctShort float64 `json:"exp_up_pct_short"`
	ExpUpUSDShort float64 `json:"exp_up_usd_short"`
	ExpUpPctHold  float64 `json:"exp_up_pct_hold"`
	ExpUpUSDHold  float64 `json:"exp_up_usd_hold"`
}

// Predictor is the external prediction-model collaborator. Calls are fallible
// and must respect the request context.
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) (*ModelForecast, error)
}

// BlendWeights are the mixing weights used when tempering cached or model
// probabilities toward the heuristic prior. Tunables, not invariants.
type BlendWeights struct {
	CachedHold  float64 // pull of the fresh prior on a cached hold probability
	CachedShort float64 // pull of the short prior on a cached short probability
	ModelHold   float64 // share of the raw model output at the hold horizon
	ModelShort  float64 // share of the raw model output at the short horizon
}

// DefaultBlendWeights matches the tuning the system has been run with.
func DefaultBlendWeights() BlendWeights {
	return BlendWeights{CachedHold: 0.25, CachedShort: 0.15, ModelHold: 0.65, ModelShort: 0.85}
}

// ForecastConfig bundles the engine knobs.
type ForecastConfig struct {
	ShortHorizonHours int
	HoldDays          int
	CacheTTL          time.Duration
	PriceTolPct       float64
	UnlockTolHours    float64
	SeriesPointsMax   int
	SeriesStep        time.Duration
	Weights           BlendWeights
}

// ForecastEngine resolves a directional forecast per skin through three tiers
// of increasing cost: forecast cache, deterministic heuristic, external model
// call. Every tier-2/3 result is written through to the cache tagged with the
// price/unlock snapshot it was computed from.
type ForecastEngine struct {
	cache     ForecastStore
	history   *HistoryRecorder
	predictor Predictor // nil disables tier 3
	guard     *QuotaGuard
	cfg       ForecastConfig
	clock     Clock
}

func NewForecastEngine(cache ForecastStore, history *HistoryRecorder, predictor Predictor, guard *QuotaGuard, cfg ForecastConfig, clock Clock) *ForecastEngine {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.Weights == (BlendWeights{}) {
		cfg.Weights = DefaultBlendWeights()
	}
	return &ForecastEngine{
		cache:     cache,
		history:   history,
		predictor: predictor,
		guard:     guard,
		cfg:       cfg,
		clock:     clock,
	}
}

// ResetScan starts a new ranking pass: the per-scan model quota is restored.
func (e *ForecastEngine) ResetScan() {
	if e.guard != nil {
		e.guard.ResetScan()
	}
}

// Resolve produces the forecast for one skin. allowModel gates tier 3 on top
// of quota and configuration; every failure path degrades to the heuristic
// tier, so Resolve itself never fails.
func (e *ForecastEngine) Resolve(ctx context.Context, skinName string, fts models.Features, allowModel bool) models.Forecast {
	holdEff := fts.UnlockHours + fts.HoldDays*24
	if holdEff < 0 {
		holdEff = 0
	}
	prior, cv := e.priorUp(fts)

	meta := models.ForecastHorizons{
		ShortHours: e.cfg.ShortHorizonHours,
		HoldHours:  holdEff,
		PriceUSD:   fts.PriceUSD,
		PriorUp:    prior,
		ChangePct:  fts.ChangePct,
		Mean:       fts.Mean,
		Std:        fts.Std,
		Samples:    fts.Samples,
		CV:         cv,
	}
	jitterKey := fmt.Sprintf("%s|%g|%d", skinName, fts.PriceUSD, fts.UnlockHours)

	if cached, ok := e.fromCache(skinName, fts.PriceUSD, holdEff, prior); ok {
		cached.Horizons = meta
		cached.Source = models.SourceCached
		return jitterForecast(*cached, jitterKey)
	}

	if e.predictor == nil || !allowModel {
		return e.finishHeuristic(skinName, holdEff, prior, meta, jitterKey)
	}
	if e.guard != nil {
		if err := e.guard.Acquire(); err != nil {
			return e.finishHeuristic(skinName, holdEff, prior, meta, jitterKey)
		}
	}

	req := PredictRequest{
		Skin:       skinName,
		PriceUSD:   fts.PriceUSD,
		ShortHours: e.cfg.ShortHorizonHours,
		HoldHours:  holdEff,
		PriorUp:    prior,
		Stats: SeriesStats{
			N: fts.Samples, ChangePct: fts.ChangePct, ChangeUSD: fts.ChangeUSD,
			Mean: fts.Mean, Std: fts.Std, CV: cv,
		},
		Features: fts,
	}
	req.SeriesAbs, req.SeriesPct = e.compactSeries(skinName)

	raw, err := e.predictor.Predict(ctx, req)
	if err != nil {
		slog.Warn("model call failed, heuristic fallback", "skin", skinName, "err", err)
		return e.finishHeuristic(skinName, holdEff, prior, meta, jitterKey)
	}

	out := e.blendModel(raw, prior, fts.PriceUSD)
	out.Horizons = meta
	out.Source = models.SourceModel
	j := jitterForecast(out, jitterKey)
	e.writeThrough(skinName, fts.PriceUSD, holdEff, prior, j)
	return j
}

// priorUp derives the heuristic prior probability of increase from the
// historical trend, penalized by volatility and by low sample count, clamped
// to a safety band.
func (e *ForecastEngine) priorUp(fts models.Features) (prior, cv float64) {
	denom := fts.Mean
	if denom <= 0 {
		denom = fts.PriceUSD
	}
	if denom <= 0 {
		denom = 1
	}
	cv = clamp(fts.Std/denom, 0, 1.5)
	prior = 0.5 + clamp(fts.ChangePct*0.8, -0.20, 0.20)
	prior -= 0.10 * math.Min(1, cv)
	if fts.Samples < LowConfidenceSamples {
		prior = 0.5*0.6 + prior*0.4
	}
	return clamp(prior, 0.05, 0.95), cv
}

// shortPrior is the calibration target for the noisier short horizon.
func shortPrior(prior float64) float64 {
	return 0.5*0.6 + prior*0.4
}

func (e *ForecastEngine) heuristic(holdEff int, prior float64, meta models.ForecastHorizons) models.Forecast {
	expH := clampSym(meta.ChangePct * float64(holdEff) / 168)
	expS := clampSym(meta.ChangePct * float64(e.cfg.ShortHorizonHours) / 168)
	return models.Forecast{
		Label:         moveLabel(expH),
		ProbUpShort:   prior*0.6 + 0.5*0.4,
		ProbUpHold:    prior,
		ExpUpPctShort: expS,
		ExpUpUSDShort: meta.PriceUSD * expS,
		ExpUpPctHold:  expH,
		ExpUpUSDHold:  meta.PriceUSD * expH,
		Horizons:      meta,
		Source:        models.SourceHeuristic,
	}
}

func (e *ForecastEngine) finishHeuristic(skinName string, holdEff int, prior float64, meta models.ForecastHorizons, key string) models.Forecast {
	j := jitterForecast(e.heuristic(holdEff, prior, meta), key)
	e.writeThrough(skinName, meta.PriceUSD, holdEff, prior, j)
	return j
}

// fromCache validates TTL, price drift and unlock drift against the snapshot
// the record was computed from, and softly re-anchors stored probabilities to
// the fresh prior. Unparseable records count as misses.
func (e *ForecastEngine) fromCache(skinName string, priceUSD float64, holdEff int, prior float64) (*models.Forecast, bool) {
	rec, err := e.cache.GetForecastCache(skinName)
	if err != nil {
		slog.Warn("forecast cache read failed", "skin", skinName, "err", err)
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	if e.clock.Now().Sub(rec.Ts) > e.cfg.CacheTTL {
		return nil, false
	}
	if rec.PriceUSD > 0 {
		drift := math.Abs(priceUSD-rec.PriceUSD) / rec.PriceUSD
		if drift > e.cfg.PriceTolPct {
			return nil, false
		}
	}
	if math.Abs(float64(holdEff-rec.UnlockHours)) > e.cfg.UnlockTolHours {
		return nil, false
	}

	var f models.Forecast
	if err := json.Unmarshal([]byte(rec.ResponseJSON), &f); err != nil {
		return nil, false
	}

	w := e.cfg.Weights
	f.ProbUpHold = (1-w.CachedHold)*f.ProbUpHold + w.CachedHold*prior
	f.ProbUpShort = (1-w.CachedShort)*f.ProbUpShort + w.CachedShort*shortPrior(prior)
	return &f, true
}

// blendModel tempers raw model probabilities with the prior and clamps the
// expected moves to valid ranges.
func (e *ForecastEngine) blendModel(raw *ModelForecast, prior, priceUSD float64) models.Forecast {
	w := e.cfg.Weights
	pctS := clampSym(raw.ExpUpPctShort)
	pctH := clampSym(raw.ExpUpPctHold)
	usdS := raw.ExpUpUSDShort
	if usdS == 0 || math.IsNaN(usdS) || math.IsInf(usdS, 0) {
		usdS = priceUSD * pctS
	}
	usdH := raw.ExpUpUSDHold
	if usdH == 0 || math.IsNaN(usdH) || math.IsInf(usdH, 0) {
		usdH = priceUSD * pctH
	}
	return models.Forecast{
		Label:         moveLabel(pctH),
		ProbUpShort:   w.ModelShort*clamp01(raw.ProbUpShort) + (1-w.ModelShort)*shortPrior(prior),
		ProbUpHold:    w.ModelHold*clamp01(raw.ProbUpHold) + (1-w.ModelHold)*prior,
		ExpUpPctShort: pctS,
		ExpUpUSDShort: usdS,
		ExpUpPctHold:  pctH,
		ExpUpUSDHold:  usdH,
	}
}

// compactSeries prepares the trailing-week series for the model payload:
// resampled into fixed steps, then capped via piecewise aggregation.
func (e *ForecastEngine) compactSeries(skinName string) (abs, pct []float64) {
	if e.history == nil {
		return nil, nil
	}
	points, err := e.history.SeriesWindow(skinName, historyWindow, e.clock.Now())
	if err != nil {
		slog.Debug("series fetch failed", "skin", skinName, "err", err)
		return nil, nil
	}
	capped := downsamplePAA(resampleByStep(toSeriesPoints(points), e.cfg.SeriesStep), e.cfg.SeriesPointsMax)
	abs = make([]float64, len(capped))
	for i, p := range capped {
		abs[i] = math.Round(p.Price*1e4) / 1e4
	}
	return abs, toPctFromFirst(capped)
}

func (e *ForecastEngine) writeThrough(skinName string, priceUSD float64, holdEff int, prior float64, f models.Forecast) {
	body, err := json.Marshal(f)
	if err != nil {
		return
	}
	rec := models.ForecastCache{
		SkinName:     skinName,
		PriceUSD:     priceUSD,
		UnlockHours:  holdEff,
		PriorUp:      prior,
		ResponseJSON: string(body),
		Ts:           e.clock.Now(),
	}
	if err := e.cache.PutForecastCache(rec); err != nil {
		slog.Warn("forecast cache write failed", "skin", skinName, "err", err)
	}
}

// jitterForecast applies the deterministic display jitter. Label is
// recomputed from the jittered hold move so it stays consistent with the
// numbers shown.
func jitterForecast(f models.Forecast, key string) models.Forecast {
	out := f
	out.ProbUpShort = jitterProb(f.ProbUpShort, key+":ps", jitterAmpProb)
	out.ProbUpHold = jitterProb(f.ProbUpHold, key+":ph", jitterAmpProb)
	out.ExpUpPctShort = clampSym(jitterVal(f.ExpUpPctShort, key+":dS", jitterAmpPct))
	out.ExpUpPctHold = clampSym(jitterVal(f.ExpUpPctHold, key+":dH", jitterAmpPct))
	price := f.Horizons.PriceUSD
	out.ExpUpUSDShort = price * out.ExpUpPctShort
	out.ExpUpUSDHold = price * out.ExpUpPctHold
	out.Label = moveLabel(out.ExpUpPctHold)
	return out
}

func moveLabel(expHoldPct float64) string {
	switch {
	case expHoldPct > labelEps:
		return "up"
	case expHoldPct < -labelEps:
		return "down"
	default:
		return "flat"
	}
}
