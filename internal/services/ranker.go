package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"lis-trader/internal/config"
	"lis-trader/internal/models"
)

// DefaultResultLimit caps a ranking result when the request does not set one.
const DefaultResultLimit = 10

// volPenaltyWeight and volPenaltyCap shape the pre-score volatility penalty.
const (
	volPenaltyWeight = 0.10
	volPenaltyCap    = 1.5
)

// RankerConfig bundles the scan knobs.
type RankerConfig struct {
	ScanLimit      int
	FeeRate        float64
	HoldDays       int
	MinEdgeHoldPct float64
	LLMMode        config.LLMMode
	ModelBudget    int // candidates eligible for a model call in auto mode
}

// Ranker turns the live index into an ordered buy list: cheap pre-scoring
// over the whole pool, expensive forecasts for the head of it, then a
// net-of-fees edge sort.
type Ranker struct {
	index   *LiveIndex
	history *HistoryRecorder
	engine  *ForecastEngine
	cfg     RankerConfig
	clock   Clock
}

func NewRanker(index *LiveIndex, history *HistoryRecorder, engine *ForecastEngine, cfg RankerConfig, clock Clock) *Ranker {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 50
	}
	return &Ranker{index: index, history: history, engine: engine, cfg: cfg, clock: clock}
}

type scoredOffer struct {
	offer    models.Offer
	features models.Features
	prescore float64
}

// Rank runs one full ranking pass over the current index snapshot. A failed
// series fetch degrades that candidate to zero history rather than failing
// the pass.
func (r *Ranker) Rank(ctx context.Context, filters models.ScanFilters) []models.RankedCandidate {
	now := r.clock.Now()
	pool := r.pool(filters, now)
	if len(pool) == 0 {
		return []models.RankedCandidate{}
	}

	scored := make([]scoredOffer, 0, len(pool))
	for _, o := range pool {
		series, err := r.history.SeriesWindow(o.SkinName, historyWindow, now)
		if err != nil {
			slog.Debug("series fetch failed during scan", "skin", o.SkinName, "err", err)
			series = nil
		}
		fts := ExtractFeatures(o, series, r.cfg.HoldDays, now)
		scored = append(scored, scoredOffer{offer: o, features: fts, prescore: prescore(fts)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].prescore != scored[j].prescore {
			return scored[i].prescore > scored[j].prescore
		}
		return scored[i].offer.Price < scored[j].offer.Price
	})

	budget := r.modelBudget(len(scored))
	r.engine.ResetScan()

	out := make([]models.RankedCandidate, 0, len(scored))
	for i, c := range scored {
		f := r.engine.Resolve(ctx, c.offer.SkinName, c.features, i < budget)
		f = jitterForecast(f, lotJitterKey(c.offer))
		netPct := f.ExpUpPctHold - 2*r.cfg.FeeRate
		out = append(out, models.RankedCandidate{
			Offer:      c.offer,
			Forecast:   f,
			NetHoldPct: netPct,
			NetHoldUSD: c.offer.Price * netPct,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NetHoldPct != out[j].NetHoldPct {
			return out[i].NetHoldPct > out[j].NetHoldPct
		}
		return out[i].Offer.Price < out[j].Offer.Price
	})

	// Selection is by net edge alone; probability gates only the auto-buy
	// decision downstream.
	picked := make([]models.RankedCandidate, 0, len(out))
	for _, c := range out {
		if c.NetHoldPct >= r.cfg.MinEdgeHoldPct {
			picked = append(picked, c)
		}
	}
	// A populated pool never ranks empty: when nothing clears the
	// thresholds, surface the best available candidates instead.
	if len(picked) == 0 {
		picked = out
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	if len(picked) > limit {
		picked = picked[:limit]
	}
	return picked
}

// pool snapshots the index, applies request filters, deduplicates identical
// (name, price) listings and caps the pool at the scan limit, freshest
// offers first.
func (r *Ranker) pool(filters models.ScanFilters, now time.Time) []models.Offer {
	all := r.index.Snapshot()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	seen := make(map[string]struct{}, len(all))
	out := make([]models.Offer, 0, len(all))
	for _, o := range all {
		if filters.PriceFrom > 0 && o.Price < filters.PriceFrom {
			continue
		}
		if filters.PriceTo > 0 && o.Price > filters.PriceTo {
			continue
		}
		if filters.OnlyUnlocked && !o.Unlocked(now) {
			continue
		}
		key := fmt.Sprintf("%s|%g", o.SkinName, o.Price)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
		if len(out) >= r.cfg.ScanLimit {
			break
		}
	}
	return out
}

func prescore(fts models.Features) float64 {
	horizonH := float64(fts.UnlockHours + fts.HoldDays*24)
	vol := 0.0
	if fts.Std > 0 {
		vol = fts.Std / math.Max(fts.Mean, 1)
	}
	return fts.ChangePct*horizonH/168 - volPenaltyWeight*math.Min(volPenaltyCap, math.Max(0, vol))
}

func (r *Ranker) modelBudget(poolSize int) int {
	switch r.cfg.LLMMode {
	case config.LLMOff:
		return 0
	case config.LLMAll:
		return poolSize
	default:
		if r.cfg.ModelBudget < 0 {
			return 0
		}
		return r.cfg.ModelBudget
	}
}

// lotJitterKey ties the display jitter to the specific listing, so two lots
// of the same skin at the same price still render distinguishable numbers.
func lotJitterKey(o models.Offer) string {
	unlock := int64(0)
	if o.UnlockAt != nil {
		unlock = o.UnlockAt.Unix()
	}
	return fmt.Sprintf("%d|%g|%d|%d", o.SkinID, o.Price, o.CreatedAt.Unix(), unlock)
}
