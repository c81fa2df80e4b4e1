package services

import (
	"sync"
	"time"

	"lis-trader/internal/models"
)

// HistoryRecorder appends deduplicated price points to the series store. A
// point is written when no prior point exists, when the absolute price delta
// exceeds the absolute epsilon, or when the minimum time gap has elapsed and
// the relative change exceeds the relative epsilon. Stored points are never
// mutated.
type HistoryRecorder struct {
	store       SeriesStore
	absEpsilon  float64
	relEpsilon  float64
	minGap      time.Duration
	mu          sync.Mutex
	lastPoint   map[string]lastPoint
}

type lastPoint struct {
	price float64
	ts    time.Time
}

func NewHistoryRecorder(store SeriesStore, absEpsilon, relEpsilon float64, minGap time.Duration) *HistoryRecorder {
	return &HistoryRecorder{
		store:      store,
		absEpsilon: absEpsilon,
		relEpsilon: relEpsilon,
		minGap:     minGap,
		lastPoint:  make(map[string]lastPoint),
	}
}

// AppendIfChanged records (name, price, ts) when the dedup rules accept it.
// Returns true when a point was written.
func (h *HistoryRecorder) AppendIfChanged(name string, id int64, price float64, ts time.Time) (bool, error) {
	h.mu.Lock()
	last, ok := h.lastPoint[name]
	h.mu.Unlock()

	if !ok {
		// Cold cache: consult the persistent store once.
		p, err := h.store.LastPricePoint(name)
		if err != nil {
			return false, err
		}
		if p != nil {
			last = lastPoint{price: p.Price, ts: p.Ts}
			ok = true
			h.mu.Lock()
			h.lastPoint[name] = last
			h.mu.Unlock()
		}
	}

	if ok && !h.accept(last, price, ts) {
		return false, nil
	}

	err := h.store.InsertPricePoint(models.PricePoint{
		SkinName: name,
		SkinID:   id,
		Price:    price,
		Ts:       ts,
	})
	if err != nil {
		return false, err
	}

	h.mu.Lock()
	h.lastPoint[name] = lastPoint{price: price, ts: ts}
	h.mu.Unlock()
	return true, nil
}

func (h *HistoryRecorder) accept(last lastPoint, price float64, ts time.Time) bool {
	delta := price - last.price
	if delta < 0 {
		delta = -delta
	}
	if delta > h.absEpsilon {
		return true
	}
	if ts.Sub(last.ts) < h.minGap {
		return false
	}
	base := last.price
	if base < 1e-9 {
		base = 1e-9
	}
	return delta/base > h.relEpsilon
}

// QuerySeries returns the stored points for name ascending by time,
// optionally windowed and capped.
func (h *HistoryRecorder) QuerySeries(name string, since time.Time, limit int) ([]models.PricePoint, error) {
	return h.store.QuerySeries(name, since, limit)
}

// SeriesWindow returns the points of the trailing window ending now.
func (h *HistoryRecorder) SeriesWindow(name string, window time.Duration, now time.Time) ([]models.PricePoint, error) {
	return h.store.QuerySeries(name, now.Add(-window), 0)
}
