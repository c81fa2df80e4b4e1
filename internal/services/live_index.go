package services

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"lis-trader/internal/models"
)

// snapGuardMax bounds the per-skin snapshot timer map; above it, entries idle
// for over an hour are pruned.
const snapGuardMax = 5000

// SnapshotSink receives price observations that passed the per-skin snapshot
// rate limit. Implemented by HistoryRecorder.
type SnapshotSink interface {
	AppendIfChanged(name string, id int64, price float64, ts time.Time) (bool, error)
}

// LiveIndex maintains the best-known current offer per skin name, fed by the
// marketplace event stream. Entries that stop receiving updates are removed
// by periodic GC rather than by feed delete events: a removed lot does not
// mean the skin's fair price changed.
type LiveIndex struct {
	mu     sync.RWMutex
	offers map[string]*models.Offer

	snapMu          sync.Mutex
	snapGuard       map[string]time.Time
	snapMinInterval time.Duration

	sink  SnapshotSink
	clock Clock
}

func NewLiveIndex(sink SnapshotSink, snapMinInterval time.Duration, clock Clock) *LiveIndex {
	if clock == nil {
		clock = SystemClock()
	}
	return &LiveIndex{
		offers:          make(map[string]*models.Offer),
		snapGuard:       make(map[string]time.Time),
		snapMinInterval: snapMinInterval,
		sink:            sink,
		clock:           clock,
	}
}

// Upsert applies one feed event. Malformed events are dropped; delete events
// leave the last known price in place until superseded. Never returns an
// error: the index is a continuously-running stream consumer.
func (li *LiveIndex) Upsert(ev models.PriceEvent) bool {
	if ev.Event == models.EventSkinDeleted {
		return false
	}
	if ev.Name == "" || math.IsNaN(ev.Price) || math.IsInf(ev.Price, 0) || ev.Price < 0 {
		return false
	}

	now := li.clock.Now()

	li.mu.Lock()
	prev, ok := li.offers[ev.Name]
	created := now
	if ok {
		created = prev.CreatedAt
	} else if ev.CreatedAt != nil {
		created = *ev.CreatedAt
	}
	li.offers[ev.Name] = &models.Offer{
		SkinID:    ev.ID,
		SkinName:  ev.Name,
		Price:     ev.Price,
		UnlockAt:  ev.UnlockAt,
		CreatedAt: created,
		UpdatedAt: now,
	}
	li.mu.Unlock()

	if li.sink != nil && li.canSnapshot(ev.Name, now) {
		if _, err := li.sink.AppendIfChanged(ev.Name, ev.ID, ev.Price, now); err != nil {
			// Store trouble must not take down the ingestion path.
			slog.Warn("history append failed", "skin", ev.Name, "err", err)
		}
	}
	return true
}

// Get returns the current offer for name, or nil.
func (li *LiveIndex) Get(name string) *models.Offer {
	li.mu.RLock()
	defer li.mu.RUnlock()
	o, ok := li.offers[name]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// Snapshot returns a point-in-time copy of all current offers. It is not
// isolated from concurrent upserts; a scan may see slightly stale prices.
func (li *LiveIndex) Snapshot() []models.Offer {
	li.mu.RLock()
	defer li.mu.RUnlock()
	out := make([]models.Offer, 0, len(li.offers))
	for _, o := range li.offers {
		out = append(out, *o)
	}
	return out
}

// Len reports the number of indexed skins.
func (li *LiveIndex) Len() int {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return len(li.offers)
}

// GC removes every entry not updated within maxAge and returns the removal
// count.
func (li *LiveIndex) GC(maxAge time.Duration) int {
	cutoff := li.clock.Now().Add(-maxAge)
	li.mu.Lock()
	defer li.mu.Unlock()
	removed := 0
	for name, o := range li.offers {
		if o.UpdatedAt.Before(cutoff) {
			delete(li.offers, name)
			removed++
		}
	}
	return removed
}

// canSnapshot rate-limits history writes per skin so that very chatty skins
// cannot amplify write volume. The guard map is bounded; when it outgrows
// snapGuardMax, entries idle for an hour are pruned.
func (li *LiveIndex) canSnapshot(name string, now time.Time) bool {
	li.snapMu.Lock()
	defer li.snapMu.Unlock()
	if last, ok := li.snapGuard[name]; ok && now.Sub(last) < li.snapMinInterval {
		return false
	}
	li.snapGuard[name] = now
	if len(li.snapGuard) > snapGuardMax {
		cutoff := now.Add(-time.Hour)
		for k, v := range li.snapGuard {
			if v.Before(cutoff) {
				delete(li.snapGuard, k)
			}
		}
	}
	return true
}
