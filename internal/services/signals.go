package services

import (
	"log/slog"
	"sync"
	"time"
)

// Signal kinds emitted by the watcher.
const (
	SignalTakeProfit = "take_profit"
	SignalStopLoss   = "stop_loss"
)

// Position is an open holding tracked for exit signals.
type Position struct {
	SkinID   int64      `json:"skin_id"`
	SkinName string     `json:"skin_name"`
	EntryUSD float64    `json:"entry_usd"`
	BoughtAt time.Time  `json:"bought_at"`
	UnlockAt *time.Time `json:"unlock_at,omitempty"`
	Notified bool       `json:"notified"`
}

// Signal is a one-shot exit recommendation for a position.
type Signal struct {
	Kind      string   `json:"kind"`
	Position  Position `json:"position"`
	PriceUSD  float64  `json:"price_usd"`
	ChangePct float64  `json:"change_pct"`
}

// SignalWatcher tracks open positions and raises take-profit / stop-loss
// signals once a position is sellable. A position is armed only after both
// its trade lock has expired and the mandatory holding period has passed;
// each position signals at most once.
type SignalWatcher struct {
	mu        sync.Mutex
	positions []*Position

	index    *LiveIndex
	tpPct    float64
	slPct    float64
	holdDays int
	clock    Clock
	notify   func(Signal)
}

func NewSignalWatcher(index *LiveIndex, tpPct, slPct float64, holdDays int, clock Clock, notify func(Signal)) *SignalWatcher {
	if clock == nil {
		clock = SystemClock()
	}
	return &SignalWatcher{
		index:    index,
		tpPct:    tpPct,
		slPct:    slPct,
		holdDays: holdDays,
		clock:    clock,
		notify:   notify,
	}
}

// Track registers a freshly bought position.
func (w *SignalWatcher) Track(p Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := p
	w.positions = append(w.positions, &cp)
}

// Positions returns a copy of the tracked book.
func (w *SignalWatcher) Positions() []Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Position, 0, len(w.positions))
	for _, p := range w.positions {
		out = append(out, *p)
	}
	return out
}

// armedAt is the earliest instant the position may be sold: the later of the
// trade-lock expiry and the end of the mandatory holding period.
func (w *SignalWatcher) armedAt(p *Position) time.Time {
	at := p.BoughtAt.Add(time.Duration(w.holdDays) * 24 * time.Hour)
	if p.UnlockAt != nil && p.UnlockAt.After(at) {
		at = *p.UnlockAt
	}
	return at
}

// Check evaluates every armed, unsignaled position against the live index
// and returns the signals raised this pass.
func (w *SignalWatcher) Check() []Signal {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Signal
	for _, p := range w.positions {
		if p.Notified || p.EntryUSD <= 0 || now.Before(w.armedAt(p)) {
			continue
		}
		live := w.index.Get(p.SkinName)
		if live == nil {
			continue
		}
		ch := (live.Price - p.EntryUSD) / p.EntryUSD
		var kind string
		switch {
		case live.Price >= p.EntryUSD*(1+w.tpPct):
			kind = SignalTakeProfit
		case live.Price <= p.EntryUSD*(1-w.slPct):
			kind = SignalStopLoss
		default:
			continue
		}
		p.Notified = true
		sig := Signal{Kind: kind, Position: *p, PriceUSD: live.Price, ChangePct: ch}
		slog.Info("exit signal",
			"kind", kind, "skin", p.SkinName,
			"entry", p.EntryUSD, "price", live.Price, "change_pct", ch)
		if w.notify != nil {
			w.notify(sig)
		}
		out = append(out, sig)
	}
	return out
}
