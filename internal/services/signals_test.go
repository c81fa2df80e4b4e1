package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lis-trader/internal/models"
)

func signalFixture(t *testing.T) (*fakeClock, *LiveIndex, *SignalWatcher, *[]Signal) {
	t.Helper()
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	index := NewLiveIndex(nil, 0, clock)
	var notified []Signal
	w := NewSignalWatcher(index, 0.05, 0.03, 7, clock, func(s Signal) {
		notified = append(notified, s)
	})
	return clock, index, w, &notified
}

func TestSignalWatcherArmsAfterHold(t *testing.T) {
	clock, index, w, _ := signalFixture(t)
	w.Track(Position{SkinID: 1, SkinName: "a", EntryUSD: 100, BoughtAt: clock.Now()})

	index.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 120, Event: models.EventSkinAdded})

	// Still inside the holding period: no signal despite the price.
	clock.Advance(6 * 24 * time.Hour)
	assert.Empty(t, w.Check())

	clock.Advance(25 * time.Hour)
	sigs := w.Check()
	require.Len(t, sigs, 1)
	assert.Equal(t, SignalTakeProfit, sigs[0].Kind)
	assert.Equal(t, 120.0, sigs[0].PriceUSD)
	assert.InDelta(t, 0.20, sigs[0].ChangePct, 1e-9)
}

func TestSignalWatcherWaitsForTradeLock(t *testing.T) {
	clock, index, w, _ := signalFixture(t)
	unlock := clock.Now().Add(10 * 24 * time.Hour) // lock outlasts the hold
	w.Track(Position{SkinID: 1, SkinName: "a", EntryUSD: 100, BoughtAt: clock.Now(), UnlockAt: &unlock})
	index.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 110, Event: models.EventSkinAdded})

	clock.Advance(8 * 24 * time.Hour)
	assert.Empty(t, w.Check())

	clock.Advance(3 * 24 * time.Hour)
	assert.Len(t, w.Check(), 1)
}

func TestSignalWatcherStopLoss(t *testing.T) {
	clock, index, w, notified := signalFixture(t)
	w.Track(Position{SkinID: 1, SkinName: "a", EntryUSD: 100, BoughtAt: clock.Now()})
	index.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 96.9, Event: models.EventSkinAdded})

	clock.Advance(8 * 24 * time.Hour)
	sigs := w.Check()
	require.Len(t, sigs, 1)
	assert.Equal(t, SignalStopLoss, sigs[0].Kind)
	assert.Len(t, *notified, 1)
}

func TestSignalWatcherInsideBandStaysQuiet(t *testing.T) {
	clock, index, w, _ := signalFixture(t)
	w.Track(Position{SkinID: 1, SkinName: "a", EntryUSD: 100, BoughtAt: clock.Now()})
	index.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 103, Event: models.EventSkinAdded})

	clock.Advance(8 * 24 * time.Hour)
	assert.Empty(t, w.Check())
}

func TestSignalWatcherNotifiesOnce(t *testing.T) {
	clock, index, w, notified := signalFixture(t)
	w.Track(Position{SkinID: 1, SkinName: "a", EntryUSD: 100, BoughtAt: clock.Now()})
	index.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 120, Event: models.EventSkinAdded})

	clock.Advance(8 * 24 * time.Hour)
	require.Len(t, w.Check(), 1)
	assert.Empty(t, w.Check())
	assert.Len(t, *notified, 1)
}

func TestSignalWatcherSkipsUnindexedSkins(t *testing.T) {
	clock, _, w, _ := signalFixture(t)
	w.Track(Position{SkinID: 1, SkinName: "gone", EntryUSD: 100, BoughtAt: clock.Now()})

	clock.Advance(8 * 24 * time.Hour)
	assert.Empty(t, w.Check())
}
