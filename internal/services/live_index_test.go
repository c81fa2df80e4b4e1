package services

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lis-trader/internal/models"
)

type recordingSink struct {
	calls []struct {
		name  string
		price float64
		ts    time.Time
	}
}

func (s *recordingSink) AppendIfChanged(name string, id int64, price float64, ts time.Time) (bool, error) {
	s.calls = append(s.calls, struct {
		name  string
		price float64
		ts    time.Time
	}{name, price, ts})
	return true, nil
}

func TestLiveIndexUpsertAndGet(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	idx := NewLiveIndex(nil, 0, clock)

	ok := idx.Upsert(models.PriceEvent{ID: 7, Name: "AK-47 | Redline (Field-Tested)", Price: 21.50, Event: models.EventSkinAdded})
	require.True(t, ok)
	require.Equal(t, 1, idx.Len())

	got := idx.Get("AK-47 | Redline (Field-Tested)")
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.SkinID)
	assert.Equal(t, 21.50, got.Price)
	assert.Equal(t, clock.Now(), got.UpdatedAt)

	assert.Nil(t, idx.Get("unknown skin"))
}

func TestLiveIndexLastWriteWins(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	idx := NewLiveIndex(nil, 0, clock)

	idx.Upsert(models.PriceEvent{ID: 1, Name: "M4A4 | Asiimov (Battle-Scarred)", Price: 30, Event: models.EventSkinAdded})
	firstSeen := clock.Now()
	clock.Advance(time.Minute)
	idx.Upsert(models.PriceEvent{ID: 2, Name: "M4A4 | Asiimov (Battle-Scarred)", Price: 28.75, Event: models.EventSkinPriceChanged})

	got := idx.Get("M4A4 | Asiimov (Battle-Scarred)")
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.SkinID)
	assert.Equal(t, 28.75, got.Price)
	// First-seen time survives lot replacement.
	assert.Equal(t, firstSeen, got.CreatedAt)
	assert.Equal(t, 1, idx.Len())
}

func TestLiveIndexDropsMalformedAndDeletes(t *testing.T) {
	idx := NewLiveIndex(nil, 0, newFakeClock(time.Now()))

	assert.False(t, idx.Upsert(models.PriceEvent{Name: "x", Price: 1, Event: models.EventSkinDeleted}))
	assert.False(t, idx.Upsert(models.PriceEvent{Name: "", Price: 1, Event: models.EventSkinAdded}))
	assert.False(t, idx.Upsert(models.PriceEvent{Name: "x", Price: math.NaN(), Event: models.EventSkinAdded}))
	assert.False(t, idx.Upsert(models.PriceEvent{Name: "x", Price: math.Inf(1), Event: models.EventSkinAdded}))
	assert.False(t, idx.Upsert(models.PriceEvent{Name: "x", Price: -0.01, Event: models.EventSkinAdded}))
	assert.Equal(t, 0, idx.Len())

	// A delete for a tracked skin keeps the last known price.
	idx.Upsert(models.PriceEvent{ID: 3, Name: "y", Price: 5, Event: models.EventSkinAdded})
	idx.Upsert(models.PriceEvent{ID: 3, Name: "y", Price: 5, Event: models.EventSkinDeleted})
	require.NotNil(t, idx.Get("y"))
	assert.Equal(t, 5.0, idx.Get("y").Price)
}

func TestLiveIndexGC(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	idx := NewLiveIndex(nil, 0, clock)

	idx.Upsert(models.PriceEvent{ID: 1, Name: "old", Price: 1, Event: models.EventSkinAdded})
	clock.Advance(2 * time.Hour)
	idx.Upsert(models.PriceEvent{ID: 2, Name: "fresh", Price: 2, Event: models.EventSkinAdded})

	evicted := idx.GC(3 * time.Hour)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, 2, idx.Len())

	clock.Advance(90 * time.Minute)
	evicted = idx.GC(3 * time.Hour)
	assert.Equal(t, 1, evicted)
	assert.Nil(t, idx.Get("old"))
	assert.NotNil(t, idx.Get("fresh"))
}

func TestLiveIndexSnapshotGuard(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	idx := NewLiveIndex(sink, 20*time.Second, clock)

	idx.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 10, Event: models.EventSkinAdded})
	clock.Advance(5 * time.Second)
	idx.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 11, Event: models.EventSkinPriceChanged})
	require.Len(t, sink.calls, 1, "second observation inside the min interval must not reach the sink")

	clock.Advance(16 * time.Second)
	idx.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 12, Event: models.EventSkinPriceChanged})
	require.Len(t, sink.calls, 2)
	assert.Equal(t, 12.0, sink.calls[1].price)

	// The guard is per skin.
	idx.Upsert(models.PriceEvent{ID: 2, Name: "b", Price: 3, Event: models.EventSkinAdded})
	assert.Len(t, sink.calls, 3)
}

func TestLiveIndexSnapshotIsCopy(t *testing.T) {
	idx := NewLiveIndex(nil, 0, newFakeClock(time.Now()))
	idx.Upsert(models.PriceEvent{ID: 1, Name: "a", Price: 10, Event: models.EventSkinAdded})

	snap := idx.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Price = 999

	assert.Equal(t, 10.0, idx.Get("a").Price)
}
