package services

import (
	"time"

	"lis-trader/internal/models"
)

// SeriesStore is the persistent point-series store consumed by the history
// recorder and the forecast engine. Implemented by database.Store (MySQL) and
// database.MemoryStore.
type SeriesStore interface {
	InsertPricePoint(p models.PricePoint) error
	LastPricePoint(name string) (*models.PricePoint, error)
	QuerySeries(name string, since time.Time, limit int) ([]models.PricePoint, error)
}

// ForecastStore persists the per-skin forecast cache.
type ForecastStore interface {
	PutForecastCache(rec models.ForecastCache) error
	GetForecastCache(name string) (*models.ForecastCache, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// clockFunc adapts a function to the Clock interface.
type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return clockFunc(time.Now) }
