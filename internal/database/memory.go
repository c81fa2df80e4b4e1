package database

import (
	"sort"
	"sync"
	"time"

	"lis-trader/internal/models"
)

// MemoryStore is an in-memory drop-in for Store, used in PAPER mode without a
// configured database and throughout the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	points    map[string][]models.PricePoint
	forecasts map[string]models.ForecastCache
	trades    []models.Trade
	purchases []models.Purchase
	balance   float64
	seeded    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points:    make(map[string][]models.PricePoint),
		forecasts: make(map[string]models.ForecastCache),
	}
}

func (m *MemoryStore) InsertPricePoint(p models.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.SkinName] = append(m.points[p.SkinName], p)
	return nil
}

func (m *MemoryStore) LastPricePoint(name string) (*models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[name]
	if len(pts) == 0 {
		return nil, nil
	}
	p := pts[len(pts)-1]
	return &p, nil
}

func (m *MemoryStore) QuerySeries(name string, since time.Time, limit int) ([]models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PricePoint
	for _, p := range m.points[name] {
		if since.IsZero() || !p.Ts.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PutForecastCache(rec models.ForecastCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts[rec.SkinName] = rec
	return nil
}

func (m *MemoryStore) GetForecastCache(name string) (*models.ForecastCache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.forecasts[name]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) InsertTrade(t models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *MemoryStore) InsertPurchase(p models.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, p)
	return nil
}

// Trades returns a copy of the booked trades.
func (m *MemoryStore) Trades() []models.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Purchases returns a copy of the purchase audit rows.
func (m *MemoryStore) Purchases() []models.Purchase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Purchase, len(m.purchases))
	copy(out, m.purchases)
	return out
}

func (m *MemoryStore) GetBalance(startUSD float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded {
		m.balance = startUSD
		m.seeded = true
	}
	return m.balance, nil
}

func (m *MemoryStore) SetBalance(usd float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = usd
	m.seeded = true
	return nil
}
