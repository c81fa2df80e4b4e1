package database

import (
	"errors"
	"fmt"
	"time"

	"lis-trader/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the MySQL-backed point-series and trading store.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertPricePoint(p models.PricePoint) error {
	if err := s.db.Create(&p).Error; err != nil {
		return fmt.Errorf("insert price point: %w", err)
	}
	return nil
}

func (s *Store) LastPricePoint(name string) (*models.PricePoint, error) {
	var p models.PricePoint
	err := s.db.Where("skin_name = ?", name).Order("ts DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last price point: %w", err)
	}
	return &p, nil
}

func (s *Store) QuerySeries(name string, since time.Time, limit int) ([]models.PricePoint, error) {
	q := s.db.Where("skin_name = ?", name).Order("ts ASC")
	if !since.IsZero() {
		q = q.Where("ts >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var points []models.PricePoint
	if err := q.Find(&points).Error; err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	return points, nil
}

func (s *Store) PutForecastCache(rec models.ForecastCache) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "skin_name"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("put forecast cache: %w", err)
	}
	return nil
}

func (s *Store) GetForecastCache(name string) (*models.ForecastCache, error) {
	var rec models.ForecastCache
	err := s.db.Where("skin_name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get forecast cache: %w", err)
	}
	return &rec, nil
}

func (s *Store) InsertTrade(t models.Trade) error {
	if err := s.db.Create(&t).Error; err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *Store) InsertPurchase(p models.Purchase) error {
	if err := s.db.Create(&p).Error; err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// GetBalance returns the paper balance, seeding it on first use.
func (s *Store) GetBalance(startUSD float64) (float64, error) {
	var b models.PaperBalance
	err := s.db.First(&b, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		b = models.PaperBalance{ID: 1, USD: startUSD}
		if err := s.db.Create(&b).Error; err != nil {
			return 0, fmt.Errorf("seed balance: %w", err)
		}
		return b.USD, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return b.USD, nil
}

func (s *Store) SetBalance(usd float64) error {
	err := s.db.Model(&models.PaperBalance{}).Where("id = ?", 1).Update("usd", usd).Error
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}
