package models

import (
	"time"
)

// PricePoint is one deduplicated observation in an item's price history.
// Points are append-only; consecutive points for the same skin always differ
// by more than the configured epsilon.
type PricePoint struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	SkinName string    `json:"skin_name" gorm:"index:idx_pp_name_ts;not null;size:191"`
	SkinID   int64     `json:"skin_id"`
	Price    float64   `json:"price" gorm:"not null"`
	Ts       time.Time `json:"ts" gorm:"index:idx_pp_name_ts;not null"`
}

// ForecastCache stores the latest forecast per skin together with the
// price/unlock snapshot it was computed from, for drift checks on reads.
type ForecastCache struct {
	SkinName     string    `json:"skin_name" gorm:"primaryKey;size:191"`
	PriceUSD     float64   `json:"price_usd" gorm:"not null"`
	UnlockHours  int       `json:"unlock_hours" gorm:"not null"`
	PriorUp      float64   `json:"prior_up"`
	ResponseJSON string    `json:"response_json" gorm:"type:text;not null"`
	Ts           time.Time `json:"ts" gorm:"not null"`
}

// Purchase is an audit record of a buy request and the marketplace response.
type Purchase struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	PurchaseID   string    `json:"purchase_id" gorm:"index"`
	SteamID      string    `json:"steam_id"`
	CustomID     string    `json:"custom_id"`
	RequestJSON  string    `json:"request_json" gorm:"type:text"`
	ResponseJSON string    `json:"response_json" gorm:"type:text"`
	Error        string    `json:"error"`
	CreatedAt    time.Time `json:"created_at"`
}

// Trade is a completed buy or sell booked against the balance.
type Trade struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	Side     string    `json:"side" gorm:"not null"` // BUY, SELL
	SkinID   string    `json:"skin_id"`
	SkinName string    `json:"skin_name"`
	Qty      int       `json:"qty" gorm:"default:1"`
	Price    float64   `json:"price"`
	Fee      float64   `json:"fee"`
	Mode     string    `json:"mode"` // PAPER, LIVE
	Ts       time.Time `json:"ts"`
}

// PaperBalance is the singleton simulated USD balance used outside LIVE mode.
type PaperBalance struct {
	ID  uint    `json:"id" gorm:"primaryKey"`
	USD float64 `json:"usd" gorm:"not null"`
}
