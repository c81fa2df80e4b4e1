package models

import "time"

// Price event types delivered by the marketplace feed.
const (
	EventSkinAdded        = "obtained_skin_added"
	EventSkinDeleted      = "obtained_skin_deleted"
	EventSkinPriceChanged = "obtained_skin_price_changed"
	EventPurchaseUpdated  = "purchase_skin_info_updated"
)

// PriceEvent is a normalized marketplace feed event.
type PriceEvent struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Price     float64    `json:"price"`
	UnlockAt  *time.Time `json:"unlock_at,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Event     string     `json:"event"`
}

// Offer is the current best-known priced lot for a skin name. Exactly one
// Offer per name exists in the live index at any time.
type Offer struct {
	SkinID    int64      `json:"skin_id"`
	SkinName  string     `json:"skin_name"`
	Price     float64    `json:"price"`
	UnlockAt  *time.Time `json:"unlock_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Unlocked reports whether the offer is tradeable at the given instant.
func (o *Offer) Unlocked(now time.Time) bool {
	return o.UnlockAt == nil || !o.UnlockAt.After(now)
}

// Features is the bounded feature set extracted from an offer and its
// 7-day price history window.
type Features struct {
	PriceUSD    float64 `json:"price_usd"`
	AgeMinutes  int     `json:"age_min"`
	UnlockHours int     `json:"unlock_hours"`
	HoldDays    int     `json:"hold_days_after_buy"`
	ChangePct   float64 `json:"hist_7d_change_pct"`
	ChangeUSD   float64 `json:"hist_7d_change_usd"`
	Mean        float64 `json:"hist_7d_mean"`
	Std         float64 `json:"hist_7d_std"`
	Samples     int     `json:"hist_7d_samples"`
}

// ForecastSource tags which tier produced a forecast.
type ForecastSource string

const (
	SourceCached    ForecastSource = "cached"
	SourceHeuristic ForecastSource = "heuristic"
	SourceModel     ForecastSource = "model"
)

// ForecastHorizons records the inputs a forecast was computed from.
type ForecastHorizons struct {
	ShortHours int     `json:"short_h"`
	HoldHours  int     `json:"hold_h"`
	PriceUSD   float64 `json:"price_usd"`
	PriorUp    float64 `json:"prior_up"`
	ChangePct  float64 `json:"hist_7d_change_pct"`
	Mean       float64 `json:"hist_7d_mean"`
	Std        float64 `json:"hist_7d_std"`
	Samples    int     `json:"hist_7d_samples"`
	CV         float64 `json:"hist_7d_cv"`
}

// Forecast is a directional price forecast at two horizons: a short horizon
// (hours) and the hold horizon (unlock time plus the mandatory holding period).
type Forecast struct {
	Label          string           `json:"label"` // up, down, flat
	ProbUpShort    float64          `json:"probUp_short"`
	ProbUpHold     float64          `json:"probUp_hold"`
	ExpUpPctShort  float64          `json:"exp_up_pct_short"`
	ExpUpUSDShort  float64          `json:"exp_up_usd_short"`
	ExpUpPctHold   float64          `json:"exp_up_pct_hold"`
	ExpUpUSDHold   float64          `json:"exp_up_usd_hold"`
	Horizons       ForecastHorizons `json:"horizons"`
	Source         ForecastSource   `json:"source"`
}

// RankedCandidate is one scored entry of a ranking pass. Ephemeral, never
// persisted.
type RankedCandidate struct {
	Offer      Offer    `json:"offer"`
	Forecast   Forecast `json:"forecast"`
	NetHoldPct float64  `json:"net_hold_pct"`
	NetHoldUSD float64  `json:"net_hold_usd"`
}

// ScanFilters narrows the candidate pool of a ranking pass.
type ScanFilters struct {
	PriceFrom    float64 `json:"price_from"`
	PriceTo      float64 `json:"price_to"`
	OnlyUnlocked bool    `json:"only_unlocked"`
	Limit        int     `json:"limit"`
}
