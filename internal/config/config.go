package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMMode controls how aggressively the ranker spends model calls.
type LLMMode string

const (
	LLMOff  LLMMode = "off"  // heuristic only
	LLMAuto LLMMode = "auto" // top-K candidates per scan, K = MaxModelCallsPerScan
	LLMAll  LLMMode = "llm"  // every pooled candidate (expensive)
)

type Config struct {
	// LIS marketplace
	LISBase   string
	LISAPIKey string
	LISWSURL  string
	LISUserID string

	// Trading
	Mode            string // PAPER | LIVE
	StartBalanceUSD float64
	FeeRate         float64
	TakeProfitPct   float64
	StopLossPct     float64
	HoldDays        int
	BuyPartner      string
	BuyToken        string

	// Forecasting
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	LLMMode              LLMMode
	AutoBuy              bool
	MinProbUp            float64
	MinPriceUSD          float64
	MaxPriceUSD          float64
	ScanLimit            int
	ShortHorizonHours    int
	MinEdgeHoldPct       float64
	MaxModelCallsPerScan int
	ModelMinInterval     time.Duration
	ModelTimeout         time.Duration
	ForecastCacheTTL     time.Duration
	CachePriceTolPct     float64
	CacheUnlockTolH      float64
	SeriesPointsMax      int
	SeriesStepMinutes    int

	// Live index & history
	SnapshotMinInterval time.Duration
	PriceEpsilon        float64
	RelativeEpsilon     float64
	SnapshotMinGap      time.Duration
	IndexGCMaxAge       time.Duration
	IndexGCInterval     time.Duration
	ScanInterval        time.Duration
	SignalInterval      time.Duration

	// Process
	DatabaseURL string
	Port        string
	Environment string
}

func Load() *Config {
	return &Config{
		LISBase:   getEnv("LIS_BASE", "https://api.lis-skins.com"),
		LISAPIKey: getEnv("LIS_API_KEY", ""),
		LISWSURL:  getEnv("LIS_WS_URL", "wss://ws.lis-skins.com/connection/websocket"),
		LISUserID: getEnv("LIS_USER_ID", ""),

		Mode:            strings.ToUpper(getEnv("MODE", "PAPER")),
		StartBalanceUSD: getEnvFloat("START_BALANCE_USD", 108),
		FeeRate:         getEnvFloat("FEE_RATE", 0.01),
		TakeProfitPct:   getEnvFloat("TP_PCT", 0.05),
		StopLossPct:     getEnvFloat("SL_PCT", 0.03),
		HoldDays:        getEnvInt("HOLD_DAYS", 7),
		BuyPartner:      getEnv("BUY_PARTNER", ""),
		BuyToken:        getEnv("BUY_TOKEN", ""),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4.1"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LLMMode:              LLMMode(strings.ToLower(getEnv("AI_LLM_MODE", "auto"))),
		AutoBuy:              getEnvInt("AI_AUTO_BUY", 0) == 1,
		MinProbUp:            getEnvFloat("AI_MIN_PROB_UP", 0.60),
		MinPriceUSD:          getEnvFloat("AI_MIN_PRICE_USD", 0),
		MaxPriceUSD:          getEnvFloat("AI_MAX_PRICE_USD", 300),
		ScanLimit:            getEnvInt("AI_SCAN_LIMIT", 50),
		ShortHorizonHours:    getEnvInt("AI_HORIZON_HOURS_SHORT", 3),
		MinEdgeHoldPct:       getEnvFloat("MIN_EDGE_HOLD_PCT", 0),
		MaxModelCallsPerScan: getEnvInt("AI_OPENAI_MAX_CALLS_PER_SCAN", 6),
		ModelMinInterval:     time.Duration(getEnvInt("AI_OPENAI_MIN_MS_BETWEEN", 1200)) * time.Millisecond,
		ModelTimeout:         time.Duration(getEnvInt("AI_OPENAI_TIMEOUT_MS", 20000)) * time.Millisecond,
		ForecastCacheTTL:     time.Duration(getEnvInt("AI_OPENAI_CACHE_TTL_MIN", 180)) * time.Minute,
		CachePriceTolPct:     getEnvFloat("AI_CACHE_PRICE_TOL_PCT", 0.015),
		CacheUnlockTolH:      getEnvFloat("AI_CACHE_UNLOCK_TOL_H", 6),
		SeriesPointsMax:      getEnvInt("AI_SERIES_POINTS_MAX", 96),
		SeriesStepMinutes:    getEnvInt("AI_SERIES_STEP_MIN", 60),

		SnapshotMinInterval: time.Duration(getEnvInt("WS_SNAPSHOT_MIN_INTERVAL_SEC", 20)) * time.Second,
		PriceEpsilon:        getEnvFloat("PRICE_EPS", 0.0001),
		RelativeEpsilon:     getEnvFloat("PRICE_REL_EPS", 0.0005),
		SnapshotMinGap:      time.Duration(getEnvInt("SNAPSHOT_MIN_GAP_MS", 10000)) * time.Millisecond,
		IndexGCMaxAge:       time.Duration(getEnvInt("WS_INDEX_GC_MIN", 180)) * time.Minute,
		IndexGCInterval:     time.Duration(getEnvInt("WS_INDEX_GC_EVERY_MIN", 5)) * time.Minute,
		ScanInterval:        time.Duration(getEnvInt("AI_SCAN_EVERY_MS", 20000)) * time.Millisecond,
		SignalInterval:      time.Duration(getEnvInt("SIGNAL_EVERY_MS", 30000)) * time.Millisecond,

		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

// IsLive reports whether real purchases are allowed.
func (c *Config) IsLive() bool {
	return c.Mode == "LIVE"
}

// HoldHorizonHours is the mandatory holding period after a buy, in hours.
func (c *Config) HoldHorizonHours() int {
	return c.HoldDays * 24
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
