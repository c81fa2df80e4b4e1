package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"lis-trader/internal/config"
	"lis-trader/internal/database"
	"lis-trader/internal/models"
	"lis-trader/internal/services"
	"lis-trader/internal/services/feed"
	"lis-trader/internal/services/lis"
	"lis-trader/internal/services/llm"
)

var (
	warmup    = flag.Duration("warmup", 45*time.Second, "how long to listen to the feed before ranking")
	limit     = flag.Int("limit", 10, "max candidates to print")
	priceFrom = flag.Float64("price-from", 0, "min price filter (USD)")
	priceTo   = flag.Float64("price-to", 0, "max price filter (USD, 0 = config default)")
	unlocked  = flag.Bool("unlocked", false, "only immediately tradeable offers")
	asJSON    = flag.Bool("json", false, "print candidates as JSON")
)

// One-shot ranking pass: listen to the marketplace feed long enough to
// populate the live index, rank once, print, exit.
func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}
	cfg := config.Load()
	if cfg.LISAPIKey == "" {
		slog.Error("LIS_API_KEY is required")
		os.Exit(1)
	}

	var store interface {
		services.SeriesStore
		services.ForecastStore
	}
	if cfg.DatabaseURL != "" {
		db, err := database.Initialize(cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		store = database.NewStore(db)
	} else {
		store = database.NewMemoryStore()
	}

	recorder := services.NewHistoryRecorder(store, cfg.PriceEpsilon, cfg.RelativeEpsilon, cfg.SnapshotMinGap)
	index := services.NewLiveIndex(recorder, cfg.SnapshotMinInterval, nil)

	var predictor services.Predictor
	if cfg.OpenAIAPIKey != "" && cfg.LLMMode != config.LLMOff {
		predictor = llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ModelTimeout)
	}
	guard := services.NewQuotaGuard(cfg.MaxModelCallsPerScan, cfg.ModelMinInterval, nil)
	engine := services.NewForecastEngine(store, recorder, predictor, guard, services.ForecastConfig{
		ShortHorizonHours: cfg.ShortHorizonHours,
		HoldDays:          cfg.HoldDays,
		CacheTTL:          cfg.ForecastCacheTTL,
		PriceTolPct:       cfg.CachePriceTolPct,
		UnlockTolHours:    cfg.CacheUnlockTolH,
		SeriesPointsMax:   cfg.SeriesPointsMax,
		SeriesStep:        time.Duration(cfg.SeriesStepMinutes) * time.Minute,
	}, nil)
	ranker := services.NewRanker(index, recorder, engine, services.RankerConfig{
		ScanLimit:      cfg.ScanLimit,
		FeeRate:        cfg.FeeRate,
		HoldDays:       cfg.HoldDays,
		MinEdgeHoldPct: cfg.MinEdgeHoldPct,
		LLMMode:        cfg.LLMMode,
		ModelBudget:    cfg.MaxModelCallsPerScan,
	}, nil)

	lisClient := lis.NewClient(cfg.LISBase, cfg.LISAPIKey)
	consumer := feed.NewConsumer(cfg.LISWSURL, lisClient, func(ev models.PriceEvent) {
		index.Upsert(ev)
	})

	ctx, cancel := context.WithTimeout(context.Background(), *warmup)
	go consumer.Run(ctx)
	slog.Info("warming up live index", "duration", *warmup)
	<-ctx.Done()
	cancel()
	slog.Info("warmup done", "offers", index.Len())

	priceCeil := *priceTo
	if priceCeil == 0 {
		priceCeil = cfg.MaxPriceUSD
	}
	ranked := ranker.Rank(context.Background(), models.ScanFilters{
		PriceFrom:    *priceFrom,
		PriceTo:      priceCeil,
		OnlyUnlocked: *unlocked,
		Limit:        *limit,
	})

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(ranked)
		return
	}

	fmt.Printf("%-42s %9s %8s %8s %8s %-9s\n", "SKIN", "PRICE", "EDGE%", "PROB_UP", "EXP%", "SOURCE")
	for _, c := range ranked {
		fmt.Printf("%-42.42s %9.2f %8.2f %8.2f %8.2f %-9s\n",
			c.Offer.SkinName,
			c.Offer.Price,
			c.NetHoldPct*100,
			c.Forecast.ProbUpHold,
			c.Forecast.ExpUpPctHold*100,
			c.Forecast.Source)
	}
}
