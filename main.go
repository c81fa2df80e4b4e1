package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lis-trader/internal/api"
	"lis-trader/internal/config"
	"lis-trader/internal/database"
	"lis-trader/internal/models"
	"lis-trader/internal/observability"
	"lis-trader/internal/services"
	"lis-trader/internal/services/feed"
	"lis-trader/internal/services/lis"
	"lis-trader/internal/services/llm"
)

type appStore interface {
	services.SeriesStore
	services.ForecastStore
	lis.TradeStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}

	cfg := config.Load()

	var store appStore
	if cfg.DatabaseURL != "" {
		db, err := database.Initialize(cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		store = database.NewStore(db)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store; history is lost on restart")
		store = database.NewMemoryStore()
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	recorder := services.NewHistoryRecorder(store, cfg.PriceEpsilon, cfg.RelativeEpsilon, cfg.SnapshotMinGap)
	index := services.NewLiveIndex(
		countingSink{inner: recorder, metrics: metrics},
		cfg.SnapshotMinInterval, nil)

	var predictor services.Predictor
	if cfg.OpenAIAPIKey != "" && cfg.LLMMode != config.LLMOff {
		predictor = countingPredictor{
			inner:   llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ModelTimeout),
			metrics: metrics,
		}
		slog.Info("prediction model enabled", "model", cfg.OpenAIModel, "mode", string(cfg.LLMMode))
	} else {
		slog.Info("prediction model disabled, heuristic forecasts only")
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

	watcher := services.NewSignalWatcher(index, cfg.TakeProfitPct, cfg.StopLossPct, cfg.HoldDays, nil,
		func(sig services.Signal) {
			metrics.Signals.With(prometheus.Labels{"kind": sig.Kind}).Inc()
		})

	lisClient := lis.NewClient(cfg.LISBase, cfg.LISAPIKey)
	trader := lis.NewTrader(lisClient, store, watcher,
		cfg.FeeRate, cfg.StartBalanceUSD, cfg.IsLive(), cfg.BuyPartner, cfg.BuyToken, nil)
	slog.Info("trading mode", "mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LISAPIKey != "" {
		consumer := feed.NewConsumer(cfg.LISWSURL, lisClient, func(ev models.PriceEvent) {
			metrics.FeedEvents.With(prometheus.Labels{"event": ev.Event}).Inc()
			if index.Upsert(ev) {
				metrics.IndexSize.Set(float64(index.Len()))
			}
		}).WithUserID(cfg.LISUserID)
		go consumer.Run(ctx)
	} else {
		slog.Warn("LIS_API_KEY not set, feed consumer disabled")
	}

	go gcLoop(ctx, index, metrics, cfg)
	go scanLoop(ctx, ranker, trader, watcher, metrics, cfg)
	go signalLoop(ctx, watcher, cfg.SignalInterval)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "index_size": index.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.SetupRoutes(r.Group("/api/v1"), index, recorder, ranker, trader, watcher, metrics)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "err", err)
	}
}

func gcLoop(ctx context.Context, index *services.LiveIndex, metrics *observability.Metrics, cfg *config.Config) {
	ticker := time.NewTicker(cfg.IndexGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := index.GC(cfg.IndexGCMaxAge); evicted > 0 {
				metrics.IndexEvicted.Add(float64(evicted))
				slog.Info("index gc", "evicted", evicted, "remaining", index.Len())
			}
			metrics.IndexSize.Set(float64(index.Len()))
		}
	}
}

func scanLoop(ctx context.Context, ranker *services.Ranker, trader *lis.Trader, watcher *services.SignalWatcher, metrics *observability.Metrics, cfg *config.Config) {
	ticker := time.NewTicker(cfg.ScanInterval)
	defer ticker.Stop()
	filters := models.ScanFilters{
		PriceFrom:    cfg.MinPriceUSD,
		PriceTo:      cfg.MaxPriceUSD,
		OnlyUnlocked: false,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			ranked := ranker.Rank(ctx, filters)
			metrics.Scans.Inc()
			metrics.ScanDuration.Observe(time.Since(start).Seconds())
			for _, c := range ranked {
				metrics.Forecasts.With(prometheus.Labels{"source": string(c.Forecast.Source)}).Inc()
			}
			if cfg.AutoBuy {
				autoBuy(ctx, trader, watcher, metrics, cfg, ranked)
			}
		}
	}
}

// autoBuy walks the ranked list and buys the first candidate that clears
// both thresholds and is not already held. One purchase attempt per pass.
func autoBuy(ctx context.Context, trader *lis.Trader, watcher *services.SignalWatcher, metrics *observability.Metrics, cfg *config.Config, ranked []models.RankedCandidate) {
	for _, c := range ranked {
		if c.NetHoldPct < cfg.MinEdgeHoldPct || c.Forecast.ProbUpHold < cfg.MinProbUp {
			continue
		}
		if heldOpen(watcher, c.Offer.SkinName) {
			continue
		}
		result, err := trader.Buy(ctx, c.Offer)
		if err != nil {
			slog.Warn("auto-buy failed", "skin", c.Offer.SkinName, "err", err)
			return
		}
		metrics.Buys.With(prometheus.Labels{"mode": result.Mode}).Inc()
		slog.Info("auto-buy executed",
			"skin", result.SkinName, "price", result.PriceUSD,
			"edge_pct", c.NetHoldPct, "prob_up", c.Forecast.ProbUpHold)
		return
	}
}

func heldOpen(watcher *services.SignalWatcher, skinName string) bool {
	for _, p := range watcher.Positions() {
		if p.SkinName == skinName && !p.Notified {
			return true
		}
	}
	return false
}

func signalLoop(ctx context.Context, watcher *services.SignalWatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			watcher.Check()
		}
	}
}

// countingSink instruments the history path.
type countingSink struct {
	inner   services.SnapshotSink
	metrics *observability.Metrics
}

func (s countingSink) AppendIfChanged(name string, id int64, price float64, ts time.Time) (bool, error) {
	ok, err := s.inner.AppendIfChanged(name, id, price, ts)
	if ok {
		s.metrics.SnapshotsSaved.Inc()
	}
	return ok, err
}

// countingPredictor instruments external model calls.
type countingPredictor struct {
	inner   services.Predictor
	metrics *observability.Metrics
}

func (p countingPredictor) Predict(ctx context.Context, req services.PredictRequest) (*services.ModelForecast, error) {
	p.metrics.ModelCalls.Inc()
	out, err := p.inner.Predict(ctx, req)
	if err != nil {
		p.metrics.ModelFailures.Inc()
	}
	return out, err
}
