package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process instrumentation.
type Metrics struct {
	FeedEvents     *prometheus.CounterVec
	SnapshotsSaved prometheus.Counter
	IndexSize      prometheus.Gauge
	IndexEvicted   prometheus.Counter
	Forecasts      *prometheus.CounterVec
	ModelCalls     prometheus.Counter
	ModelFailures  prometheus.Counter
	Scans          prometheus.Counter
	ScanDuration   prometheus.Histogram
	Signals        *prometheus.CounterVec
	Buys           *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FeedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_feed_events_total",
			Help: "Marketplace feed events received, by event type.",
		}, []string{"event"}),
		SnapshotsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "trader_history_snapshots_total",
			Help: "Price points accepted into the history store.",
		}),
		IndexSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "trader_live_index_size",
			Help: "Skins currently tracked by the live index.",
		}),
		IndexEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "trader_live_index_evicted_total",
			Help: "Stale offers removed by index GC.",
		}),
		Forecasts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_forecasts_total",
			Help: "Forecasts produced, by tier.",
		}, []string{"source"}),
		ModelCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "trader_model_calls_total",
			Help: "External prediction model calls attempted.",
		}),
		ModelFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trader_model_failures_total",
			Help: "External prediction model calls that failed.",
		}),
		Scans: f.NewCounter(prometheus.CounterOpts{
			Name: "trader_scans_total",
			Help: "Ranking passes executed.",
		}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_scan_duration_seconds",
			Help:    "Wall time of one ranking pass.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_exit_signals_total",
			Help: "Take-profit and stop-loss signals raised.",
		}, []string{"kind"}),
		Buys: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_buys_total",
			Help: "Buys executed, by mode.",
		}, []string{"mode"}),
	}
}
