package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for VendorWatch.
type Metrics struct {
	// --- Log parsing ---
	LogLinesParsed       prometheus.Counter
	LogLinesSkipped      prometheus.Counter
	LogParseErrors       prometheus.Counter
	LogResets            prometheus.Counter
	EventsOpened         *prometheus.CounterVec
	EventsForceClosed    *prometheus.CounterVec
	BuyEventsEmitted     prometheus.Counter
	RefreshEventsEmitted prometheus.Counter
	UpdateBufferSize     prometheus.Gauge

	// --- Inventory ---
	InventoryItems      prometheus.Gauge
	InventoryChanges    *prometheus.CounterVec
	BackpackInitialized prometheus.Gauge

	// --- Verification ---
	OCRRecordsAdded   prometheus.Counter
	OCRRecordsExpired prometheus.Counter
	OCRCacheSize      prometheus.Gauge
	BuyEventCacheSize prometheus.Gauge
	PurchasesVerified prometheus.Counter
	MatchAttempts     *prometheus.CounterVec

	// --- Monitor loops ---
	MonitorTicks        *prometheus.CounterVec
	MonitorTickDuration *prometheus.HistogramVec
	MonitorTickErrors   *prometheus.CounterVec

	// --- Persistence ---
	RecordsWritten *prometheus.CounterVec
	PersistErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	tickBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}

	return &Metrics{
		LogLinesParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_log_lines_parsed_total",
			Help: "Log lines with a timestamp and [Game] payload",
		}),

		LogLinesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_log_lines_skipped_total",
			Help: "Log lines without the expected markers",
		}),

		LogParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_log_parse_errors_total",
			Help: "Per-line processing failures (logged and skipped)",
		}),

		LogResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_log_resets_total",
			Help: "Full state resets triggered by file rotation",
		}),

		EventsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_events_opened_total",
			Help: "Event contexts opened",
		}, []string{"event_type"}),

		EventsForceClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_events_force_closed_total",
			Help: "Event contexts force-finalized by a new start marker or EOF",
		}, []string{"event_type"}),

		BuyEventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_buy_events_emitted_total",
			Help: "BuyEvents produced by pairing",
		}),

		RefreshEventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_refresh_events_emitted_total",
			Help: "RefreshEvents produced",
		}),

		UpdateBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vw_update_buffer_size",
			Help: "Entries in the rolling update-pairing buffer",
		}),

		InventoryItems: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vw_inventory_items",
			Help: "Item instances currently tracked",
		}),

		InventoryChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_inventory_changes_total",
			Help: "Item changes applied",
		}, []string{"change_type"}),

		BackpackInitialized: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vw_backpack_initialized",
			Help: "1 when the backpack load completed",
		}),

		OCRRecordsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_ocr_records_added_total",
			Help: "OCR price observations received",
		}),

		OCRRecordsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_ocr_records_expired_total",
			Help: "OCR records expired unmatched",
		}),

		OCRCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vw_ocr_cache_size",
			Help: "Pending OCR records",
		}),

		BuyEventCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vw_buy_event_cache_size",
			Help: "Unmatched BuyEvents cached",
		}),

		PurchasesVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vw_purchases_verified_total",
			Help: "OCR records matched to a BuyEvent",
		}),

		MatchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_match_attempts_total",
			Help: "Match attempts by outcome",
		}, []string{"outcome"}),

		MonitorTicks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_monitor_ticks_total",
			Help: "Poll ticks executed",
		}, []string{"loop"}),

		MonitorTickDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vw_monitor_tick_duration_seconds",
			Help:    "Duration of one poll tick",
			Buckets: tickBuckets,
		}, []string{"loop"}),

		MonitorTickErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_monitor_tick_errors_total",
			Help: "Tick steps that failed (logged, loop continues)",
		}, []string{"loop", "step"}),

		RecordsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_records_written_total",
			Help: "Records persisted",
		}, []string{"store"}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vw_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"store"}),
	}
}
