package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"VendorWatch/internal/event"
	"VendorWatch/internal/gamelog"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/verify"
)

// DefaultWatchInterval is how often the game log is polled for new lines.
const DefaultWatchInterval = 2 * time.Second

// LogWatcher polls the game log and feeds parsed events into the
// verification service and the optional callbacks.
type LogWatcher struct {
	parser   *gamelog.Parser
	verifier *verify.Service
	interval time.Duration

	onBuy     func(event.BuyEvent)
	onRefresh func(event.RefreshEvent)

	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewLogWatcher(parser *gamelog.Parser, verifier *verify.Service, interval time.Duration, metrics *observability.Metrics) *LogWatcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &LogWatcher{
		parser:   parser,
		verifier: verifier,
		interval: interval,
		logger:   observability.NewLogger("log_watcher"),
		metrics:  metrics,
	}
}

// SetCallbacks registers listeners invoked for every parsed event, after
// the event is handed to the verification service. Call before Run.
func (w *LogWatcher) SetCallbacks(onBuy func(event.BuyEvent), onRefresh func(event.RefreshEvent)) {
	w.onBuy = onBuy
	w.onRefresh = onRefresh
}

// Run polls until ctx is cancelled. Parse failures are logged and the
// loop keeps going; a dead log file must not kill the watcher.
func (w *LogWatcher) Run(ctx context.Context) error {
	w.logger.Info().
		Str("path", w.parser.Path()).
		Dur("interval", w.interval).
		Msg("log watcher started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("log watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *LogWatcher) tick() {
	start := time.Now()
	if w.metrics != nil {
		w.metrics.MonitorTicks.WithLabelValues("log_watcher").Inc()
		defer func() {
			w.metrics.MonitorTickDuration.WithLabelValues("log_watcher").Observe(time.Since(start).Seconds())
		}()
	}

	buys, refreshes, err := w.parser.ParseNew()
	if err != nil {
		w.logger.Error().Err(err).Msg("parsing game log failed")
		if w.metrics != nil {
			w.metrics.MonitorTickErrors.WithLabelValues("log_watcher", "parse").Inc()
		}
		return
	}

	for _, buy := range buys {
		w.verifier.AddBuyEvent(buy)
		if w.onBuy != nil {
			w.onBuy(buy)
		}
	}
	for _, refresh := range refreshes {
		w.verifier.AddRefreshEvent(refresh)
		if w.onRefresh != nil {
			w.onRefresh(refresh)
		}
	}
}
