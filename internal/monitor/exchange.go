package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"VendorWatch/internal/event"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/persistence"
	"VendorWatch/internal/verify"
)

// DefaultCheckInterval is how often pending captures are verified and
// persisted.
const DefaultCheckInterval = 5 * time.Second

// paidRefreshGemCost marks a refresh that consumed the standard gem fee.
// Such a refresh means the shop now shows new offers worth capturing.
const paidRefreshGemCost = 50

// ExchangeMonitor periodically verifies purchases, persists the results
// and prunes expired cache entries. Every step failure is logged and the
// loop continues; one bad write must not stop verification.
type ExchangeMonitor struct {
	verifier  *verify.Service
	exchanges *persistence.ExchangeLogStore
	refreshes *persistence.RefreshLogStore
	history   *persistence.HistoryStore // optional
	interval  time.Duration

	// autoCapture enables the onPaidRefresh trigger.
	autoCapture bool

	onVerified    func([]verify.ExchangeRecord)
	onRefresh     func([]event.RefreshEvent)
	onPaidRefresh func()

	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewExchangeMonitor(
	verifier *verify.Service,
	exchanges *persistence.ExchangeLogStore,
	refreshes *persistence.RefreshLogStore,
	history *persistence.HistoryStore,
	interval time.Duration,
	autoCapture bool,
	metrics *observability.Metrics,
) *ExchangeMonitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &ExchangeMonitor{
		verifier:    verifier,
		exchanges:   exchanges,
		refreshes:   refreshes,
		history:     history,
		interval:    interval,
		autoCapture: autoCapture,
		logger:      observability.NewLogger("exchange_monitor"),
		metrics:     metrics,
	}
}

// SetCallbacks registers listeners. onVerified fires after verified
// records are persisted, onRefresh after refresh events are persisted,
// onPaidRefresh when a gem-paid refresh was seen and auto capture is
// enabled. Call before Run.
func (m *ExchangeMonitor) SetCallbacks(
	onVerified func([]verify.ExchangeRecord),
	onRefresh func([]event.RefreshEvent),
	onPaidRefresh func(),
) {
	m.onVerified = onVerified
	m.onRefresh = onRefresh
	m.onPaidRefresh = onPaidRefresh
}

// Run executes the verification cycle until ctx is cancelled.
func (m *ExchangeMonitor) Run(ctx context.Context) error {
	m.logger.Info().Dur("interval", m.interval).Msg("exchange monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("exchange monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *ExchangeMonitor) tick() {
	start := time.Now()
	if m.metrics != nil {
		m.metrics.MonitorTicks.WithLabelValues("exchange_monitor").Inc()
		defer func() {
			m.metrics.MonitorTickDuration.WithLabelValues("exchange_monitor").Observe(time.Since(start).Seconds())
		}()
	}

	m.verifyStep()
	m.refreshStep()
	m.verifier.CleanExpiredRecords()
}

func (m *ExchangeMonitor) verifyStep() {
	verified := m.verifier.VerifyPurchases()
	if len(verified) == 0 {
		return
	}
	m.logger.Info().Int("records", len(verified)).Msg("purchases verified")

	if err := m.exchanges.AddRecords(verified); err != nil {
		m.logger.Error().Err(err).Msg("saving exchange records failed")
		m.stepError("persist_exchanges")
		return
	}
	if m.history != nil {
		if err := m.history.AddExchangeRecords(verified); err != nil {
			m.logger.Error().Err(err).Msg("writing exchange history failed")
			m.stepError("history_exchanges")
		}
	}
	if m.onVerified != nil {
		m.onVerified(verified)
	}
}

func (m *ExchangeMonitor) refreshStep() {
	events := m.verifier.GetRefreshEvents()
	if len(events) == 0 {
		return
	}

	if err := m.refreshes.AddRecords(events); err != nil {
		m.logger.Error().Err(err).Msg("saving refresh events failed")
		m.stepError("persist_refreshes")
		return
	}
	if m.history != nil {
		if err := m.history.AddRefreshEvents(events); err != nil {
			m.logger.Error().Err(err).Msg("writing refresh history failed")
			m.stepError("history_refreshes")
		}
	}
	if m.onRefresh != nil {
		m.onRefresh(events)
	}

	if m.autoCapture && m.onPaidRefresh != nil {
		for _, ev := range events {
			if ev.GemCost == paidRefreshGemCost {
				m.logger.Info().Msg("paid shop refresh seen, requesting capture")
				m.onPaidRefresh()
				break
			}
		}
	}
}

func (m *ExchangeMonitor) stepError(step string) {
	if m.metrics != nil {
		m.metrics.MonitorTickErrors.WithLabelValues("exchange_monitor", step).Inc()
	}
}
