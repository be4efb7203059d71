package main

import (
	"VendorWatch/internal/catalog"
	"VendorWatch/internal/gamelog"
	"VendorWatch/internal/inventory"
	"VendorWatch/internal/monitor"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/persistence"
	"VendorWatch/internal/season"
	"VendorWatch/internal/verify"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Game log
	GameLogPath string

	// Data files
	DataDir         string
	ItemCatalogPath string
	HistoryDBPath   string

	// Poll intervals
	WatchInterval time.Duration
	CheckInterval time.Duration

	// Verification
	CacheExpire time.Duration
	AutoCapture bool

	// Metrics
	MetricsAddr string
}

func DefaultConfig() Config {
	dataDir := envOrDefault("VW_DATA_DIR", "data")
	return Config{
		GameLogPath:     envOrDefault("VW_GAME_LOG_PATH", `D:\TapTap\PC Games\172664\UE_game.log`),
		DataDir:         dataDir,
		ItemCatalogPath: envOrDefault("VW_ITEM_CATALOG_PATH", filepath.Join(dataDir, "item.json")),
		HistoryDBPath:   envOrDefault("VW_HISTORY_DB_PATH", filepath.Join(dataDir, "history.db")),
		WatchInterval:   time.Duration(envIntOrDefault("VW_WATCH_INTERVAL_SECONDS", 2)) * time.Second,
		CheckInterval:   time.Duration(envIntOrDefault("VW_CHECK_INTERVAL_SECONDS", 5)) * time.Second,
		CacheExpire:     time.Duration(envIntOrDefault("VW_CACHE_EXPIRE_SECONDS", 60)) * time.Second,
		AutoCapture:     envBoolOrDefault("VW_AUTO_CAPTURE", false),
		MetricsAddr:     envOrDefault("VW_METRICS_ADDR", ":9091"),
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: VendorWatch starting...")

	cfg := DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("FATAL: create data dir: %v", err)
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	logger := observability.NewLogger("main")

	// --- Item catalog ---
	items, err := catalog.Load(cfg.ItemCatalogPath, observability.NewLogger("catalog"))
	if err != nil {
		log.Fatalf("FATAL: load item catalog: %v", err)
	}
	log.Printf("INFO: item catalog loaded (%d items)", items.Len())

	// --- Season-scoped data layout ---
	seasons := season.NewService(cfg.DataDir, observability.NewLogger("season"))

	// --- Stores ---
	exchanges := persistence.NewExchangeLogStore(filepath.Join(cfg.DataDir, "exchange_log.json"), metrics)
	refreshes := persistence.NewRefreshLogStore(filepath.Join(cfg.DataDir, "refresh_log.json"), metrics)
	ocrJournal := persistence.NewOCRLogStore(filepath.Join(cfg.DataDir, "ocr_recognition_log.json"), metrics)

	history, err := persistence.NewHistoryStore(cfg.HistoryDBPath, metrics)
	if err != nil {
		log.Fatalf("FATAL: open history db: %v", err)
	}
	defer history.Close()

	// --- Parsing pipeline ---
	inv := inventory.NewManager(observability.NewLogger("inventory"))
	parser := gamelog.NewParser(cfg.GameLogPath, inv, seasons, items, metrics)
	verifier := verify.NewService(items, ocrJournal, cfg.CacheExpire, metrics)

	// --- Watchers ---
	logWatcher := monitor.NewLogWatcher(parser, verifier, cfg.WatchInterval, metrics)
	exchangeMonitor := monitor.NewExchangeMonitor(verifier, exchanges, refreshes, history, cfg.CheckInterval, cfg.AutoCapture, metrics)
	exchangeMonitor.SetCallbacks(func(records []verify.ExchangeRecord) {
		for _, rec := range records {
			logger.Info().
				Str("item", rec.ItemName).
				Str("quantity", rec.ItemQuantity).
				Int("gem_cost", rec.GemCost).
				Str("profit", rec.Profit.String()).
				Msg("exchange verified and saved")
		}
	}, nil, nil)

	// --- Start goroutines ---
	errChan := make(chan error, 4)

	go func() {
		errChan <- logWatcher.Run(ctx)
	}()
	go func() {
		errChan <- exchangeMonitor.Run(ctx)
	}()

	// Prometheus metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		metricsServer.Shutdown(shutCtx)
	}()
	go func() {
		log.Printf("INFO: metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	log.Printf("INFO: VendorWatch ready (log=%s, watch=%s, check=%s, metrics=%s)",
		cfg.GameLogPath, cfg.WatchInterval, cfg.CheckInterval, cfg.MetricsAddr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
		}
	}

	cancel()

	// Flush anything the monitor verified but not yet persisted.
	if records := verifier.VerifyPurchases(); len(records) > 0 {
		if err := exchanges.AddRecords(records); err != nil {
			log.Printf("ERROR: final exchange flush failed: %v", err)
		}
		if err := history.AddExchangeRecords(records); err != nil {
			log.Printf("ERROR: final history flush failed: %v", err)
		}
	}
	if events := verifier.GetRefreshEvents(); len(events) > 0 {
		if err := refreshes.AddRecords(events); err != nil {
			log.Printf("ERROR: final refresh flush failed: %v", err)
		}
		if err := history.AddRefreshEvents(events); err != nil {
			log.Printf("ERROR: final refresh history flush failed: %v", err)
		}
	}

	log.Println("INFO: VendorWatch shutdown complete")
}

// --- Helpers ---

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}

func envBoolOrDefault(key string, defaultVal bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	default:
		return defaultVal
	}
}
