package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"VendorWatch/internal/event"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/verify"
)

// HistoryStore mirrors verified exchanges and shop refreshes into a
// SQLite database for querying and statistics. The JSON logs stay the
// source of truth; this store only ever receives appends.
type HistoryStore struct {
	db      *sql.DB
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// ItemStats aggregates one item's (or one day's) verified exchanges.
type ItemStats struct {
	Count        int             `json:"count"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	TotalGemCost int             `json:"total_gem_cost"`
}

// Statistics summarizes the whole exchange history.
type Statistics struct {
	TotalRecords int                  `json:"total_records"`
	TotalProfit  decimal.Decimal      `json:"total_profit"`
	TotalGemCost int                  `json:"total_gem_cost"`
	ByItem       map[string]ItemStats `json:"items_count"`
	ByDate       map[string]ItemStats `json:"by_date"`
}

// NewHistoryStore opens (or creates) the database at dbPath. The
// _time_format option makes the driver store time.Time as ISO8601 text,
// which SQLite's date functions and range comparisons understand.
func NewHistoryStore(dbPath string, metrics *observability.Metrics) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &HistoryStore{
		db:      db,
		logger:  observability.NewLogger("history"),
		metrics: metrics,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	s.logger.Info().Str("path", dbPath).Msg("history database ready")
	return s, nil
}

func (s *HistoryStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchange_records (
		id TEXT PRIMARY KEY,
		ts DATETIME NOT NULL,
		item_id INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		item_quantity TEXT NOT NULL,
		original_price TEXT NOT NULL,
		converted_price TEXT NOT NULL,
		profit TEXT NOT NULL,
		gem_cost INTEGER NOT NULL,
		ocr_ts DATETIME,
		log_ts DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_exchange_records_ts ON exchange_records(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_exchange_records_item ON exchange_records(item_name);

	CREATE TABLE IF NOT EXISTS refresh_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		gem_cost INTEGER NOT NULL,
		spent_items TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_records_ts ON refresh_records(ts DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// AddExchangeRecords inserts verified exchanges, ignoring ids already
// present so replays are harmless.
func (s *HistoryStore) AddExchangeRecords(records []verify.ExchangeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO exchange_records (id, ts, item_id, item_name, item_quantity, original_price, converted_price, profit, gem_cost, ocr_ts, log_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(
			rec.ID,
			rec.Timestamp,
			rec.ItemID,
			rec.ItemName,
			rec.ItemQuantity,
			rec.OriginalPrice.String(),
			rec.ConvertedPrice.String(),
			rec.Profit.String(),
			rec.GemCost,
			rec.OCRTimestamp,
			rec.LogTimestamp,
		)
		if err != nil {
			if s.metrics != nil {
				s.metrics.PersistErrors.WithLabelValues("history").Inc()
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordsWritten.WithLabelValues("history").Add(float64(len(records)))
	}
	return nil
}

// AddRefreshEvents inserts shop refreshes. Spent items are stored as a
// JSON column; they are read back whole, never filtered on.
func (s *HistoryStore) AddRefreshEvents(events []event.RefreshEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO refresh_records (ts, gem_cost, spent_items) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		spent, err := json.Marshal(ev.SpentItems)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(ev.Timestamp, ev.GemCost, string(spent)); err != nil {
			if s.metrics != nil {
				s.metrics.PersistErrors.WithLabelValues("history").Inc()
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordsWritten.WithLabelValues("history").Add(float64(len(events)))
	}
	return nil
}

// ExchangesByDateRange returns verified exchanges inside [start, end],
// oldest first.
func (s *HistoryStore) ExchangesByDateRange(start, end time.Time) ([]verify.ExchangeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, ts, item_id, item_name, item_quantity, original_price, converted_price, profit, gem_cost, ocr_ts, log_ts
		FROM exchange_records
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExchangeRecords(rows)
}

// LatestExchanges returns up to limit exchanges, newest first.
func (s *HistoryStore) LatestExchanges(limit int) ([]verify.ExchangeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, ts, item_id, item_name, item_quantity, original_price, converted_price, profit, gem_cost, ocr_ts, log_ts
		FROM exchange_records
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExchangeRecords(rows)
}

func scanExchangeRecords(rows *sql.Rows) ([]verify.ExchangeRecord, error) {
	var out []verify.ExchangeRecord
	for rows.Next() {
		var rec verify.ExchangeRecord
		var originalPrice, convertedPrice, profit string
		err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.ItemID,
			&rec.ItemName,
			&rec.ItemQuantity,
			&originalPrice,
			&convertedPrice,
			&profit,
			&rec.GemCost,
			&rec.OCRTimestamp,
			&rec.LogTimestamp,
		)
		if err != nil {
			return nil, err
		}
		if rec.OriginalPrice, err = decimal.NewFromString(originalPrice); err != nil {
			return nil, err
		}
		if rec.ConvertedPrice, err = decimal.NewFromString(convertedPrice); err != nil {
			return nil, err
		}
		if rec.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, err
		}
		rec.Verified = true
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats aggregates the exchange history per item and per day.
func (s *HistoryStore) Stats() (Statistics, error) {
	stats := Statistics{
		TotalProfit: decimal.Zero,
		ByItem:      make(map[string]ItemStats),
		ByDate:      make(map[string]ItemStats),
	}

	rows, err := s.db.Query(`SELECT item_name, profit, gem_cost, date(ts) FROM exchange_records`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var itemName, profitStr, day string
		var gemCost int
		if err := rows.Scan(&itemName, &profitStr, &gemCost, &day); err != nil {
			return stats, err
		}
		profit, err := decimal.NewFromString(profitStr)
		if err != nil {
			return stats, err
		}

		stats.TotalRecords++
		stats.TotalProfit = stats.TotalProfit.Add(profit)
		stats.TotalGemCost += gemCost

		item := stats.ByItem[itemName]
		item.Count++
		item.TotalProfit = item.TotalProfit.Add(profit)
		item.TotalGemCost += gemCost
		stats.ByItem[itemName] = item

		date := stats.ByDate[day]
		date.Count++
		date.TotalProfit = date.TotalProfit.Add(profit)
		date.TotalGemCost += gemCost
		stats.ByDate[day] = date
	}
	return stats, rows.Err()
}
