package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"VendorWatch/internal/event"
	"VendorWatch/internal/observability"
	"VendorWatch/internal/verify"
)

// writeJSONFile writes v atomically: the payload lands in a temp file in
// the same directory and is renamed over the target.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// ExchangeLogStore keeps verified exchange records in a JSON array file.
type ExchangeLogStore struct {
	mu      sync.Mutex
	path    string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewExchangeLogStore(path string, metrics *observability.Metrics) *ExchangeLogStore {
	return &ExchangeLogStore{
		path:    path,
		logger:  observability.NewLogger("exchange_log"),
		metrics: metrics,
	}
}

func (s *ExchangeLogStore) Path() string {
	return s.path
}

// Load reads every record from the file. A missing file is an empty log.
func (s *ExchangeLogStore) Load() ([]verify.ExchangeRecord, error) {
	var records []verify.ExchangeRecord
	if err := readJSONFile(s.path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AddRecords appends records and rewrites the file sorted by timestamp.
func (s *ExchangeLogStore) AddRecords(records []verify.ExchangeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Load()
	if err != nil {
		return err
	}
	existing = append(existing, records...)
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].Timestamp.Before(existing[j].Timestamp)
	})

	if err := writeJSONFile(s.path, existing); err != nil {
		if s.metrics != nil {
			s.metrics.PersistErrors.WithLabelValues("exchange_log").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordsWritten.WithLabelValues("exchange_log").Add(float64(len(records)))
	}
	s.logger.Info().Int("records", len(records)).Msg("exchange records saved")
	return nil
}

// RecordsByDateRange returns records whose timestamp falls inside
// [start, end].
func (s *ExchangeLogStore) RecordsByDateRange(start, end time.Time) ([]verify.ExchangeRecord, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []verify.ExchangeRecord
	for _, rec := range records {
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// RecordsByItemName returns records for one item.
func (s *ExchangeLogStore) RecordsByItemName(name string) ([]verify.ExchangeRecord, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []verify.ExchangeRecord
	for _, rec := range records {
		if rec.ItemName == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

// LatestRecords returns up to limit records, newest first.
func (s *ExchangeLogStore) LatestRecords(limit int) ([]verify.ExchangeRecord, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// DeleteByTimestamp removes records with exactly the given timestamp.
func (s *ExchangeLogStore) DeleteByTimestamp(ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load()
	if err != nil {
		return false, err
	}
	kept := records[:0]
	for _, rec := range records {
		if !rec.Timestamp.Equal(ts) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return false, nil
	}
	return true, writeJSONFile(s.path, kept)
}

// Clear truncates the log to an empty array.
func (s *ExchangeLogStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.path, []verify.ExchangeRecord{})
}

// Backup copies the current log next to itself with a timestamp suffix
// and returns the backup path.
func (s *ExchangeLogStore) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	backupPath := fmt.Sprintf("%s.backup_%s", s.path, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", backupPath).Msg("exchange log backed up")
	return backupPath, nil
}

// RefreshLogStore keeps shop refresh events in a JSON array file.
type RefreshLogStore struct {
	mu      sync.Mutex
	path    string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewRefreshLogStore(path string, metrics *observability.Metrics) *RefreshLogStore {
	return &RefreshLogStore{
		path:    path,
		logger:  observability.NewLogger("refresh_log"),
		metrics: metrics,
	}
}

func (s *RefreshLogStore) Load() ([]event.RefreshEvent, error) {
	var events []event.RefreshEvent
	if err := readJSONFile(s.path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *RefreshLogStore) AddRecords(events []event.RefreshEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Load()
	if err != nil {
		return err
	}
	existing = append(existing, events...)
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].Timestamp.Before(existing[j].Timestamp)
	})

	if err := writeJSONFile(s.path, existing); err != nil {
		if s.metrics != nil {
			s.metrics.PersistErrors.WithLabelValues("refresh_log").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordsWritten.WithLabelValues("refresh_log").Add(float64(len(events)))
	}
	s.logger.Info().Int("events", len(events)).Msg("refresh events saved")
	return nil
}

// OCRLogStore journals OCR capture records. It satisfies verify.Journal.
type OCRLogStore struct {
	mu      sync.Mutex
	path    string
	metrics *observability.Metrics
}

func NewOCRLogStore(path string, metrics *observability.Metrics) *OCRLogStore {
	return &OCRLogStore{path: path, metrics: metrics}
}

func (s *OCRLogStore) Load() ([]verify.OcrRecognitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []verify.OcrRecognitionRecord
	if err := readJSONFile(s.path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *OCRLogStore) Save(records []verify.OcrRecognitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONFile(s.path, records); err != nil {
		if s.metrics != nil {
			s.metrics.PersistErrors.WithLabelValues("ocr_log").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordsWritten.WithLabelValues("ocr_log").Add(float64(len(records)))
	}
	return nil
}
