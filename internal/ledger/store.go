package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var columns = []string{
	"Date", "Type", "Ticker", "Quantity", "Price", "Total",
	"Fee", "Result", "FX_Rate", "Currency", "Note", "Reference",
}

// Store is the durable, append-mergeable transaction set. One CSV file holds
// the entire ledger; it is rewritten atomically after every successful merge.
// All writes go through the single owning process, so the mutex only guards
// in-process readers.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []Record
	logger  *zap.Logger
}

// Open loads the ledger at path, creating an empty store on first run.
// An unreadable file is treated as empty rather than fatal.
func Open(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.Named("ledger"),
	}
	if err := s.load(); err != nil {
		s.logger.Warn("Starting with empty ledger", zap.Error(err))
		s.records = nil
	}
	s.logger.Info("Ledger loaded", zap.Int("records", len(s.records)))
	return s, nil
}

// All returns a copy of the ledger, ordered by date descending.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of ledger records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Merge appends the incoming rows that are not already present under the
// composite key restricted to mask, deduplicates the union on the full key
// keeping the last occurrence, re-sorts by date descending, and persists.
// It returns the number of newly added rows; zero is a normal outcome.
func (s *Store) Merge(incoming []Record, mask KeyMask) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		existing[r.Key(mask)] = struct{}{}
	}

	var accepted []Record
	for _, r := range incoming {
		if _, dup := existing[r.Key(mask)]; dup {
			continue
		}
		accepted = append(accepted, r)
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	merged := dedupeKeepLast(append(s.records, accepted...))
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	s.records = merged
	if err := s.save(); err != nil {
		return 0, err
	}

	s.logger.Info("Ledger merged",
		zap.Int("added", len(accepted)),
		zap.Int("total", len(s.records)))
	return len(accepted), nil
}

// Clear wipes the ledger. Only ever called on an explicit user action.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return s.save()
}

func dedupeKeepLast(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		key := records[i].Key(FullKey)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, records[i])
	}
	// Restore original relative order of the kept rows.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("ledger: read: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	idx := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		idx[name] = i
	}

	var records []Record
	for _, row := range rows[1:] {
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		date, err := time.Parse(DateLayout, get("Date"))
		if err != nil {
			s.logger.Warn("Skipping ledger row with bad date", zap.String("date", get("Date")))
			continue
		}
		records = append(records, Record{
			Date:      date,
			Type:      get("Type"),
			Ticker:    get("Ticker"),
			Quantity:  parseFloat(get("Quantity")),
			Price:     parseFloat(get("Price")),
			Total:     parseFloat(get("Total")),
			Fee:       parseFloat(get("Fee")),
			Result:    parseFloat(get("Result")),
			FXRate:    parseFloat(get("FX_Rate")),
			Currency:  get("Currency"),
			Note:      get("Note"),
			Reference: get("Reference"),
		})
	}
	s.records = records
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("ledger: create directory: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("ledger: create: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		f.Close()
		return fmt.Errorf("ledger: write header: %w", err)
	}
	for _, r := range s.records {
		row := []string{
			r.Date.Format(DateLayout),
			r.Type,
			r.Ticker,
			formatFloat(r.Quantity),
			formatFloat(r.Price),
			formatFloat(r.Total),
			formatFloat(r.Fee),
			formatFloat(r.Result),
			formatFloat(r.FXRate),
			r.Currency,
			r.Note,
			r.Reference,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("ledger: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("ledger: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("ledger: replace: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
