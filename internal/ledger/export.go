package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExportFormat represents the export file format.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures which rows are exported and where.
type ExportOptions struct {
	Format     ExportFormat
	TypeFilter string // normalized type, e.g. "Dividend"
	Ticker     string
	StartTime  time.Time
	EndTime    time.Time
	Filter     string // free-text substring match across fields
	OutputDir  string
}

// Exporter writes filtered ledger rows to disk.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a ledger exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export")}
}

// Export writes the matching records and returns the output path.
func (e *Exporter) Export(records []Record, options ExportOptions) (string, error) {
	filtered := e.filterRecords(records, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no ledger rows match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Date.Before(filtered[j].Date)
	})

	filename := e.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = e.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = e.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Ledger exported",
		zap.String("path", outputPath),
		zap.Int("rows", len(filtered)))
	return outputPath, nil
}

func (e *Exporter) filterRecords(records []Record, options ExportOptions) []Record {
	var out []Record
	for _, r := range records {
		if options.TypeFilter != "" && r.Type != options.TypeFilter {
			continue
		}
		if options.Ticker != "" && !strings.EqualFold(r.Ticker, options.Ticker) {
			continue
		}
		if !options.StartTime.IsZero() && r.Date.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && r.Date.After(options.EndTime) {
			continue
		}
		if !r.MatchesFilter(options.Filter) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (e *Exporter) generateFilename(options ExportOptions) string {
	base := "ledger"
	if options.TypeFilter != "" {
		base += "_" + strings.ToLower(options.TypeFilter)
	}
	if options.Ticker != "" {
		base += "_" + strings.ToLower(options.Ticker)
	}
	return fmt.Sprintf("%s_%s.%s", base, time.Now().Format("20060102_150405"), options.Format)
}

func (e *Exporter) exportToCSV(records []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Date.Format(DateLayout),
			r.Type,
			r.Ticker,
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			strconv.FormatFloat(r.Price, 'f', -1, 64),
			strconv.FormatFloat(r.Total, 'f', -1, 64),
			strconv.FormatFloat(r.Fee, 'f', -1, 64),
			strconv.FormatFloat(r.Result, 'f', -1, 64),
			strconv.FormatFloat(r.FXRate, 'f', -1, 64),
			r.Currency,
			r.Note,
			r.Reference,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

func (e *Exporter) exportToJSON(records []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}
