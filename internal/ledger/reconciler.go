package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Target fields of the column mapping.
const (
	fieldDate      = "Date"
	fieldType      = "Type"
	fieldTicker    = "Ticker"
	fieldQuantity  = "Quantity"
	fieldPrice     = "Price"
	fieldTotal     = "Total"
	fieldResult    = "Result"
	fieldFXRate    = "FX_Rate"
	fieldCurrency  = "Currency"
	fieldNote      = "Note"
	fieldReference = "Reference"
)

// columnMatchers maps export headers to target fields: the first header
// containing the substring (case-insensitive) supplies the field. Evaluated
// once per import.
var columnMatchers = []struct {
	field string
	match string
}{
	{fieldDate, "time"},
	{fieldType, "action"},
	{fieldTicker, "ticker"},
	{fieldQuantity, "no. of shares"},
	{fieldPrice, "price / share"},
	{fieldTotal, "total"},
	{fieldResult, "result"},
	{fieldFXRate, "exchange rate"},
	{fieldCurrency, "currency (total)"},
	{fieldNote, "notes"},
	{fieldReference, "id"},
}

// feeMatchers: every header containing any of these is summed into one fee.
var feeMatchers = []string{"fee", "tax", "stamp", "conversion"}

// dateLayouts accepted from external exports, most specific first.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02-01-2006 15:04",
	"02-01-2006",
}

// Reconciler normalizes externally sourced transaction rows and merges them
// into the ledger without duplication.
type Reconciler struct {
	store  *Store
	logger *zap.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store *Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger.Named("reconciler"),
	}
}

// ImportCSV reads an arbitrary broker export and merges its rows into the
// ledger. It returns the count of newly added rows; zero new rows is a
// normal outcome, distinct from an unreadable file.
func (r *Reconciler) ImportCSV(src io.Reader) (int, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reconciler: read header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("reconciler: read rows: %w", err)
	}
	return r.ImportRows(header, rows)
}

// ImportRows normalizes raw rows under the given header and merges them.
func (r *Reconciler) ImportRows(header []string, rows [][]string) (int, error) {
	fieldIdx, feeIdx := mapColumns(header)
	mask := keyMask(fieldIdx)

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, normalizeRow(row, fieldIdx, feeIdx))
	}

	added, err := r.store.Merge(records, mask)
	if err != nil {
		return 0, err
	}
	r.logger.Info("Import reconciled",
		zap.Int("rows", len(rows)),
		zap.Int("added", added),
		zap.Int("ledger_total", r.store.Len()))
	return added, nil
}

// mapColumns resolves the header once: each target field takes the first
// matching column; fee-like columns are collected for summing.
func mapColumns(header []string) (map[string]int, []int) {
	lowered := make([]string, len(header))
	for i, h := range header {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	fieldIdx := make(map[string]int, len(columnMatchers))
	for _, m := range columnMatchers {
		for i, h := range lowered {
			if strings.Contains(h, m.match) {
				fieldIdx[m.field] = i
				break
			}
		}
	}

	var feeIdx []int
	for i, h := range lowered {
		for _, m := range feeMatchers {
			if strings.Contains(h, m) {
				feeIdx = append(feeIdx, i)
				break
			}
		}
	}
	return fieldIdx, feeIdx
}

// keyMask includes only the key fields the source actually supplied; a
// column absent from the export is a wildcard in the duplicate comparison.
func keyMask(fieldIdx map[string]int) KeyMask {
	var mask KeyMask
	if _, ok := fieldIdx[fieldDate]; ok {
		mask |= KeyDate
	}
	if _, ok := fieldIdx[fieldType]; ok {
		mask |= KeyType
	}
	if _, ok := fieldIdx[fieldTicker]; ok {
		mask |= KeyTicker
	}
	if _, ok := fieldIdx[fieldTotal]; ok {
		mask |= KeyTotal
	}
	if _, ok := fieldIdx[fieldReference]; ok {
		mask |= KeyReference
	}
	return mask
}

func normalizeRow(row []string, fieldIdx map[string]int, feeIdx []int) Record {
	get := func(field string) string {
		i, ok := fieldIdx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var fee float64
	for _, i := range feeIdx {
		if i < len(row) {
			fee += parseFloat(row[i])
		}
	}

	return Record{
		Date:      parseDate(get(fieldDate)),
		Type:      NormalizeType(get(fieldType)),
		Ticker:    get(fieldTicker),
		Quantity:  parseFloat(get(fieldQuantity)),
		Price:     parseFloat(get(fieldPrice)),
		Total:     parseFloat(get(fieldTotal)),
		Fee:       fee,
		Result:    parseFloat(get(fieldResult)),
		FXRate:    parseFloat(get(fieldFXRate)),
		Currency:  get(fieldCurrency),
		Note:      get(fieldNote),
		Reference: get(fieldReference),
	}
}

// parseFloat coerces permissively: unparsable values become 0, never an error.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseDate tries the known export layouts; an unparsable date stays zero and
// the row still imports (it sorts to the end of the ledger).
func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
