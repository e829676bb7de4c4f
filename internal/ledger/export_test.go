package ledger

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exportRecords(t *testing.T) []Record {
	return []Record{
		{Date: date(t, "2025-03-01 10:00:00"), Type: TypeDividend, Ticker: "AAPL", Result: 5, Reference: "div-1"},
		{Date: date(t, "2025-02-01 10:00:00"), Type: TypeBuy, Ticker: "AAPL", Quantity: 2, Total: 300, Reference: "ord-1"},
		{Date: date(t, "2025-01-01 10:00:00"), Type: TypeDividend, Ticker: "VUSA", Result: 3, Reference: "div-2"},
	}
}

func TestExportCSV(t *testing.T) {
	e := NewExporter(zap.NewNop())
	dir := t.TempDir()

	path, err := e.Export(exportRecords(t), ExportOptions{
		Format:    FormatCSV,
		OutputDir: dir,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir))
	assert.True(t, strings.HasSuffix(path, ".csv"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, columns, rows[0])

	// Export order is oldest first.
	assert.Equal(t, "div-2", rows[1][11])
	assert.Equal(t, "ord-1", rows[2][11])
	assert.Equal(t, "div-1", rows[3][11])
}

func TestExportJSONFiltered(t *testing.T) {
	e := NewExporter(zap.NewNop())

	path, err := e.Export(exportRecords(t), ExportOptions{
		Format:     FormatJSON,
		TypeFilter: TypeDividend,
		Ticker:     "aapl",
		OutputDir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Contains(t, path, "ledger_dividend_aapl_")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []Record
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "div-1", out[0].Reference)
}

func TestExportDateWindow(t *testing.T) {
	e := NewExporter(zap.NewNop())

	path, err := e.Export(exportRecords(t), ExportOptions{
		Format:    FormatJSON,
		StartTime: date(t, "2025-01-15 00:00:00"),
		EndTime:   date(t, "2025-02-15 00:00:00"),
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []Record
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "ord-1", out[0].Reference)
}

func TestExportNoMatches(t *testing.T) {
	e := NewExporter(zap.NewNop())
	_, err := e.Export(exportRecords(t), ExportOptions{
		Format:    FormatCSV,
		Ticker:    "TSLA",
		OutputDir: t.TempDir(),
	})
	assert.Error(t, err)
}

func TestExportUnsupportedFormat(t *testing.T) {
	e := NewExporter(zap.NewNop())
	_, err := e.Export(exportRecords(t), ExportOptions{
		Format:    ExportFormat("xlsx"),
		OutputDir: t.TempDir(),
	})
	assert.Error(t, err)
}
