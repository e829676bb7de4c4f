package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "transactions.csv"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func sampleRecords(t *testing.T) []Record {
	return []Record{
		{Date: date(t, "2025-01-10 09:00:00"), Type: TypeBuy, Ticker: "AAPL", Quantity: 2, Price: 150, Total: 300, Reference: "ord-1"},
		{Date: date(t, "2025-02-01 12:30:00"), Type: TypeDeposit, Total: 1000, Reference: "dep-1"},
		{Date: date(t, "2025-01-20 16:45:00"), Type: TypeDividend, Ticker: "AAPL", Result: 5.5, Reference: "div-1"},
	}
}

func TestMergeSortsDateDescending(t *testing.T) {
	s := openTestStore(t)

	added, err := s.Merge(sampleRecords(t), FullKey)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "dep-1", all[0].Reference)
	assert.Equal(t, "div-1", all[1].Reference)
	assert.Equal(t, "ord-1", all[2].Reference)
}

func TestMergeIdempotent(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Merge(sampleRecords(t), FullKey)
	require.NoError(t, err)

	added, err := s.Merge(sampleRecords(t), FullKey)
	require.NoError(t, err)
	assert.Equal(t, 0, added, "re-merging the same rows adds nothing")
	assert.Equal(t, 3, s.Len())
}

func TestMergeMaskedKeyIgnoresMissingColumns(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Merge(sampleRecords(t), FullKey)
	require.NoError(t, err)

	// The same buy, but from a source that never supplied a reference column.
	again := []Record{
		{Date: date(t, "2025-01-10 09:00:00"), Type: TypeBuy, Ticker: "AAPL", Quantity: 2, Price: 150, Total: 300},
	}
	mask := FullKey &^ KeyReference

	added, err := s.Merge(again, mask)
	require.NoError(t, err)
	assert.Equal(t, 0, added, "absent column acts as a wildcard in the comparison")
}

func TestMergePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")
	first, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	_, err = first.Merge(sampleRecords(t), FullKey)
	require.NoError(t, err)

	second, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, first.All(), second.All())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "atomic replace leaves no temp file")
}

func TestOpenUnreadableFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte("\"broken"), 0644))

	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Merge(sampleRecords(t), FullKey)
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())

	reopened, err := Open(s.path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]string{
		"Market buy":              TypeBuy,
		"LIMIT SELL":              TypeSell,
		"Deposit":                 TypeDeposit,
		"Withdrawal request":      TypeWithdrawal,
		"Dividend (Ordinary)":     TypeDividend,
		"Interest on cash":        "Interest on cash",
		"  Card debit  ":          "Card debit",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeType(raw), "type %q", raw)
	}
}

func TestMatchesFilter(t *testing.T) {
	r := Record{
		Date:      date(t, "2025-03-05 10:00:00"),
		Type:      TypeDividend,
		Ticker:    "VUSA",
		Result:    12.34,
		Note:      "Quarterly payout",
		Reference: "abc-123",
	}
	assert.True(t, r.MatchesFilter(""))
	assert.True(t, r.MatchesFilter("vusa"))
	assert.True(t, r.MatchesFilter("quarterly"))
	assert.True(t, r.MatchesFilter("12.34"))
	assert.True(t, r.MatchesFilter("2025-03"))
	assert.False(t, r.MatchesFilter("tesla"))
}
