package ledger

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the human-readable timestamp format used in the ledger file.
const DateLayout = "2006-01-02 15:04:05"

// Normalized transaction types. Unrecognized source strings pass through
// unchanged as free text.
const (
	TypeBuy        = "Buy"
	TypeSell       = "Sell"
	TypeDeposit    = "Deposit"
	TypeWithdrawal = "Withdrawal"
	TypeDividend   = "Dividend"
)

// Record is one ledger transaction. Records are immutable once merged;
// corrections arrive as new imported records.
type Record struct {
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Ticker    string    `json:"ticker"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Total     float64   `json:"total"`
	Fee       float64   `json:"fee"`
	Result    float64   `json:"result"`
	FXRate    float64   `json:"fx_rate"`
	Currency  string    `json:"currency"`
	Note      string    `json:"note"`
	Reference string    `json:"reference"`
}

// KeyMask selects which composite-key fields participate in a comparison.
// A field is excluded only when the import source never supplied the column
// at all; an empty value still participates.
type KeyMask uint8

const (
	KeyDate KeyMask = 1 << iota
	KeyType
	KeyTicker
	KeyTotal
	KeyReference

	// FullKey is the complete composite key {date, type, ticker, total, reference}.
	FullKey = KeyDate | KeyType | KeyTicker | KeyTotal | KeyReference
)

// Key renders the composite key restricted to the masked fields. Both sides
// of a comparison must use the same mask.
func (r Record) Key(mask KeyMask) string {
	var b strings.Builder
	if mask&KeyDate != 0 {
		if r.Date.IsZero() {
			b.WriteString("-")
		} else {
			b.WriteString(r.Date.Format(DateLayout))
		}
	}
	b.WriteByte(0x1f)
	if mask&KeyType != 0 {
		b.WriteString(r.Type)
	}
	b.WriteByte(0x1f)
	if mask&KeyTicker != 0 {
		b.WriteString(r.Ticker)
	}
	b.WriteByte(0x1f)
	if mask&KeyTotal != 0 {
		b.WriteString(strconv.FormatFloat(r.Total, 'f', -1, 64))
	}
	b.WriteByte(0x1f)
	if mask&KeyReference != 0 {
		b.WriteString(r.Reference)
	}
	return b.String()
}

// NormalizeType folds an arbitrary source type string into the closed set of
// known types. Anything unmatched passes through unchanged.
func NormalizeType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "buy"):
		return TypeBuy
	case strings.Contains(s, "sell"):
		return TypeSell
	case strings.Contains(s, "deposit"):
		return TypeDeposit
	case strings.Contains(s, "withdraw"):
		return TypeWithdrawal
	case strings.Contains(s, "dividend"):
		return TypeDividend
	}
	return strings.TrimSpace(raw)
}

// MatchesFilter reports whether any textual or numeric field of the record
// contains the given lower-cased needle.
func (r Record) MatchesFilter(needle string) bool {
	if needle == "" {
		return true
	}
	needle = strings.ToLower(needle)
	fields := []string{
		r.Date.Format(DateLayout),
		r.Type,
		r.Ticker,
		r.Currency,
		r.Note,
		r.Reference,
		strconv.FormatFloat(r.Total, 'f', 2, 64),
		strconv.FormatFloat(r.Result, 'f', 2, 64),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
