// Package analytics derives the display summary from the ledger and the
// current position snapshot. Everything here is a pure function of its
// inputs; nothing is persisted.
package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/rovshanmuradov/portfolio-tracker/internal/ledger"
	"github.com/rovshanmuradov/portfolio-tracker/internal/portfolio"
)

const ttmWindow = 365 * 24 * time.Hour

// Summary is the reconciled financial picture shown to the user.
type Summary struct {
	TotalAssets    float64
	HoldingsValue  float64
	NetGain        float64
	TotalReturnPct float64
	RealisedPL     float64
	Fees           float64
	Deposits       float64
	DepositCount   int
	TTMDividends   float64

	// Sidebar-style derived stats.
	PositionCount int
	AvgPosition   float64
	CashPct       float64
	ZeroPLCount   int
}

// Compute combines ledger records with the live snapshot. With an empty
// ledger only the snapshot-derived fields are populated.
func Compute(records []ledger.Record, snap *portfolio.Snapshot, now time.Time) Summary {
	var s Summary

	var cash float64
	var positions []portfolio.Position
	if snap != nil {
		cash = snap.Cash
		positions = snap.Positions
	}

	for _, p := range positions {
		s.HoldingsValue += p.EstValue
		if p.Quantity > 0 {
			s.PositionCount++
		}
		if p.UnrealizedPL == 0 {
			s.ZeroPLCount++
		}
	}
	s.TotalAssets = s.HoldingsValue + cash

	if s.PositionCount > 0 {
		s.AvgPosition = s.TotalAssets / float64(s.PositionCount)
	}
	if s.TotalAssets > 0 {
		s.CashPct = cash / s.TotalAssets * 100
	}

	cutoff := now.Add(-ttmWindow)
	for _, r := range records {
		s.Fees += r.Fee
		s.RealisedPL += r.Result
		if strings.Contains(strings.ToLower(r.Type), "deposit") {
			s.Deposits += r.Total
			s.DepositCount++
		}
		if strings.Contains(strings.ToLower(r.Type), "dividend") &&
			r.Result > 0 && !r.Date.Before(cutoff) {
			s.TTMDividends += r.Result
		}
	}

	if len(records) > 0 {
		s.NetGain = s.TotalAssets - s.Deposits
		if s.Deposits > 0 {
			s.TotalReturnPct = s.NetGain / s.Deposits * 100
		}
	}

	return s
}

// SessionChange formats the percentage move of total assets against the
// previous successful refresh. Empty on the very first refresh.
func SessionChange(current, previous float64) string {
	if previous <= 0 {
		return ""
	}
	changePct := (current - previous) / previous * 100
	arrow := "↑"
	if changePct < 0 {
		arrow = "↓"
	}
	return fmt.Sprintf(" %s %+.2f%%", arrow, changePct)
}

// Status summarizes snapshot health: more than half the positions reporting
// zero P/L usually means the upstream feed is misbehaving.
func Status(positions []portfolio.Position) string {
	zero := 0
	for _, p := range positions {
		if p.UnrealizedPL == 0 {
			zero++
		}
	}
	if zero > len(positions)/2 {
		return fmt.Sprintf("Warning: %d zero P/L", zero)
	}
	return "OK"
}

// Warnings produces the staleness and concentration warning strings.
// Staleness is a derived fact only; it never blocks or forces a refresh.
func Warnings(snap *portfolio.Snapshot, lastSuccess, now time.Time, staleThreshold time.Duration, concentrationPct float64) []string {
	var warnings []string

	if lastSuccess.IsZero() || now.Sub(lastSuccess) > staleThreshold {
		minutes := 999
		if !lastSuccess.IsZero() {
			minutes = int(now.Sub(lastSuccess).Minutes())
		}
		warnings = append(warnings, fmt.Sprintf("Data stale (%d min ago)", minutes))
	}

	if snap != nil {
		var maxPct float64
		for _, p := range snap.Positions {
			if p.Quantity > 0 && p.PortfolioPct > maxPct {
				maxPct = p.PortfolioPct
			}
		}
		if maxPct > concentrationPct {
			warnings = append(warnings, fmt.Sprintf("High concentration: %.1f%% in one position", maxPct))
		}
	}

	return warnings
}
