package portfolio

import (
	"math"
	"strings"
	"time"

	"github.com/rovshanmuradov/portfolio-tracker/internal/broker"
)

const (
	// zeroSnapEpsilon absorbs broker rounding noise: monetary magnitudes
	// below it are forced to exactly 0.00.
	zeroSnapEpsilon = 0.05

	// priceMoveThreshold is the minimal average-vs-current price move that
	// marks an API-reported zero P/L as implausible.
	priceMoveThreshold = 0.001
)

// Position is one held instrument. JSON field names follow the cache file
// contract and must not change.
type Position struct {
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	EstValue     float64 `json:"est_value"`
	UnrealizedPL float64 `json:"unrealised_pl"`
	TotalCost    float64 `json:"total_cost"`
	PortfolioPct float64 `json:"portfolio_pct"`
}

// Snapshot is one consistent capture of positions plus cash. It is immutable
// once produced; a newer fetch supersedes it, never mutates it.
type Snapshot struct {
	Positions  []Position
	Cash       float64
	CapturedAt time.Time
}

// RoundMoney rounds to 2 decimal places.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func snapZero(v float64) float64 {
	if math.Abs(v) < zeroSnapEpsilon {
		return 0
	}
	return v
}

// NormalizeTicker strips the exchange suffix, folds to upper case, and
// removes the trailing listing marker.
func NormalizeTicker(raw string) string {
	base := raw
	if i := strings.IndexByte(raw, '_'); i >= 0 {
		base = raw[:i]
	}
	return strings.TrimRight(strings.ToUpper(base), "L")
}

// newPosition builds a Position from a decoded API item, resolving the
// fallback P/L and applying the zero-snap and rounding policy.
// The second return value reports whether the fallback was used.
func newPosition(item broker.PositionItem) (Position, bool) {
	qty := item.Quantity.Float64()
	avgPrice := item.AveragePricePaid.Float64()
	currentPrice := item.CurrentPrice.Float64()
	estValue := item.WalletImpact.CurrentValue.Float64()
	apiPL := item.WalletImpact.UnrealizedProfitLoss.Float64()
	totalCost := item.WalletImpact.TotalCost.Float64()

	// The API is known to report a flat zero P/L for some instruments even
	// when the price has clearly moved; recompute locally in that case.
	unrealizedPL := apiPL
	fallbackUsed := false
	if apiPL == 0 && qty != 0 && math.Abs(currentPrice-avgPrice) > priceMoveThreshold {
		unrealizedPL = (currentPrice - avgPrice) * qty
		fallbackUsed = true
	}

	unrealizedPL = snapZero(unrealizedPL)
	estValue = snapZero(estValue)

	return Position{
		Ticker:       NormalizeTicker(item.Instrument.Ticker),
		Quantity:     qty,
		AvgPrice:     avgPrice,
		CurrentPrice: currentPrice,
		EstValue:     RoundMoney(estValue),
		UnrealizedPL: RoundMoney(unrealizedPL),
		TotalCost:    RoundMoney(totalCost),
	}, fallbackUsed
}

// ComputePercentages recomputes PortfolioPct over the whole set. Percentages
// sum to 100 across positions with a positive estimated value; when the total
// value is 0 every percentage is 0.
func ComputePercentages(positions []Position) {
	var total float64
	for _, p := range positions {
		total += p.EstValue
	}
	for i := range positions {
		if total > 0 {
			positions[i].PortfolioPct = positions[i].EstValue / total * 100
		} else {
			positions[i].PortfolioPct = 0
		}
	}
}
