package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Number decodes monetary and quantity fields permissively: JSON numbers,
// numeric strings, and null are accepted; unparsable strings degrade to 0.
// Structurally wrong values (objects, arrays) are an error so that the
// enclosing item can be skipped.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("broker: non-numeric value %s: %w", data, err)
	}
	*n = Number(f)
	return nil
}

// Float64 returns the decoded value.
func (n Number) Float64() float64 { return float64(n) }

// PositionItem mirrors one element of GET /equity/positions.
type PositionItem struct {
	Instrument struct {
		Ticker string `json:"ticker"`
	} `json:"instrument"`
	Quantity         Number `json:"quantity"`
	AveragePricePaid Number `json:"averagePricePaid"`
	CurrentPrice     Number `json:"currentPrice"`
	WalletImpact     struct {
		CurrentValue         Number `json:"currentValue"`
		UnrealizedProfitLoss Number `json:"unrealizedProfitLoss"`
		TotalCost            Number `json:"totalCost"`
	} `json:"walletImpact"`
}

// cashResponse mirrors GET /equity/account/cash. The API has shipped the
// balance under several names over time; the first present key wins.
type cashResponse struct {
	Free      *Number `json:"free"`
	FreeCash  *Number `json:"freeCash"`
	Cash      *Number `json:"cash"`
	Available *Number `json:"available"`
}

func (r cashResponse) balance() float64 {
	for _, v := range []*Number{r.Free, r.FreeCash, r.Cash, r.Available} {
		if v != nil {
			return v.Float64()
		}
	}
	return 0
}
