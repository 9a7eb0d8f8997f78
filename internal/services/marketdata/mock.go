package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/shopspring/decimal"
)

var _ Feed = (*Mock)(nil)

// Known approximate prices (for realistic mock data)
var mockPrices = map[string]float64{
	"bitcoin":       67000.00,
	"ethereum":      3500.00,
	"tether":        1.00,
	"binancecoin":   590.00,
	"solana":        150.00,
	"ripple":        0.52,
	"usd-coin":      1.00,
	"cardano":       0.45,
	"dogecoin":      0.15,
	"polkadot":      7.20,
	"litecoin":      82.00,
	"chainlink":     14.50,
	"avalanche-2":   35.00,
	"tron":          0.12,
	"matic-network": 0.70,
}

// Mock serves deterministic prices for development and tests. Unknown ids
// are reported as not found, as the real provider does.
type Mock struct {
	now func() time.Time
}

// NewMock creates a mock feed. now may be nil.
func NewMock(now func() time.Time) *Mock {
	if now == nil {
		now = time.Now
	}
	return &Mock{now: now}
}

// SpotPrice returns the mock quote for id
func (m *Mock) SpotPrice(ctx context.Context, id string) (*Quote, error) {
	q, ok := m.quote(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("No price data for %q", id))
	}
	return &q, nil
}

// Prices returns mock quotes for the known ids
func (m *Mock) Prices(ctx context.Context, ids []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(ids))
	for _, id := range ids {
		if q, ok := m.quote(id); ok {
			out[id] = q
		}
	}
	return out, nil
}

// OHLC walks backward from the current mock price, four-hour bars for short
// windows and daily bars beyond a month, mirroring the provider's granularity.
func (m *Mock) OHLC(ctx context.Context, id string, days int) ([]Candle, error) {
	q, ok := m.quote(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("No OHLC data for %q", id))
	}

	step := 4 * time.Hour
	if days > 30 {
		step = 24 * time.Hour
	}
	end := m.now().UTC().Truncate(step)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	// 1.5% swing, sign driven by the bar's hour and day
	vol := decimal.NewFromFloat(0.015)
	one := decimal.NewFromInt(1)

	candles := make([]Candle, 0, int(end.Sub(start)/step))
	closePrice := q.Price
	for t := end; t.After(start); t = t.Add(-step) {
		change := vol.Mul(decimal.NewFromFloat(float64((t.Day()+t.Hour())%10-5) / 5))
		openPrice := closePrice.Div(one.Add(change))

		high := decimal.Max(openPrice, closePrice).Mul(decimal.NewFromFloat(1.004))
		low := decimal.Min(openPrice, closePrice).Mul(decimal.NewFromFloat(0.996))
		candles = append(candles, Candle{
			Time:  t,
			Open:  openPrice.Round(6),
			High:  high.Round(6),
			Low:   low.Round(6),
			Close: closePrice.Round(6),
		})
		closePrice = openPrice
	}

	// oldest first, as the provider returns them
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func (m *Mock) quote(id string) (Quote, bool) {
	base, ok := mockPrices[id]
	if !ok {
		return Quote{}, false
	}
	price := decimal.NewFromFloat(base)
	change := m.mockChange(id)

	return Quote{
		ID:          id,
		Price:       price.Add(price.Mul(change).Div(decimal.NewFromInt(100))).Round(6),
		MarketCap:   price.Mul(decimal.NewFromInt(19_000_000)).Round(0),
		Change24h:   change.Round(2),
		LastUpdated: m.now().UTC(),
	}, true
}

// Small change based on id and time of day, -1.5% to +1.5%
func (m *Mock) mockChange(id string) decimal.Decimal {
	hash := 0
	for _, c := range id {
		hash += int(c)
	}
	now := m.now()
	hash += now.Day()*24 + now.Hour()

	return decimal.NewFromFloat(float64(hash%300-150) / 100.0)
}
