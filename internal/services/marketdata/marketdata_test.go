package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/shopspring/decimal"
)

func newMockService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Provider: ProviderMock})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return svc
}

func TestNewService(t *testing.T) {
	if _, err := NewService(Config{Provider: ProviderMock}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := NewService(Config{Provider: "yahoo"}); err == nil {
		t.Error("Expected unknown provider to be rejected")
	}
}

func TestService_SpotPrice(t *testing.T) {
	svc := newMockService(t)

	quote, err := svc.SpotPrice(context.Background(), " Bitcoin ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if quote.ID != "bitcoin" {
		t.Errorf("Expected id bitcoin, got %s", quote.ID)
	}
	if !quote.Price.IsPositive() {
		t.Error("Expected positive price")
	}
}

func TestService_SpotPrice_Unknown(t *testing.T) {
	svc := newMockService(t)

	_, err := svc.SpotPrice(context.Background(), "notacoin")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}

	_, err = svc.SpotPrice(context.Background(), "  ")
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("Expected InvalidInput, got %v", err)
	}
}

func TestService_Prices(t *testing.T) {
	svc := newMockService(t)

	ids := []string{"bitcoin", "ethereum", "notacoin"}
	quotes, err := svc.Prices(context.Background(), ids)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(quotes) != 2 {
		t.Errorf("Expected 2 quotes, got %d", len(quotes))
	}
	for _, id := range ids[:2] {
		if _, ok := quotes[id]; !ok {
			t.Errorf("Missing quote for %s", id)
		}
	}
}

func TestService_OHLC(t *testing.T) {
	svc := newMockService(t)

	candles, err := svc.OHLC(context.Background(), "ethereum", 7)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(candles) != 7*6 {
		t.Errorf("Expected %d four-hour candles, got %d", 7*6, len(candles))
	}

	for i, c := range candles {
		if c.High.LessThan(c.Low) {
			t.Errorf("Candle %d: high below low", i)
		}
		if c.High.LessThan(decimal.Max(c.Open, c.Close)) || c.Low.GreaterThan(decimal.Min(c.Open, c.Close)) {
			t.Errorf("Candle %d: open/close outside range", i)
		}
		if i > 0 && !c.Time.After(candles[i-1].Time) {
			t.Errorf("Candle %d: not in chronological order", i)
		}
		if i > 0 && !c.Open.Equal(candles[i-1].Close) {
			t.Errorf("Candle %d: open does not continue previous close", i)
		}
	}
}

func TestService_OHLC_InvalidDays(t *testing.T) {
	svc := newMockService(t)

	for _, days := range []int{0, -3} {
		_, err := svc.OHLC(context.Background(), "bitcoin", days)
		if apperr.KindOf(err) != apperr.InvalidInput {
			t.Errorf("days=%d: expected InvalidInput, got %v", days, err)
		}
	}
}

func TestMock_IsDeterministic(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewMock(func() time.Time { return at })

	a, _ := m.SpotPrice(context.Background(), "solana")
	b, _ := m.SpotPrice(context.Background(), "solana")
	if !a.Price.Equal(b.Price) {
		t.Error("Expected the same price for the same instant")
	}
	if a.Change24h.Abs().GreaterThan(decimal.NewFromFloat(1.5)) {
		t.Errorf("Change out of range: %s", a.Change24h)
	}
}

type countingFeed struct {
	*Mock
	spot int
}

func (f *countingFeed) SpotPrice(ctx context.Context, id string) (*Quote, error) {
	f.spot++
	return f.Mock.SpotPrice(ctx, id)
}

func TestService_SpotPrice_Cached(t *testing.T) {
	feed := &countingFeed{Mock: NewMock(nil)}
	svc := NewServiceWithFeed(feed, time.Second, nil).WithCache(time.Hour)

	quote1, err := svc.SpotPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	quote2, err := svc.SpotPrice(context.Background(), "BITCOIN")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !quote1.Price.Equal(quote2.Price) {
		t.Error("Expected cached quote to return same price")
	}
	if feed.spot != 1 {
		t.Errorf("Expected one upstream call, got %d", feed.spot)
	}
}

func TestService_PricesWarmCache(t *testing.T) {
	feed := &countingFeed{Mock: NewMock(nil)}
	svc := NewServiceWithFeed(feed, time.Second, nil).WithCache(time.Hour)

	if _, err := svc.Prices(context.Background(), []string{"ethereum"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := svc.SpotPrice(context.Background(), "ethereum"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if feed.spot != 0 {
		t.Errorf("Expected spot price served from cache, got %d upstream calls", feed.spot)
	}
}

func TestService_NoCacheByDefault(t *testing.T) {
	feed := &countingFeed{Mock: NewMock(nil)}
	svc := NewServiceWithFeed(feed, time.Second, nil)

	svc.SpotPrice(context.Background(), "bitcoin")
	svc.SpotPrice(context.Background(), "bitcoin")
	if feed.spot != 2 {
		t.Errorf("Expected two upstream calls, got %d", feed.spot)
	}
}
