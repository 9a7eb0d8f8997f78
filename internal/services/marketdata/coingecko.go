package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	apiKeyHeader        = "x-cg-demo-api-key"
	maxErrorBody        = 512
)

var _ Feed = (*CoinGecko)(nil)

// CoinGecko is a client for the public CoinGecko v3 API
type CoinGecko struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    Limiter
}

// NewCoinGecko creates a client. client and limiter may be nil.
func NewCoinGecko(baseURL, apiKey string, client *http.Client, limiter Limiter) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoinGecko{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
		limiter:    limiter,
	}
}

type simplePrice struct {
	USD           decimal.NullDecimal `json:"usd"`
	MarketCap     decimal.NullDecimal `json:"usd_market_cap"`
	Change24h     decimal.NullDecimal `json:"usd_24h_change"`
	LastUpdatedAt int64               `json:"last_updated_at"`
}

// SpotPrice fetches the current USD quote for id
func (c *CoinGecko) SpotPrice(ctx context.Context, id string) (*Quote, error) {
	quotes, err := c.Prices(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("No price data for %q", id))
	}
	return &q, nil
}

// Prices fetches USD quotes for ids in one request. Ids the upstream does not
// know are absent from the result.
func (c *CoinGecko) Prices(ctx context.Context, ids []string) (map[string]Quote, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_change", "true")
	q.Set("include_last_updated_at", "true")

	var raw map[string]simplePrice
	if err := c.getJSON(ctx, "simple_price", "/simple/price", q, &raw); err != nil {
		return nil, err
	}

	quotes := make(map[string]Quote, len(raw))
	for id, p := range raw {
		if !p.USD.Valid {
			continue
		}
		quote := Quote{
			ID:        id,
			Price:     p.USD.Decimal,
			MarketCap: p.MarketCap.Decimal,
			Change24h: p.Change24h.Decimal.Round(4),
		}
		if p.LastUpdatedAt > 0 {
			quote.LastUpdated = time.Unix(p.LastUpdatedAt, 0).UTC()
		}
		quotes[id] = quote
	}
	return quotes, nil
}

// OHLC fetches candles for id over the last days days
func (c *CoinGecko) OHLC(ctx context.Context, id string, days int) ([]Candle, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))

	var raw [][]decimal.Decimal
	path := "/coins/" + url.PathEscape(id) + "/ohlc"
	if err := c.getJSON(ctx, "ohlc", path, q, &raw); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		candles = append(candles, Candle{
			Time:  time.UnixMilli(row[0].IntPart()).UTC(),
			Open:  row[1],
			High:  row[2],
			Low:   row[3],
			Close: row[4],
		})
	}
	if len(candles) == 0 {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("No OHLC data for %q", id))
	}
	return candles, nil
}

func (c *CoinGecko) getJSON(ctx context.Context, endpoint, path string, query url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return apperr.Wrap(apperr.UpstreamError, "Market data rate limit exceeded", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return apperr.Wrap(apperr.UpstreamError, "Market data provider unavailable", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "decode_error").Inc()
		return apperr.Wrap(apperr.UpstreamError, "Market data provider returned an invalid response", err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Wrap(apperr.NotFound, "Coin not found", cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.UpstreamError, "Market data provider is rate limiting", cause)
	default:
		return apperr.Wrap(apperr.UpstreamError, "Market data provider error", cause)
	}
}
