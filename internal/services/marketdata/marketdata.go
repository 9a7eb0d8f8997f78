package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/logging"
	"github.com/shopspring/decimal"
)

// Provider represents a market data provider
type Provider string

const (
	ProviderMock      Provider = "mock"
	ProviderCoinGecko Provider = "coingecko"
)

// Quote is a point-in-time USD price for one coin
type Quote struct {
	ID          string          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	MarketCap   decimal.Decimal `json:"marketCap"`
	Change24h   decimal.Decimal `json:"change24h"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Candle is one open-high-low-close bar
type Candle struct {
	Time  time.Time       `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// PriceSource fetches quotes for several coins in one call
type PriceSource interface {
	Prices(ctx context.Context, ids []string) (map[string]Quote, error)
}

// Feed is a full market data backend
type Feed interface {
	PriceSource
	SpotPrice(ctx context.Context, id string) (*Quote, error)
	OHLC(ctx context.Context, id string, days int) ([]Candle, error)
}

// Limiter gates upstream calls
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config holds service configuration
type Config struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	// CacheTTL keeps spot quotes for this long. Zero disables caching.
	CacheTTL time.Duration
	Limiter  Limiter
	Logger   *slog.Logger
}

// Service validates requests and bounds each call to the configured feed
type Service struct {
	feed    Feed
	timeout time.Duration
	log     *slog.Logger

	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]cachedQuote
}

type cachedQuote struct {
	quote     Quote
	fetchedAt time.Time
}

// NewService creates a new market data service
func NewService(cfg Config) (*Service, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	var feed Feed
	switch cfg.Provider {
	case ProviderCoinGecko, "":
		feed = NewCoinGecko(cfg.BaseURL, cfg.APIKey, &http.Client{Timeout: cfg.Timeout}, cfg.Limiter)
	case ProviderMock:
		feed = NewMock(time.Now)
	default:
		return nil, fmt.Errorf("unknown market provider %q", cfg.Provider)
	}

	svc := NewServiceWithFeed(feed, cfg.Timeout, cfg.Logger)
	svc.cacheTTL = cfg.CacheTTL
	return svc, nil
}

// NewServiceWithFeed wraps an existing feed
func NewServiceWithFeed(feed Feed, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		feed:    feed,
		timeout: timeout,
		log:     logger.With("component", "marketdata"),
		cache:   make(map[string]cachedQuote),
	}
}

// WithCache sets the spot quote cache TTL and returns s
func (s *Service) WithCache(ttl time.Duration) *Service {
	s.cacheTTL = ttl
	return s
}

// SpotPrice returns the current quote for one coin id
func (s *Service) SpotPrice(ctx context.Context, id string) (*Quote, error) {
	id = normalizeID(id)
	if id == "" {
		return nil, apperr.New(apperr.InvalidInput, "Symbol is required")
	}

	if q, ok := s.cached(id); ok {
		return &q, nil
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	q, err := s.feed.SpotPrice(ctx, id)
	if err != nil {
		s.logFailure(ctx, "spot price", id, err)
		return nil, err
	}
	s.store(map[string]Quote{id: *q})
	return q, nil
}

// OHLC returns candles covering the last days days
func (s *Service) OHLC(ctx context.Context, id string, days int) ([]Candle, error) {
	id = normalizeID(id)
	if id == "" {
		return nil, apperr.New(apperr.InvalidInput, "Symbol is required")
	}
	if days <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "Days must be a positive integer")
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	candles, err := s.feed.OHLC(ctx, id, days)
	if err != nil {
		s.logFailure(ctx, "ohlc", id, err)
		return nil, err
	}
	return candles, nil
}

// Prices returns quotes for ids in one batched call
func (s *Service) Prices(ctx context.Context, ids []string) (map[string]Quote, error) {
	norm := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = normalizeID(id); id != "" {
			norm = append(norm, id)
		}
	}
	if len(norm) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "At least one symbol is required")
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	quotes, err := s.feed.Prices(ctx, norm)
	if err != nil {
		return nil, err
	}
	s.store(quotes)
	return quotes, nil
}

func (s *Service) cached(id string) (Quote, bool) {
	if s.cacheTTL <= 0 {
		return Quote{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[id]
	if !ok || time.Since(c.fetchedAt) >= s.cacheTTL {
		return Quote{}, false
	}
	return c.quote, true
}

func (s *Service) store(quotes map[string]Quote) {
	if s.cacheTTL <= 0 || len(quotes) == 0 {
		return
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, q := range quotes {
		s.cache[id] = cachedQuote{quote: q, fetchedAt: now}
	}
}

func (s *Service) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) logFailure(ctx context.Context, op, id string, err error) {
	if apperr.KindOf(err) == apperr.NotFound {
		return
	}
	s.log.WarnContext(ctx, "market data request failed", "op", op, "id", id, "error", err)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
