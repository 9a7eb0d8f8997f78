package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/metrics"
)

const subscriberBuffer = 4

// Update is one poll result. Data must be treated as read-only; every
// subscriber receives the same map.
type Update struct {
	Timestamp time.Time        `json:"ts"`
	Data      map[string]Quote `json:"data"`
}

// PollerConfig is fixed at construction
type PollerConfig struct {
	Symbols  []string
	Interval time.Duration
	// Timeout bounds one upstream fetch. Defaults to Interval.
	Timeout time.Duration
}

// Poller fetches a fixed symbol set on an interval and fans each result out
// to subscribers. A failed or panicking tick is logged and skipped; the next
// tick always runs.
type Poller struct {
	source PriceSource
	cfg    PollerConfig
	log    *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan Update
	nextID uint64
	latest Update
	ticks  sync.WaitGroup
}

// NewPoller creates a poller. It does nothing until Run is called.
func NewPoller(source PriceSource, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	cfg.Symbols = append([]string(nil), cfg.Symbols...)
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{
		source: source,
		cfg:    cfg,
		log:    logger.With("component", "poller"),
		subs:   make(map[uint64]chan Update),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight ticks
func (p *Poller) Run(ctx context.Context) error {
	if len(p.cfg.Symbols) == 0 {
		p.log.WarnContext(ctx, "no symbols configured, poller idle")
		<-ctx.Done()
		return nil
	}

	p.log.InfoContext(ctx, "poller started", "symbols", p.cfg.Symbols, "interval", p.cfg.Interval)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			p.ticks.Wait()
			p.log.InfoContext(ctx, "poller stopped")
			return nil
		case <-ticker.C:
			p.spawn(ctx)
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.ticks.Add(1)
	go func() {
		defer p.ticks.Done()
		p.tick(ctx)
	}()
}

func (p *Poller) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.PollTotal.WithLabelValues("panic").Inc()
			p.log.ErrorContext(ctx, "poll panicked", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	data, err := p.source.Prices(ctx, p.cfg.Symbols)
	metrics.PollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollTotal.WithLabelValues("error").Inc()
		p.log.WarnContext(ctx, "poll failed", "error", err)
		return
	}

	if p.publish(Update{Timestamp: start.UTC(), Data: data}) {
		metrics.PollTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.PollTotal.WithLabelValues("stale").Inc()
	}
}

// publish stores u as the latest update and offers it to every subscriber
// without blocking. Updates older than the current latest are dropped.
func (p *Poller) publish(u Update) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.latest.Timestamp.IsZero() && !u.Timestamp.After(p.latest.Timestamp) {
		return false
	}
	p.latest = u

	for id, ch := range p.subs {
		select {
		case ch <- u:
		default:
			metrics.PollDroppedTotal.Inc()
			p.log.Debug("subscriber lagging, update skipped", "subscriber", id)
		}
	}
	return true
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (p *Poller) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()
	metrics.PollSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
			metrics.PollSubscribers.Dec()
		})
	}
}

// Latest returns the most recent update, if any poll has succeeded
func (p *Poller) Latest() (Update, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, !p.latest.Timestamp.IsZero()
}

// Symbols returns the polled ids
func (p *Poller) Symbols() []string {
	return append([]string(nil), p.cfg.Symbols...)
}
