// Coinwatch - crypto watchlist and market data backend
// Entry point for the API server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/findosh/coinwatch/internal/config"
	"github.com/findosh/coinwatch/internal/handlers"
	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/metrics"
	"github.com/findosh/coinwatch/internal/middleware"
	"github.com/findosh/coinwatch/internal/pkg/ratelimit"
	"github.com/findosh/coinwatch/internal/services/auth"
	"github.com/findosh/coinwatch/internal/services/marketdata"
	"github.com/findosh/coinwatch/internal/services/notify"
	"github.com/findosh/coinwatch/internal/services/watchlist"
	"github.com/findosh/coinwatch/internal/storage"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("credential store ready", "driver", cfg.StoreDriver)

	notifier := notify.NewEmailNotifier(cfg, logger)
	if !notifier.Configured() {
		logger.Warn("SMTP not configured, password reset emails will fail")
	}

	// Optional shared upstream rate limit
	var limiter marketdata.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		limiter = ratelimit.NewRedisRateLimiter(rdb, logger, ratelimit.DefaultKey, cfg.UpstreamRate, cfg.UpstreamBurst)
		logger.Info("upstream rate limit enabled", "rate", cfg.UpstreamRate, "burst", cfg.UpstreamBurst)
	}

	// Initialize services
	authService := auth.NewService(cfg, store, notifier, logger)
	watchlistService := watchlist.NewService(store, cfg.StoreTimeout, logger)
	marketService, err := marketdata.NewService(marketdata.Config{
		Provider: marketdata.Provider(cfg.MarketProvider),
		BaseURL:  cfg.CoinGeckoBaseURL,
		APIKey:   cfg.CoinGeckoAPIKey,
		Timeout:  cfg.MarketTimeout,
		CacheTTL: cfg.MarketCacheTTL,
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	poller := marketdata.NewPoller(marketService, marketdata.PollerConfig{
		Symbols:  cfg.PollSymbols,
		Interval: cfg.PollInterval,
		Timeout:  cfg.MarketTimeout,
	}, logger)

	// Expired reset janitor
	janitor := cron.New()
	err = janitor.AddFunc(cfg.ResetPurgeSchedule, func() {
		n, err := authService.PurgeExpiredResets(ctx)
		if err != nil {
			logger.Warn("reset purge failed", "error", err)
			return
		}
		if n > 0 {
			metrics.ResetsPurgedTotal.Add(float64(n))
			logger.Info("expired resets purged", "count", n)
		}
	})
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	h := handlers.New(cfg, logger, authService, watchlistService, marketService, poller)
	handler := middleware.Chain(
		h.Routes(middleware.NewAuth(authService)),
		middleware.Recover(logger),
		middleware.SecurityHeaders,
	)

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when the process shuts down
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info("coinwatch server starting", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return poller.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
