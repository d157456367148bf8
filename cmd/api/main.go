package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/parcela/pkg/cache"
	"github.com/mcclellann/parcela/pkg/clock"
	"github.com/mcclellann/parcela/pkg/config"
	"github.com/mcclellann/parcela/pkg/ledger"
	"github.com/mcclellann/parcela/pkg/store"
	"github.com/sirupsen/logrus"
)

// newCache prefers Redis when configured and reachable, and falls back to
// the in-process cache otherwise.
func newCache(cfg *config.Config, logger *logrus.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache()
	}

	rc := cache.NewRedisCache(cfg.RedisAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("Redis unavailable, using in-memory summary cache")
		rc.Close()
		return cache.NewMemoryCache()
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
	return rc
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := cfg.NewLogger()

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	summaryCache := newCache(cfg, logger)
	defer summaryCache.Close()

	var (
		clk clock.Clock = clock.Real{}
		sim *clock.Simulated
	)
	if cfg.EnableTimeTravel {
		sim = clock.NewSimulated(clock.Real{})
		clk = sim
		logger.Warn("Time travel enabled, /debug/clock routes are exposed")
	}

	l := ledger.NewLedger(sqliteStore,
		ledger.WithClock(clk),
		ledger.WithCache(summaryCache, cfg.SummaryCacheTTL),
		ledger.WithLogger(logger),
	)

	runRefresh(l, logger)
	job, err := startRefreshJob(cfg.RefreshSchedule, l, logger)
	if err != nil {
		logger.Fatalf("Failed to schedule installment refresh: %v", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      NewHandler(NewServer(l, sim, cfg.DefaultLateInterestRate, logger), cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	case <-quit:
		logger.Info("Shutting down server...")
	}

	<-job.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Error during server shutdown")
	}
	logger.Info("Server exited")
}
