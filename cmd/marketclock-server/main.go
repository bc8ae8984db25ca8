package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"marketclock/internal/api"
	"marketclock/internal/config"
	"marketclock/internal/gather/us"
	"marketclock/internal/history"
	"marketclock/internal/httpapi"
	"marketclock/internal/marketdb"
	"marketclock/internal/observability/metrics"
	"marketclock/internal/store"
	"marketclock/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	db, err := marketdb.Load(cfg.Storage.MarketHoursPath)
	if err != nil {
		log.Fatalf("loading market hours: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating sqlite dir: %v", err)
	}
	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer sqlite.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Entries persisted by earlier holiday syncs override the file.
	saved, err := sqlite.LoadEntries(ctx)
	if err != nil {
		log.Fatalf("loading saved market hours: %v", err)
	}
	if len(saved) > 0 {
		db = db.WithEntries(saved)
	}
	holder := marketdb.NewHolder(db)
	logger.Info("market hours loaded",
		"path", cfg.Storage.MarketHoursPath,
		"entries", len(db.Keys()),
		"saved", len(saved),
	)

	m := metrics.New()
	hist := history.NewProvider(holder, store.NewParquetStore(cfg.Storage.DataDir), logger)
	httpSrv := httpapi.NewCalendarServer(holder, hist, m, logger)
	svc := api.NewCalendarService(holder, m, logger)
	srv := api.NewServer(cfg.Server.HTTPAddr(), cfg.Server.GRPCAddr(), httpSrv.Handler(), svc, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if cfg.Alpaca.Configured() && cfg.Calendar.SyncInterval > 0 {
		job := &us.HolidaySync{
			Client:   us.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL),
			Key:      cfg.Calendar.SyncKey,
			Back:     cfg.Calendar.SyncYearsBack,
			Ahead:    cfg.Calendar.SyncYearsAhead,
			Interval: cfg.Calendar.SyncInterval,
			Current:  holder.Load,
			Publish:  holder.Store,
			Store:    sqlite,
			Limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(cfg.Calendar.SyncRatePerMin, 1))), 1),
			Logger:   logger.With("gatherer", "us-holiday-sync"),
		}
		g.Go(func() error {
			return job.Run(gctx)
		})
	} else {
		logger.Info("holiday sync disabled",
			"alpaca", cfg.Alpaca.Configured(),
			"interval", cfg.Calendar.SyncInterval,
		)
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("marketclock-server stopped")
}
