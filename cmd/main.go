package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/govalues/money"
	"github.com/tinoosan/daybook/db/migrations"
	"github.com/tinoosan/daybook/internal/config"
	"github.com/tinoosan/daybook/internal/events"
	"github.com/tinoosan/daybook/internal/events/kafka"
	httpapi "github.com/tinoosan/daybook/internal/httpapi/v1"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/rollover"
	"github.com/tinoosan/daybook/internal/service/daybook"
	"github.com/tinoosan/daybook/internal/storage/memory"
	pgstore "github.com/tinoosan/daybook/internal/storage/postgres"
	"github.com/tinoosan/daybook/internal/storage/sqlite"
)

// backend is a store that can also answer readiness probes.
type backend interface {
	daybook.Store
	httpapi.ReadyChecker
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	var pub daybook.Publisher = events.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error("kafka writer close", "err", err)
			}
		}()
		pub = kp
		logger.Info("event publisher: kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	svc := daybook.New(store,
		daybook.WithLogger(logger),
		daybook.WithPublisher(pub),
		daybook.WithCurrency(cfg.Currency),
	)

	if cfg.DevSeed {
		if err := seedDev(ctx, svc, cfg.Currency); err != nil {
			logger.Error("dev seed failed", "err", err)
		} else {
			logger.Info("DEV seed applied", "currency", cfg.Currency)
		}
	}

	if cfg.Rollover.Enabled {
		hour, minute, _ := cfg.Rollover.Clock()
		go rollover.NewScheduler(svc, hour, minute, logger).Start(ctx)
		logger.Info("monthly rollover enabled", "at", cfg.Rollover.At)
	}

	api := httpapi.New(svc, store, logger, httpapi.WithCORSOrigins(cfg.CORSOrigins))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("daybook service listening", "addr", srv.Addr, "currency", cfg.Currency)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
}

// openStore picks Postgres, then SQLite, then memory.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pg.Migrate(ctx, migrations.Init); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("storage backend: postgres")
		return pg, pg.Close, nil
	case cfg.SQLitePath != "":
		lite, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("storage backend: sqlite", "path", cfg.SQLitePath)
		return lite, func() {
			if err := lite.Close(); err != nil {
				logger.Error("sqlite close", "err", err)
			}
		}, nil
	}
	logger.Info("storage backend: memory")
	return memory.New(), func() {}, nil
}

// seedDev anchors an empty ledger at the start of the current month and posts
// two sample entries. An existing anchor is left alone.
func seedDev(ctx context.Context, svc daybook.Service, currency string) error {
	if _, err := svc.OpeningBalance(ctx); err == nil {
		return nil
	}
	start := ledger.MonthOf(time.Now()).Start()
	amt := func(minor int64) money.Amount {
		a, _ := money.NewAmountFromMinorUnits(currency, minor)
		return a
	}
	if _, err := svc.SetOpeningBalance(ctx, amt(5000000), start, "dev seed"); err != nil {
		return err
	}
	samples := []ledger.Entry{
		{Date: start.Add(9 * time.Hour), Description: "Freight for trip T-001", Kind: ledger.KindCredit, Amount: amt(1850000), AccountHead: "freight_income", VoucherType: "receipt", Party: "Acme Logistics"},
		{Date: start.Add(11 * time.Hour), Description: "Diesel MH12AB1234", Kind: ledger.KindDebit, Amount: amt(640000), AccountHead: "fuel", VoucherType: "fuel", Party: "Indian Oil"},
	}
	for _, e := range samples {
		if _, _, err := svc.AddEntry(ctx, e, ""); err != nil {
			return err
		}
	}
	return nil
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
