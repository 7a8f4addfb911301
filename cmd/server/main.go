package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/accrual"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/alerts"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/api"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/config"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/events/kafka"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/fraud"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/fx"
	interfaces "github.com/mandycs/CaixaBankCodingChallenge/internal/interfaces"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/marketdata"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/metrics"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/notify"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/projection"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/storage/memory"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/storage/sqlstore"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/trading"
)

const appName = "ledger"

// store is everything the services need from persistence.
type store interface {
	interfaces.LedgerStore
	interfaces.TransactionHistory
	interfaces.SubscriptionStore
	interfaces.AutoInvestStore
	interfaces.AlertStore
	interfaces.ExpenseStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("store", cfg.StoreDriver))

	if err := run(cfg, logger); err != nil {
		logger.Error("Application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Application shutdown complete")
}

func setupLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	exchange, err := fx.Load(cfg.FXRatesFile, cfg.FXFeesFile)
	if err != nil {
		return fmt.Errorf("failed to load exchange tables: %w", err)
	}

	collector := metrics.NewCollector(logger)
	notifications := notify.NewService(notify.NewLogSender(logger), cfg.NotifyWorkers, 100, logger)

	hooks := []ledger.Hook{
		collector.Hook(),
		alerts.Hook(st, notifications, logger),
	}
	var publisher *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		hooks = append(hooks, kafka.PostingHook(publisher, logger))
		logger.Info("Publishing ledger events",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic))
	}

	ledgerService := ledger.NewLedger(st,
		ledger.WithFraudScorer(fraud.NewScorer(st, fraud.DefaultConfig(), logger)),
		ledger.WithHooks(hooks...),
		ledger.WithLogger(logger))

	prices := marketdata.NewHTTPProvider(cfg.MarketPricesURL, cfg.PriceTimeout, cfg.PriceCacheTTL, logger)

	accrualCfg := accrual.DefaultConfig()
	accrualCfg.PriceTimeout = cfg.PriceTimeout
	engine := accrual.NewEngine(ledgerService, st, st, prices, accrualCfg,
		accrual.WithLogger(logger),
		accrual.WithRecorder(collector))

	apiHandler := api.NewHandler(api.Deps{
		Ledger:   ledgerService,
		Desk:     trading.NewDesk(ledgerService, prices, cfg.PriceTimeout, logger),
		Exchange: exchange,
		Planner:  projection.NewPlanner(st, nil),
		Accrual:  engine,
		Alerts:   st,
	}, logger)

	scheduler := accrual.NewScheduler(engine, cfg.SubscriptionInterval, cfg.AutoInvestInterval, logger)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	metricsServer := collector.StartServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, apiHandler, logger)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	<-schedulerDone

	if err := notifications.Shutdown(shutdownCtx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("Kafka publisher close failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, func() { s.Close() }, nil
	case config.DriverSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		return memory.NewMemoryLedgerStore(), func() {}, nil
	}
}

func startHTTPServer(addr string, apiHandler *api.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      apiHandler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}
