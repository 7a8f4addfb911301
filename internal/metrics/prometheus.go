package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry        *prometheus.Registry
	postings        *prometheus.CounterVec
	fraudFlagged    *prometheus.CounterVec
	accrualOutcomes *prometheus.CounterVec
	postedAmount    *prometheus.CounterVec
	logger          *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		postings: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Committed ledger postings by transaction type",
		}, []string{"type"}),
		fraudFlagged: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_fraud_flags_total",
			Help: "Spends flagged as fraud by rule",
		}, []string{"rule"}),
		accrualOutcomes: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "accrual_outcomes_total",
			Help: "Outcomes of the periodic accrual jobs",
		}, []string{"job", "outcome"}),
		postedAmount: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_posted_amount_total",
			Help: "Absolute amount moved by committed postings by transaction type",
		}, []string{"type"}),
		logger: logger,
	}
}

// Hook records every committed posting.
func (c *Collector) Hook() ledger.Hook {
	return func(ctx context.Context, p ledger.Posting) {
		txType := string(p.Transaction.Type)
		c.postings.WithLabelValues(txType).Inc()
		c.postedAmount.WithLabelValues(txType).Add(p.Transaction.Amount.Abs().InexactFloat64())
		if p.Fraud != nil {
			for _, rule := range p.Fraud.Rules {
				c.fraudFlagged.WithLabelValues(rule).Inc()
			}
		}
	}
}

func (c *Collector) RecordAccrual(job, outcome string, count int) {
	c.accrualOutcomes.WithLabelValues(job, outcome).Add(float64(count))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}
