package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mandycs/CaixaBankCodingChallenge/internal/fraud"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/ledger"
	"github.com/mandycs/CaixaBankCodingChallenge/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookCountsPostings(t *testing.T) {
	c := NewCollector(nil)
	hook := c.Hook()

	hook(context.Background(), ledger.Posting{
		Transaction: models.Transaction{Type: models.TypeDeposit, Amount: decimal.RequireFromString("120.5")},
		Accounts:    []models.Account{{ID: "a1", Balance: decimal.RequireFromString("120.5")}},
	})
	hook(context.Background(), ledger.Posting{
		Transaction: models.Transaction{Type: models.TypeWithdrawal, Amount: decimal.RequireFromString("-100")},
		Accounts:    []models.Account{{ID: "a1", Balance: decimal.RequireFromString("20.5")}},
		Fraud:       &fraud.Decision{Fraud: true, Rules: []string{fraud.RuleHighDeviation, fraud.RuleUnusualCategory}},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.postings.WithLabelValues("DEPOSIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.postings.WithLabelValues("WITHDRAWAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fraudFlagged.WithLabelValues(fraud.RuleHighDeviation)))
	assert.Equal(t, 120.5, testutil.ToFloat64(c.postedAmount.WithLabelValues("DEPOSIT")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.postedAmount.WithLabelValues("WITHDRAWAL")))
}

func TestHookKeepsSeriesBoundedAcrossAccounts(t *testing.T) {
	c := NewCollector(nil)
	hook := c.Hook()

	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		hook(context.Background(), ledger.Posting{
			Transaction: models.Transaction{Type: models.TypeDeposit, Amount: decimal.NewFromInt(10)},
			Accounts:    []models.Account{{ID: id, Balance: decimal.NewFromInt(10)}},
		})
	}

	count, err := testutil.GatherAndCount(c.registry)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 40.0, testutil.ToFloat64(c.postedAmount.WithLabelValues("DEPOSIT")))
}

func TestRecordAccrual(t *testing.T) {
	c := NewCollector(nil)
	c.RecordAccrual("subscriptions", "charged", 3)
	c.RecordAccrual("subscriptions", "charged", 2)
	c.RecordAccrual("subscriptions", "failed", 0)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.accrualOutcomes.WithLabelValues("subscriptions", "charged")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.accrualOutcomes.WithLabelValues("subscriptions", "failed")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := NewCollector(nil)
	c.RecordAccrual("auto_invest", "bought", 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `accrual_outcomes_total{job="auto_invest",outcome="bought"} 1`)
}
