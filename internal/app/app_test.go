package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/observability"
	"github.com/odyssey-erp/inventory-ledger/internal/posting"
	_ "github.com/odyssey-erp/inventory-ledger/testing"
)

func TestTestModeDetected(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.IsProduction())
	assert.Equal(t, inventory.CostBasisWarehouse, cfg.LedgerPolicy().CostBasis)
	assert.False(t, cfg.LedgerPolicy().AllowNegativeStock)
	assert.Equal(t, posting.PayableOnFullReceipt, cfg.PostingConfig().PayableMode)
}

func TestConfigValidateRejectsUnknownPolicies(t *testing.T) {
	base := Config{OverReceipt: "reject", CostBasis: "warehouse", PayableMode: "full_receipt"}
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"over receipt": func(c *Config) { c.OverReceipt = "sometimes" },
		"cost basis":   func(c *Config) { c.CostBasis = "fifo" },
		"payable mode": func(c *Config) { c.PayableMode = "monthly" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestRouterHealthAndReadiness(t *testing.T) {
	metrics := observability.NewMetrics()
	cfg := &Config{AppRateLimit: 100}

	healthy := NewRouter(RouterParams{Config: cfg, Metrics: metrics, Database: stubPinger{}})
	rr := httptest.NewRecorder()
	healthy.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	down := NewRouter(RouterParams{Config: cfg, Database: stubPinger{err: errors.New("connection refused")}})
	rr = httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	healthy.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ledger_http_requests_total{code="200",route="/readyz"} 1`)
}
