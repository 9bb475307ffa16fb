package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/metrics"
)

func TestRegistry_SwapMetricsIncrementExposedCounters(t *testing.T) {
	reg := metrics.New()
	sm := reg.SwapMetrics()
	sm.IncUnexpectedTokenCount()
	sm.IncDustDropped()
	sm.IncDustDropped()

	body := scrape(t, reg.Handler())
	assert.Contains(t, body, "pipeline_indexer_unexpected_token_count_total 1")
	assert.Contains(t, body, "pipeline_indexer_dust_dropped_total 2")
}

func TestRegistry_IndexerMetricsIncrementExposedCounters(t *testing.T) {
	reg := metrics.New()
	im := reg.IndexerMetrics()
	im.IncTransactionsReceived()
	im.IncPublishDropped()

	body := scrape(t, reg.Handler())
	assert.Contains(t, body, "pipeline_indexer_transactions_received_total 1")
	assert.Contains(t, body, "pipeline_indexer_publish_dropped_total 1")
}

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var sb strings.Builder
	sb.Write(rec.Body.Bytes())
	return sb.String()
}
