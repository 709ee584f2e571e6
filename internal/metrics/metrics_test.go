package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Mutation("add")
	m.Mutation("add")
	m.StorageFailure("add")
	m.Checkout("ok")
	m.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageFailures.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Mutation("add")
		m.StorageFailure("add")
		m.Checkout("failed")
		m.SetSessions(1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Mutation("clear")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cart_mutations_total{op="clear"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
