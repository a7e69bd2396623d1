package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "cashfree"),
		attribute.String("order_id", "DON_1"),
		attribute.String("outcome", "applied"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("provider"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhook(context.Background(), "cashfree", "PAYMENT_SUCCESS_WEBHOOK", "applied")
	m.RecordGatewayCall(context.Background(), "cashfree", "create_order", 200, time.Millisecond)

	var h *HTTPMetrics
	h.ObserveWebhook("cashfree", "applied")
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	require.NotNil(t, m)
	m.RecordReconcile(context.Background(), "webhook", "applied")
}

func TestGinMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m, err := newHTTPMetrics(registry, Config{ServiceName: "seva", Environment: "test"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("GET", "/health", "200")))

	m.ObserveWebhook("Cashfree", "ignored")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhookOutcomes.WithLabelValues("cashfree", "ignored")))
}

func TestHTTPMetricsRegisterTwice(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := newHTTPMetrics(registry, Config{})
	require.NoError(t, err)
	_, err = newHTTPMetrics(registry, Config{})
	require.NoError(t, err)
}
