package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveToolCall(t *testing.T) {
	before := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("get_gold_price", "ok"))
	ObserveToolCall("get_gold_price", "ok", 120*time.Millisecond)
	ObserveToolCall("get_gold_price", "ok", 80*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(ToolCallsTotal.WithLabelValues("get_gold_price", "ok")))
	assert.Positive(t, testutil.CollectAndCount(ToolCallsTotal, "nbp_mcp_tool_calls_total"))
	assert.Positive(t, testutil.CollectAndCount(ToolCallDuration, "nbp_mcp_tool_call_duration_seconds"))
}

func TestObserveUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("rates", "not_found"))
	ObserveUpstream("rates", "not_found", 30*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("rates", "not_found")))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")))
}
