package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestInvocationMetrics(t *testing.T) {
	RecordInvocationQueued("metrics-fn", "invoke")
	RecordInvocationQueued("metrics-fn", "invoke")
	RecordInvocationCompleted("metrics-fn", "timeout", 50*time.Millisecond)
	RecordInvocationsDropped("metrics-fn", 3)
	RecordFunctionStart("metrics-fn", "started")

	body := scrape(t)
	assert.Contains(t, body, `lambdev_invocations_queued_total{function="metrics-fn",trigger="invoke"} 2`)
	assert.Contains(t, body, `lambdev_invocations_completed_total{function="metrics-fn",status="timeout"} 1`)
	assert.Contains(t, body, `lambdev_invocations_dropped_total{function="metrics-fn"} 3`)
	assert.Contains(t, body, `lambdev_function_starts_total{function="metrics-fn",result="started"} 1`)
	assert.Contains(t, body, `lambdev_invocation_duration_seconds_count{function="metrics-fn"} 1`)
}

func TestGauges(t *testing.T) {
	SetActiveFunctions(4)
	SetPendingResponses(2)

	body := scrape(t)
	assert.Contains(t, body, "lambdev_functions_active 4")
	assert.Contains(t, body, "lambdev_pending_responses 2")
}

func TestHTTPMetrics(t *testing.T) {
	RecordHTTPRequest(http.MethodPost, "/metrics-test", http.StatusAccepted, 10*time.Millisecond)

	body := scrape(t)
	assert.Contains(t, body, `lambdev_http_requests_total{method="POST",path="/metrics-test",status="202"} 1`)
}
