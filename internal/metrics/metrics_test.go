package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Event("text", "live")
	m.Event("text", "live")
	m.Execution("flashcard", true)
	m.Execution("flashcard", false)
	m.LLMRequest("chat", time.Second, errors.New("boom"))
	m.Redactions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("text", "live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("flashcard", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("chat", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.redactions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Event("text", "live")
	m.Proposal("todo")
	m.SearchQuery("success")
}

func TestHandler(t *testing.T) {
	m := New()
	m.Proposal("todo")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `toolbot_proposals_total{kind="todo"} 1`))
}
