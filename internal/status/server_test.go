package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/toolbot/internal/activity"
	"github.com/vthunder/toolbot/internal/conversation"
	"github.com/vthunder/toolbot/internal/metrics"
)

type fakeBot struct{ phase string }

func (f fakeBot) Phase() string { return f.phase }
func (f fakeBot) Rooms() []conversation.RoomStats {
	return []conversation.RoomStats{{RoomID: "!a", Messages: 4, Pending: 1}}
}

type fakeExecutions map[string]int

func (f fakeExecutions) CountByRoom(context.Context) (map[string]int, error) { return f, nil }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Options{Bot: fakeBot{phase: "replaying"}})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/healthz").Code)

	s = New(Options{Bot: fakeBot{phase: "live"}})
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
}

func TestStatus(t *testing.T) {
	s := New(Options{Bot: fakeBot{phase: "live"}, Executions: fakeExecutions{"!a": 2}})
	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "live", snap.Phase)
	require.Len(t, snap.Rooms, 1)
	assert.Equal(t, 4, snap.Rooms[0].Messages)
	assert.Equal(t, 2, snap.Executions["!a"])
}

func TestActivity(t *testing.T) {
	log := activity.New(filepath.Join(t.TempDir(), "activity.jsonl"))
	require.NoError(t, log.LogRoom("!a", "joined"))
	require.NoError(t, log.LogRoom("!b", "joined"))

	s := New(Options{Bot: fakeBot{phase: "live"}, Activity: log})

	rec := get(t, s.Handler(), "/activity?room=!b")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []activity.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "!b", entries[0].Room)

	require.NoError(t, log.LogProposal("!a", "$p1", "todo", "Buy milk"))
	rec = get(t, s.Handler(), "/activity?type=proposal")
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "$p1", entries[0].EventID)

	rec = get(t, s.Handler(), "/activity?q=MILK")
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, activity.TypeProposal, entries[0].Type)

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/activity?limit=x").Code)
	assert.Equal(t, http.StatusNotFound, get(t, New(Options{Bot: fakeBot{}}).Handler(), "/activity").Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.Proposal("flashcard")
	s := New(Options{Bot: fakeBot{phase: "live"}, Metrics: m.Handler()})
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "toolbot_proposals_total")
}
