package todoist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/toolbot/internal/tasks"
)

type recorded struct {
	method, path string
	header       http.Header
	body         map[string]any
}

func newServer(t *testing.T) (*Client, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, header: r.Header.Clone()}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/projects":
			w.Write([]byte(`[{"id":"1","name":"Inbox"},{"id":"2","name":"errands"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/projects":
			w.Write([]byte(`{"id":"3","name":"Errands"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			w.Write([]byte(`{"id":"2995104339","content":"Buy milk","project_id":"3","url":"https://todoist.com/showTask?id=2995104339"}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return NewClient("tok", 0).WithBaseURL(srv.URL), &reqs
}

func TestGetOrCreateProjectIsCaseSensitive(t *testing.T) {
	c, reqs := newServer(t)

	p, err := tasks.GetOrCreateProject(context.Background(), c, "Errands")
	require.NoError(t, err)
	assert.Equal(t, "3", p.ID)
	require.Len(t, *reqs, 2)
	assert.Equal(t, "Errands", (*reqs)[1].body["name"])

	p, err = tasks.GetOrCreateProject(context.Background(), c, "Inbox")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)
	assert.Len(t, *reqs, 3)
}

func TestCreateTask(t *testing.T) {
	c, reqs := newServer(t)

	task, err := c.CreateTask(context.Background(), tasks.NewTask{
		Content:   "Buy milk",
		DueString: "tomorrow",
		Priority:  2,
		Labels:    []string{"home"},
		ProjectID: "3",
	})
	require.NoError(t, err)
	assert.Equal(t, "2995104339", task.ID)

	req := (*reqs)[0]
	assert.Equal(t, "Bearer tok", req.header.Get("Authorization"))
	_, err = uuid.Parse(req.header.Get("X-Request-Id"))
	assert.NoError(t, err, "X-Request-Id should be a uuid")
	assert.Equal(t, "tomorrow", req.body["due_string"])
	assert.EqualValues(t, 2, req.body["priority"])
	assert.Equal(t, "3", req.body["project_id"])
}

func TestCreateTaskOmitsEmptyFields(t *testing.T) {
	c, reqs := newServer(t)

	_, err := c.CreateTask(context.Background(), tasks.NewTask{Content: "Call mom"})
	require.NoError(t, err)

	body := (*reqs)[0].body
	assert.EqualValues(t, 1, body["priority"])
	assert.NotContains(t, body, "due_string")
	assert.NotContains(t, body, "project_id")
	assert.NotContains(t, body, "labels")
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient("bad", 0).WithBaseURL(srv.URL).ListProjects(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "todoist API error (403)")
}
