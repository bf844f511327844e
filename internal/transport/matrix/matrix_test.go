package matrix

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/toolbot/internal/transport"
)

const firstSync = `{
  "next_batch": "s1",
  "rooms": {
    "join": {
      "!room:example.org": {
        "timeline": {"events": [
          {"type": "m.room.message", "event_id": "$old", "sender": "@alice:example.org",
           "origin_server_ts": 1, "content": {"msgtype": "m.text", "body": "old question"}},
          {"type": "m.reaction", "event_id": "$oldr", "sender": "@alice:example.org",
           "origin_server_ts": 2, "content": {"m.relates_to": {"rel_type": "m.annotation", "event_id": "$proposal", "key": "👍"}}}
        ]}
      }
    },
    "invite": {
      "!new:example.org": {
        "invite_state": {"events": [
          {"type": "m.room.member", "state_key": "@toolbot:example.org", "sender": "@alice:example.org",
           "content": {"membership": "invite"}}
        ]}
      }
    }
  }
}`

const secondSync = `{
  "next_batch": "s2",
  "rooms": {
    "join": {
      "!room:example.org": {
        "timeline": {"events": [
          {"type": "m.room.message", "event_id": "$live", "sender": "@alice:example.org",
           "origin_server_ts": 3, "content": {"msgtype": "m.text", "body": "new question"}}
        ]}
      }
    }
  }
}`

func fakeHomeserver(t *testing.T) *httptest.Server {
	t.Helper()
	var syncs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/filter"):
			_, _ = w.Write([]byte(`{"filter_id": "1"}`))
		case strings.HasSuffix(r.URL.Path, "/sync"):
			switch syncs.Add(1) {
			case 1:
				_, _ = w.Write([]byte(firstSync))
			case 2:
				_, _ = w.Write([]byte(secondSync))
			default:
				<-r.Context().Done()
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitialSyncIsAnnouncedAfterDispatch(t *testing.T) {
	srv := fakeHomeserver(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := New(ctx, Config{Homeserver: srv.URL, UserID: string(bot), AccessToken: "token"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []transport.Event
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case evt := <-c.Events():
			got = append(got, evt)
		case <-timeout:
			t.Fatalf("timed out, received %v", got)
		}
	}

	assert.Equal(t, transport.KindInvite, got[0].Kind)
	assert.Equal(t, "!new:example.org", got[0].RoomID)
	assert.Equal(t, transport.KindSyncCompleted, got[1].Kind)
	assert.Equal(t, transport.KindText, got[2].Kind)
	assert.Equal(t, "$live", got[2].EventID)

	cancel()
	require.NoError(t, <-done)
	for evt := range c.Events() {
		t.Errorf("unexpected event after live message: %+v", evt)
	}
}
