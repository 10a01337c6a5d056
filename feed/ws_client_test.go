package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/kitchen-display/models"
)

type pushRecorder struct {
	mu     sync.Mutex
	events []models.FeedEvent
	states []bool
}

func (r *pushRecorder) onEvent(ev models.FeedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *pushRecorder) onState(connected bool, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, connected)
}

func (r *pushRecorder) snapshot() ([]models.FeedEvent, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.FeedEvent(nil), r.events...), append([]bool(nil), r.states...)
}

func newTestWSClient(url string) *WSClient {
	logger, _ := test.NewNullLogger()
	c := NewWSClient(url, "secret", logger)
	c.MinBackoff = 10 * time.Millisecond
	c.MaxBackoff = 50 * time.Millisecond
	return c
}

func TestWSClient_ReceivesEventsAndReconnects(t *testing.T) {
	var dials int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := atomic.AddInt32(&dials, 1)
		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"new_order","data":{"id":1,"status":"pending"}}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"bogus"}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"order_status_changed","data":{"id":1,"status":"preparing"}}`))
			// drop the link to force a reconnect
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"refresh_hint"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := newTestWSClient("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chef")
	rec := &pushRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Subscribe(ctx, rec.onEvent, rec.onState) }()

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 3
	}, 3*time.Second, 10*time.Millisecond)

	events, states := rec.snapshot()
	assert.Equal(t, models.FeedNewOrder, events[0].Type)
	assert.Equal(t, models.StatusChangedEvent(1, models.StatusPreparing), events[1])
	assert.Equal(t, models.FeedRefreshHint, events[2].Type)
	assert.Equal(t, []bool{true, false, true}, states)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&dials), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}

func TestWSClient_ReportsDialFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestWSClient("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chef")
	rec := &pushRecorder{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := client.Subscribe(ctx, rec.onEvent, rec.onState)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, states := rec.snapshot()
	require.NotEmpty(t, states)
	for _, s := range states {
		assert.False(t, s)
	}
}

func TestWSClient_DialURLCarriesToken(t *testing.T) {
	c := NewWSClient("ws://kitchen.local/ws/chef", "abc def", nil)
	u, err := c.dialURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://kitchen.local/ws/chef?token=abc+def", u)
}
