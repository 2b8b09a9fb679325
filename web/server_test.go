package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lelanhus/ruckcore/engine"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitMessage rebroadcasts via send until the reader sees a frame, because
// client registration races the first broadcast.
func awaitMessage(t *testing.T, conn *websocket.Conn, send func()) []byte {
	t.Helper()
	got := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			got <- msg
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		send()
		select {
		case msg := <-got:
			return msg
		case <-deadline:
			t.Fatal("no websocket frame received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHubBroadcastDelivers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	conn := dialHub(t, hub)

	msg := awaitMessage(t, conn, func() { hub.Broadcast([]byte(`{"n":1}`)) })
	assert.JSONEq(t, `{"n":1}`, string(msg))
}

func TestServerPublishStreamsSnapshots(t *testing.T) {
	s := NewServer()
	go s.Hub.Run()
	conn := dialHub(t, s.Hub)

	snap := engine.Snapshot{
		SessionID: "test-session",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Movement:  "walking",
		SpeedMps:  1.4,
	}
	msg := awaitMessage(t, conn, func() { s.Publish(snap) })

	var got engine.Snapshot
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "test-session", got.SessionID)
	assert.Equal(t, "walking", got.Movement)
	assert.Equal(t, 1.4, got.SpeedMps)

	latest, ok := s.latest.Load().(engine.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "test-session", latest.SessionID)
}

func TestServerPumpDrainsUntilClose(t *testing.T) {
	s := NewServer()
	ch := make(chan engine.Snapshot, 2)
	ch <- engine.Snapshot{SessionID: "a"}
	ch <- engine.Snapshot{SessionID: "b"}
	close(ch)

	done := make(chan struct{})
	go func() {
		s.Pump(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not return after stream close")
	}
	latest, ok := s.latest.Load().(engine.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "b", latest.SessionID)
}
