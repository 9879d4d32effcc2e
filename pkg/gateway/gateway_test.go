package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makar0n1/art-automation/pkg/types"
)

func testAuth(token string) (string, error) {
	if token == "valid-token" {
		return "u1", nil
	}
	return "", fmt.Errorf("invalid token")
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	g := New(testAuth)
	mux := http.NewServeMux()
	mux.HandleFunc("/socket", g.ServeHTTP)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return g, srv
}

func TestRejectsInvalidToken(t *testing.T) {
	_, srv := newTestGateway(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubscribeAndRelay(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "valid-token")

	require.Eventually(t, func() bool { return g.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":        "generation:subscribe",
		"generationId": "gen-1",
	}))
	require.Eventually(t, func() bool {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return len(g.rooms[types.GenerationRoom("gen-1")]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.Relay(types.Event{
		Room:  types.GenerationRoom("gen-1"),
		Event: "generation:log",
		Data:  map[string]any{"generationId": "gen-1", "log": "hello"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &frame))
	assert.Equal(t, "generation:log", frame.Event)
	assert.Equal(t, "gen-1", frame.Data["generationId"])
}

func TestRelaySkipsOtherRooms(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "valid-token")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":        "generation:subscribe",
		"generationId": "gen-1",
	}))
	require.Eventually(t, func() bool {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return len(g.rooms[types.GenerationRoom("gen-1")]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.Relay(types.Event{Room: types.GenerationRoom("gen-other"), Event: "generation:log"})
	g.Relay(types.Event{Room: types.GenerationRoom("gen-1"), Event: "generation:status"})

	// Only the subscribed room's event arrives.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(payload, &frame))
	assert.Equal(t, "generation:status", frame.Event)
}

func TestUnsubscribeLeavesRoom(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "valid-token")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":        "generation:subscribe",
		"generationId": "gen-1",
	}))
	require.Eventually(t, func() bool {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return len(g.rooms[types.GenerationRoom("gen-1")]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":        "generation:unsubscribe",
		"generationId": "gen-1",
	}))
	require.Eventually(t, func() bool {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return len(g.rooms) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectCleansUp(t *testing.T) {
	g, srv := newTestGateway(t)
	conn := dial(t, srv, "valid-token")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event": "generation:subscribe",
		"room":  "generation:gen-1",
	}))
	require.Eventually(t, func() bool { return g.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		g.mu.RLock()
		defer g.mu.RUnlock()
		return len(g.sessions) == 0 && len(g.rooms) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
