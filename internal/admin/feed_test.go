package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/AtDexters-Lab/nexus-dht/internal/auth"
	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/node"
)

const testSecret = "test-secret"

func signAdminToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{auth.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestFeed(t *testing.T) (*Feed, *httptest.Server) {
	t.Helper()
	validator, err := auth.NewValidator(testSecret)
	require.NoError(t, err)

	f := New(&config.Config{}, validator)
	srv := httptest.NewServer(http.HandlerFunc(f.handleEvents))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestHandleEventsRejectsUnauthenticated(t *testing.T) {
	_, srv := newTestFeed(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubscriberReceivesEvents(t *testing.T) {
	f, srv := newTestFeed(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + signAdminToken(t)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		count := 0
		f.subscribers.Range(func(_, _ interface{}) bool { count++; return true })
		return count == 1
	}, time.Second, 10*time.Millisecond)

	f.Publish(node.Event{Kind: node.EventPeerAnnounced, From: "203.0.113.7:6881", Time: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev node.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	require.Equal(t, node.EventPeerAnnounced, ev.Kind)
	require.Equal(t, "203.0.113.7:6881", ev.From)
}
