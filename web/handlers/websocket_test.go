package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverlabs/scribe/web/handlers"
)

func TestWebSocketHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocketHub_Broadcast(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	defer hub.Stop()

	received := make(chan []byte, 1)
	hub.Register(&handlers.MockClient{SendChan: received})

	hub.Broadcast(map[string]interface{}{
		"type": "test",
		"data": "hello",
	})

	// Delivery is synchronous; the frame is buffered before Broadcast returns.
	require.Len(t, received, 1)
	msg := string(<-received)
	assert.Contains(t, msg, "test")
	assert.Contains(t, msg, "hello")
}

func TestWebSocketHub_BroadcastEvent(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	defer hub.Stop()

	received := make(chan []byte, 1)
	hub.Register(&handlers.MockClient{SendChan: received})

	hub.BroadcastEvent(handlers.EventRouteCycle, map[string]interface{}{
		"processed": 3,
	})

	require.Len(t, received, 1)
	// Events go out enveloped with their type and a timestamp.
	msg := string(<-received)
	assert.Contains(t, msg, handlers.EventRouteCycle)
	assert.Contains(t, msg, `"time"`)
	assert.Contains(t, msg, `"processed":3`)
}

func TestWebSocketHub_DropsLaggingSubscriber(t *testing.T) {
	hub := handlers.NewWebSocketHub()
	defer hub.Stop()

	full := make(chan []byte) // unbuffered: every delivery fails
	keeper := make(chan []byte, 4)
	hub.Register(&handlers.MockClient{SendChan: full})
	hub.Register(&handlers.MockClient{SendChan: keeper})

	hub.BroadcastEvent(handlers.EventArchiveCycle, nil)
	hub.BroadcastEvent(handlers.EventArchiveCycle, nil)

	// The healthy subscriber keeps receiving after the lagging one is dropped.
	assert.Len(t, keeper, 2)
	assert.Len(t, full, 0)
}
