package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/pubsubd/internal/topics"
)

func startWebSocketServer(t *testing.T, registry *topics.Registry) (*WebSocketServer, string) {
	t.Helper()
	ws := NewWebSocketServer(sessionHandler(registry))

	e := echo.New()
	e.GET("/ws", ws.Handler(context.Background()))
	httpSrv := httptest.NewServer(e)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ws.Shutdown(ctx)
		httpSrv.Close()
	})

	return ws, "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
}

func dialWS(t *testing.T, url string) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_PublishSubscribe(t *testing.T) {
	registry := topics.NewRegistry()
	_, url := startWebSocketServer(t, registry)

	sub := dialWS(t, url)
	pub := dialWS(t, url)

	require.NoError(t, sub.WriteMessage(gorillaws.TextMessage, []byte("i:alice")))
	require.NoError(t, sub.WriteMessage(gorillaws.TextMessage, []byte("s:news")))
	require.Eventually(t, func() bool {
		keys, _ := registry.Keys("news")
		return len(keys) == 1 && keys[0] == "alice"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pub.WriteMessage(gorillaws.TextMessage, []byte("p:news:hi:there")))

	require.NoError(t, sub.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := sub.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gorillaws.TextMessage, msgType)
	assert.Equal(t, "m:news:", string(data[:7]))
	assert.True(t, strings.HasSuffix(string(data), ":hi:there"))
}

func TestWebSocket_CloseRemovesSubscriptions(t *testing.T) {
	registry := topics.NewRegistry()
	_, url := startWebSocketServer(t, registry)

	conn := dialWS(t, url)
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("s:A")))
	require.Eventually(t, func() bool {
		keys, _ := registry.Keys("A")
		return len(keys) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "bye")
	require.NoError(t, conn.WriteControl(gorillaws.CloseMessage, msg, time.Now().Add(time.Second)))

	assert.Eventually(t, func() bool {
		keys, _ := registry.Keys("A")
		return len(keys) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_Shutdown(t *testing.T) {
	registry := topics.NewRegistry()
	ws, url := startWebSocketServer(t, registry)

	conn := dialWS(t, url)
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("s:A")))
	require.Eventually(t, func() bool {
		keys, _ := registry.Keys("A")
		return len(keys) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Keep reading so the close handshake can complete.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Shutdown(ctx))

	keys, _ := registry.Keys("A")
	assert.Empty(t, keys)
}

func TestWebSocket_MultiLineFrameIsRejected(t *testing.T) {
	registry := topics.NewRegistry()
	srv := startTCPServer(t, registry)
	_, url := startWebSocketServer(t, registry)

	bob := dialTCP(t, srv.Addr().String())
	bob.send(t, "i:bob", "s:news")
	require.Eventually(t, func() bool {
		keys, _ := registry.Keys("news")
		return len(keys) == 1 && keys[0] == "bob"
	}, 2*time.Second, 10*time.Millisecond)

	mallory := dialWS(t, url)
	for _, frame := range []string{
		"i:mallory",
		"p:news:hello\nm:news:admin:forged",
		"p:news:after",
	} {
		require.NoError(t, mallory.WriteMessage(gorillaws.TextMessage, []byte(frame)))
	}

	// The multi-line frame delivers nothing; the session keeps going.
	bob.expect(t, "m:news:mallory:after")
}
