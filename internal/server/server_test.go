package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/pubsubd/internal/config"
	"github.com/nfrund/pubsubd/internal/events"
	"github.com/nfrund/pubsubd/internal/topics"
)

// recordingSink collects lines delivered by the registry.
type recordingSink struct{ lines [][]byte }

func (s *recordingSink) Send(line []byte) error {
	s.lines = append(s.lines, line)
	return nil
}

func newTestServer(t *testing.T) (*Server, *events.WatermillBridge) {
	t.Helper()
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	cfg.ShutdownTimeout = 2 * time.Second

	bus := events.NewWatermillBridge()
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stats := events.NewStats()
	require.NoError(t, stats.Start(ctx, bus))

	registry := topics.NewRegistry()
	return New(cfg, registry, stats, bus), bus
}

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	e := echo.New()

	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{AddSource: true}))
	originalLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)
	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})

	req := httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"")
	assert.Contains(t, logOutput, "stack_trace=")
	assert.Contains(t, logOutput, "runtime/debug/stack.go")
	assert.Contains(t, logOutput, "internal/server/server_test.go")
}

func TestHTTPErrorHandler_HTTPErrorNotLogged(t *testing.T) {
	e := echo.New()

	var logBuffer bytes.Buffer
	originalLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logBuffer, nil)))
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, logBuffer.String(), "stack_trace")
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	alice := &recordingSink{}
	bob := &recordingSink{}
	s.Registry.Subscribe("news", "bob", bob)
	s.Registry.Subscribe("news", "alice", alice)
	s.Registry.Subscribe("sports", "alice", alice)

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("list topics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/topics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"name":"news","subscribers":2},{"name":"sports","subscribers":1}]`, rec.Body.String())
	})

	t.Run("get topic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/topics/news", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"name":"news","subscribers":["alice","bob"]}`, rec.Body.String())
	})

	t.Run("unknown topic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/topics/weather", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.EqualValues(t, 2, body["topics"])
		assert.Contains(t, body, "sessions_active")
	})
}

func TestServer_StartServesSessions(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.TCPAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", s.TCPAddr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("i:alice\ns:news\np:news:hello\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "m:news:alice:hello\n", line)

	assert.Eventually(t, func() bool {
		snap := s.Stats.Snapshot()
		return snap.SessionsActive == 1 && snap.Renames == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	keys, _ := s.Registry.Keys("news")
	assert.Empty(t, keys)
	assert.Eventually(t, func() bool {
		return s.Stats.Snapshot().SessionsActive == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketRoute(t *testing.T) {
	s, _ := newTestServer(t)
	httpSrv := httptest.NewServer(s.E)
	defer httpSrv.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("i:carol")))
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("s:chat")))
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("p:chat:hey")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "m:chat:carol:hey", string(data))
}
