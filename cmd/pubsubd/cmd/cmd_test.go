package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/pubsubd/internal/session"
	"github.com/nfrund/pubsubd/internal/topics"
	"github.com/nfrund/pubsubd/internal/transport"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "pubsubd v"+version+"\n", out.String())
}

func TestPubCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := topics.NewRegistry()
	srv := transport.NewTCPServer("127.0.0.1:0", func(ctx context.Context, conn session.Conn) {
		_ = session.New(conn, registry).Run(ctx)
	})
	require.NoError(t, srv.Listen(ctx))
	go srv.Serve(ctx)
	defer srv.Shutdown(context.Background())

	sink := &lineSink{lines: make(chan string, 1)}
	registry.Subscribe("news", "watcher", sink)

	rootCmd.SetArgs([]string{"pub", "--addr", srv.Addr().String(), "--as", "cli", "news", "hello:there"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())

	select {
	case line := <-sink.lines:
		assert.Equal(t, "m:news:cli:hello:there", line)
	case <-time.After(2 * time.Second):
		t.Fatal("published message was not delivered")
	}
}

type lineSink struct{ lines chan string }

func (s *lineSink) Send(line []byte) error {
	s.lines <- string(line)
	return nil
}

func TestEventsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"events", "--format", "table"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "broker.session.opened")
	assert.Contains(t, out.String(), "broker.command.rejected")
}

func TestTopicsCommand(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/topics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"news","subscribers":3}]`))
	}))
	defer api.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"topics", "--http", strings.TrimPrefix(api.URL, "http://")})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "news")
	assert.Contains(t, out.String(), "3")
}
