package httpenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

func echoHandler(ctx context.Context, req *protocol.Request) *protocol.Response {
	resp, err := protocol.NewResultResponse(req.ID, map[string]string{"echo": req.Method})
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, err.Error()))
	}
	return resp
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startTransport(t *testing.T, tr *Transport, handler func(context.Context, *protocol.Request) *protocol.Response) (chan error, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tr.Start(ctx, handler)
	}()
	return done, cancel
}

func waitHealthy(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never became healthy", addr)
}

func TestTransport_HealthCheck(t *testing.T) {
	addr := freeAddr(t)
	tr := New(Config{Addr: addr}, logging.Nop())
	done, cancel := startTransport(t, tr, echoHandler)
	defer cancel()
	waitHealthy(t, addr)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not shut down after context cancellation")
	}
}

func TestTransport_SingleRequestResponse(t *testing.T) {
	addr := freeAddr(t)
	tr := New(Config{Addr: addr}, logging.Nop())
	_, cancel := startTransport(t, tr, echoHandler)
	defer cancel()
	waitHealthy(t, addr)

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", addr), "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Nil(t, decoded.Error)
	assert.True(t, decoded.ID.Equal(protocol.NewIntID(1)))
}

func TestTransport_NotificationProducesNoContent(t *testing.T) {
	addr := freeAddr(t)
	tr := New(Config{Addr: addr}, logging.Nop())
	_, cancel := startTransport(t, tr, echoHandler)
	defer cancel()
	waitHealthy(t, addr)

	body := `{"jsonrpc":"2.0","method":"notify"}`
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", addr), "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTransport_MalformedJSONRecoversID(t *testing.T) {
	addr := freeAddr(t)
	tr := New(Config{Addr: addr}, logging.Nop())
	_, cancel := startTransport(t, tr, echoHandler)
	defer cancel()
	waitHealthy(t, addr)

	body := `{"jsonrpc":"2.0","id":42,"method":}`
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", addr), "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, protocol.ParseError.Code(), decoded.Error.Code())
}

func TestTransport_OversizeBodyRejected(t *testing.T) {
	addr := freeAddr(t)
	tr := New(Config{Addr: addr, MaxBodyBytes: 16}, logging.Nop())
	_, cancel := startTransport(t, tr, echoHandler)
	defer cancel()
	waitHealthy(t, addr)

	body := bytes.Repeat([]byte("a"), 64)
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", addr), "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded protocol.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, protocol.InvalidRequest.Code(), decoded.Error.Code())
	assert.Contains(t, decoded.Error.Message, "exceeds maximum size")
}

func TestTransport_GracefulShutdown(t *testing.T) {
	addr := freeAddr(t)
	tr := New(Config{Addr: addr}, logging.Nop())
	done, cancel := startTransport(t, tr, echoHandler)
	waitHealthy(t, addr)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete in time")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtractHeaders_AndClientIP(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-Forwarded-For", "10.0.0.5, 10.0.0.1")

	headers := extractHeaders(req)
	assert.Equal(t, "Bearer abc", headers["Authorization"])
	assert.Equal(t, "10.0.0.5", ClientIP(headers))
}
