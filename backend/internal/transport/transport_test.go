package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"memory-mcp/backend/internal/graph"
	"memory-mcp/backend/internal/localgraph"
	"memory-mcp/backend/internal/tools"
)

const initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`

func newMCPServer(t *testing.T) *server.MCPServer {
	t.Helper()
	store, err := localgraph.Open(context.Background(), localgraph.MemoryPath, graph.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return tools.NewServer(tools.NewExecutor(store, ""), "test")
}

func httpOptions() Options {
	return Options{
		Transport:    HTTP,
		Host:         "127.0.0.1",
		Port:         8000,
		Path:         "/mcp/",
		AllowedHosts: []string{"localhost", "127.0.0.1"},
		AllowOrigins: []string{"https://app.example.com"},
	}
}

func newTestTransport(t *testing.T, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(newMCPServer(t), opts)
	require.NoError(t, err)
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_RejectsUnknownTransport(t *testing.T) {
	_, err := New(nil, Options{Transport: "carrier-pigeon"})
	assert.Error(t, err)

	s, err := New(nil, Options{Transport: Stdio})
	require.NoError(t, err)
	assert.Nil(t, s.Handler())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestTransport(t, httpOptions())

	req, _ := http.NewRequest("GET", "http://localhost:8000/health", nil)
	w := serve(s, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestTrustedHosts(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		want    int
	}{
		{"allowed with port", []string{"localhost", "127.0.0.1"}, "localhost:8000", http.StatusOK},
		{"allowed ip", []string{"localhost", "127.0.0.1"}, "127.0.0.1", http.StatusOK},
		{"case insensitive", []string{"localhost"}, "LOCALHOST:1", http.StatusOK},
		{"rejected", []string{"localhost", "127.0.0.1"}, "evil.example.com", http.StatusBadRequest},
		{"wildcard", []string{"*"}, "anything.example.com:9", http.StatusOK},
		{"subdomain wildcard", []string{"*.example.com"}, "api.example.com", http.StatusOK},
		{"subdomain wildcard excludes apex", []string{"*.example.com"}, "example.com", http.StatusBadRequest},
		{"ipv6", []string{"::1"}, "[::1]:8000", http.StatusOK},
		{"empty list rejects", nil, "localhost", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := httpOptions()
			opts.AllowedHosts = tt.allowed
			s := newTestTransport(t, opts)

			req, _ := http.NewRequest("GET", "/health", nil)
			req.Host = tt.host
			w := serve(s, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	s := newTestTransport(t, httpOptions())

	t.Run("preflight allowed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, "http://localhost/mcp/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "content-type, mcp-session-id")
		w := serve(s, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "content-type, mcp-session-id", w.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("preflight disallowed origin", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, "http://localhost/mcp/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := serve(s, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight disallowed method", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, "http://localhost/mcp/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "DELETE")
		w := serve(s, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("simple request", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "http://localhost/health", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(s, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Mcp-Session-Id", w.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("no origins configured", func(t *testing.T) {
		opts := httpOptions()
		opts.AllowOrigins = nil
		closed := newTestTransport(t, opts)

		req, _ := http.NewRequest(http.MethodGet, "http://localhost/health", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(closed, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestStreamableHTTP_Initialize(t *testing.T) {
	s := newTestTransport(t, httpOptions())

	for _, path := range []string{"/mcp/", "/mcp"} {
		t.Run(path, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "http://localhost:8000"+path, bytes.NewBufferString(initializeRequest))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")
			w := serve(s, req)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tools.ServerName)
		})
	}
}

func TestStreamableHTTP_RejectsForeignHost(t *testing.T) {
	s := newTestTransport(t, httpOptions())

	req, _ := http.NewRequest(http.MethodPost, "http://attacker.example.com/mcp/", bytes.NewBufferString(initializeRequest))
	req.Header.Set("Content-Type", "application/json")
	w := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSSE_RoutesUnderBasePath(t *testing.T) {
	opts := httpOptions()
	opts.Transport = SSE
	s := newTestTransport(t, opts)

	req, _ := http.NewRequest(http.MethodPost, "http://localhost/mcp/message", bytes.NewBufferString(initializeRequest))
	req.Header.Set("Content-Type", "application/json")
	w := serve(s, req)

	// Reaches the SSE handler, which requires a session id
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req, _ = http.NewRequest(http.MethodGet, "http://localhost/mcp/unknown", nil)
	w = serve(s, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndpointPaths(t *testing.T) {
	assert.Equal(t, []string{"/mcp/", "/mcp"}, endpointPaths("/mcp/"))
	assert.Equal(t, []string{"/mcp"}, endpointPaths("/mcp"))
	assert.Equal(t, []string{"/mcp/", "/mcp"}, endpointPaths("mcp/"))
	assert.Equal(t, []string{"/"}, endpointPaths(""))
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := newTestTransport(t, httpOptions())
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	req, _ := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/health", nil)
	req.Host = "localhost"
	req.Close = true
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeStdio(t *testing.T) {
	in, writer := io.Pipe()
	defer writer.Close()
	out := &syncBuffer{}

	s := newTestTransport(t, Options{Transport: Stdio, Stdin: in, Stdout: out})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	go func() {
		_, _ = io.WriteString(writer, initializeRequest+"\n")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), tools.ServerName)
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
