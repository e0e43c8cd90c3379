// Package transport serves an MCP server over stdio, streamable HTTP or SSE.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"memory-mcp/backend/pkg/logger"
)

// Transport kinds
const (
	Stdio = "stdio"
	HTTP  = "http"
	SSE   = "sse"
)

// ShutdownTimeout bounds graceful shutdown of the network transports
const ShutdownTimeout = 5 * time.Second

// Options configures how the MCP server is exposed
type Options struct {
	Transport    string
	Host         string
	Port         int
	Path         string
	AllowOrigins []string
	AllowedHosts []string
	Production   bool

	// Stdin and Stdout default to the process streams
	Stdin  io.Reader
	Stdout io.Writer
}

// Addr returns the listen address of the network transports
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Server exposes one MCP server on the configured transport
type Server struct {
	opts    Options
	mcp     *server.MCPServer
	router  *gin.Engine
	closers []func(context.Context) error
	logger  *zap.Logger
}

// New prepares the transport. For http and sse the gin router is built here
// so it can be exercised without listening.
func New(mcpServer *server.MCPServer, opts Options) (*Server, error) {
	s := &Server{
		opts:   opts,
		mcp:    mcpServer,
		logger: logger.Get().With(zap.String("transport", opts.Transport)),
	}

	switch opts.Transport {
	case Stdio:
	case HTTP, SSE:
		s.router = s.newRouter()
	default:
		return nil, fmt.Errorf("unsupported transport: %q", opts.Transport)
	}
	return s, nil
}

// Handler returns the HTTP handler of the network transports, nil for stdio
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		return nil
	}
	return s.router
}

func (s *Server) newRouter() *gin.Engine {
	if s.opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(trustedHosts(s.opts.AllowedHosts))
	router.Use(cors(s.opts.AllowOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	switch s.opts.Transport {
	case HTTP:
		s.mountStreamableHTTP(router)
	case SSE:
		s.mountSSE(router)
	}
	return router
}

// endpointPaths returns path with and without its trailing slash so clients
// reach the endpoint without a redirect
func endpointPaths(path string) []string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	paths := []string{path}
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != "" && trimmed != path {
		paths = append(paths, trimmed)
	}
	return paths
}

func (s *Server) mountStreamableHTTP(router *gin.Engine) {
	paths := endpointPaths(s.opts.Path)
	streamable := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(paths[0]))
	s.closers = append(s.closers, streamable.Shutdown)

	handler := gin.WrapH(streamable)
	methods := []string{http.MethodGet, http.MethodPost, http.MethodDelete}
	for _, p := range paths {
		router.Match(methods, p, handler)
	}
}

func (s *Server) mountSSE(router *gin.Engine) {
	base := strings.TrimSuffix(endpointPaths(s.opts.Path)[0], "/")
	sse := server.NewSSEServer(s.mcp, server.WithStaticBasePath(base))
	s.closers = append(s.closers, sse.Shutdown)

	handler := gin.WrapH(sse)
	router.GET(sse.CompleteSsePath(), handler)
	router.POST(sse.CompleteMessagePath(), handler)
}

// Run serves until ctx is cancelled or the transport fails
func (s *Server) Run(ctx context.Context) error {
	if s.opts.Transport == Stdio {
		return s.serveStdio(ctx)
	}

	ln, err := net.Listen("tcp", s.opts.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) serveStdio(ctx context.Context) error {
	in, out := s.opts.Stdin, s.opts.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("Serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Serve runs the HTTP router on ln until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.router == nil {
		ln.Close()
		return fmt.Errorf("transport %q does not serve HTTP", s.opts.Transport)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("Server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.opts.Path),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}

	s.logger.Info("Server exited")
	return errors.Join(errs...)
}
