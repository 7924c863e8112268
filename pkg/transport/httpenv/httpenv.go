// Package httpenv provides a thin HTTP envelope around the JSON-RPC
// dispatch pipeline. Per the framework's scope, HTTP adds only envelope
// wrapping; every non-trivial framing decision lives in the stdio
// transport and the shared batch processor.
package httpenv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
	"github.com/fyrsmithlabs/mcpcore/pkg/transport"
)

// headersCtxKey carries the extracted request headers (Authorization,
// X-API-Key, X-Forwarded-For, ...) through to the auth middleware, which
// has no other way to reach the originating HTTP request.
type headersCtxKey struct{}

// HeadersFromContext returns the inbound HTTP headers captured for the
// current request, or nil outside an HTTP request's context.
func HeadersFromContext(ctx context.Context) map[string]string {
	h, _ := ctx.Value(headersCtxKey{}).(map[string]string)
	return h
}

// ClientIP extracts the caller's address from the standard forwarding
// headers, preferring the first hop of X-Forwarded-For per §4.10.
func ClientIP(headers map[string]string) string {
	if xff := headers["X-Forwarded-For"]; xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if ip := headers["X-Real-Ip"]; ip != "" {
		return ip
	}
	if ip := headers["X-Client-Ip"]; ip != "" {
		return ip
	}
	if ip := headers["Cf-Connecting-Ip"]; ip != "" {
		return ip
	}
	return ""
}

// Config configures a Transport.
type Config struct {
	// Addr is the listen address, e.g. ":9090".
	Addr string
	// Path is the JSON-RPC endpoint path. Defaults to "/mcp".
	Path string
	// MaxBodyBytes caps the request body size. Zero selects 10 MiB.
	MaxBodyBytes int64
	// Concurrent, when true, lets a batch dispatch concurrently when the
	// backend opts in.
	Concurrent bool
	// ShutdownTimeout bounds graceful shutdown. Zero selects 10s.
	ShutdownTimeout time.Duration
}

const defaultMaxBodyBytes = 10 * 1024 * 1024
const defaultShutdownTimeout = 10 * time.Second

// Transport implements transport.Transport over HTTP: one POST per
// JSON-RPC envelope (single or batch), plus a GET /health liveness probe.
// It owns no framing logic of its own beyond routing and body-size
// capping; parsing, validation, and batch fan-out are the shared
// pipeline's responsibility.
type Transport struct {
	cfg    Config
	echo   *echo.Echo
	logger *logging.Logger
}

// New builds an httpenv Transport.
func New(cfg Config, logger *logging.Logger) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/mcp"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	return &Transport{cfg: cfg, echo: e, logger: logger.Named("httpenv")}
}

// Start registers routes against handler and blocks serving HTTP until
// ctx is cancelled or Stop is called.
func (t *Transport) Start(ctx context.Context, handler transport.Handler) error {
	t.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	t.echo.POST(t.cfg.Path, func(c echo.Context) error {
		return t.handleRPC(c, handler)
	})

	errCh := make(chan error, 1)
	go func() {
		if err := t.echo.Start(t.cfg.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("httpenv: listen failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return t.Stop()
	}
}

func (t *Transport) handleRPC(c echo.Context, handler transport.Handler) error {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, headersCtxKey{}, extractHeaders(c.Request()))

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, t.cfg.MaxBodyBytes+1))
	if err != nil {
		return c.JSON(http.StatusOK, protocol.NewErrorResponse(protocol.NullID(), protocol.NewError(protocol.InternalError, "failed to read request body")))
	}
	if int64(len(body)) > t.cfg.MaxBodyBytes {
		errResp := protocol.NewErrorResponse(protocol.NullID(), protocol.NewErrorWithData(
			protocol.InvalidRequest,
			fmt.Sprintf("Message exceeds maximum size of %d bytes", t.cfg.MaxBodyBytes),
			map[string]interface{}{"size": len(body), "max": t.cfg.MaxBodyBytes},
		))
		return c.JSON(http.StatusOK, errResp)
	}

	msg, perr := protocol.ParseMessage(body)
	if perr != nil {
		id := protocol.NullID()
		if perr.Data != nil {
			if data, ok := perr.Data.(map[string]interface{}); ok {
				if v, ok := data["recovered_id"]; ok {
					id = &protocol.ID{Value: v}
				}
			}
		}
		return c.JSON(http.StatusOK, protocol.NewErrorResponse(id, perr))
	}

	if verr := protocol.ValidateMessage(msg); verr != nil {
		return c.JSON(http.StatusOK, protocol.NewErrorResponse(protocol.NullID(), verr))
	}

	respMsg := transport.ProcessMessage(ctx, handler, msg, t.cfg.Concurrent)
	if respMsg.Empty {
		return c.NoContent(http.StatusNoContent)
	}
	switch respMsg.Kind {
	case protocol.Single:
		return c.JSON(http.StatusOK, respMsg.Single)
	default:
		return c.JSON(http.StatusOK, respMsg.Responses)
	}
}

func extractHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, 6)
	for _, name := range []string{"Authorization", "X-Api-Key", "X-Forwarded-For", "X-Real-Ip", "X-Client-Ip", "Cf-Connecting-Ip", "User-Agent"} {
		if v := r.Header.Get(name); v != "" {
			headers[http.CanonicalHeaderKey(name)] = v
		}
	}
	return headers
}

// Stop gracefully shuts the HTTP server down. Idempotent.
func (t *Transport) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), t.cfg.ShutdownTimeout)
	defer cancel()
	if err := t.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpenv: shutdown failed: %w", err)
	}
	return nil
}

// HealthCheck reports OK whenever the Echo listener is initialized; a true
// liveness probe is exposed over the wire at GET /health.
func (t *Transport) HealthCheck() transport.HealthStatus {
	return transport.HealthOK
}
