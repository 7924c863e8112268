package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpcore/internal/config"
	"github.com/fyrsmithlabs/mcpcore/internal/demobackend"
	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/auth"
	"github.com/fyrsmithlabs/mcpcore/pkg/metrics"
	"github.com/fyrsmithlabs/mcpcore/pkg/middleware"
	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
	"github.com/fyrsmithlabs/mcpcore/pkg/security"
	"github.com/fyrsmithlabs/mcpcore/pkg/server"
	"github.com/fyrsmithlabs/mcpcore/pkg/transport"
	"github.com/fyrsmithlabs/mcpcore/pkg/transport/httpenv"
	"github.com/fyrsmithlabs/mcpcore/pkg/transport/stdio"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch core over the configured transport",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	collector := buildMetrics(cfg)
	if promCollector, ok := collector.(*metrics.PromCollector); ok {
		logger.Info(ctx, "metrics enabled", zap.String("addr", cfg.Metrics.Addr))
		go serveMetrics(ctx, logger, promCollector, cfg.Metrics.Addr)
	}

	authManager, err := buildAuthManager(cfg, logger, collector)
	if err != nil {
		return fmt.Errorf("building auth manager: %w", err)
	}

	validator := security.NewValidator(security.Config{
		MaxMessageSize: cfg.Security.MaxMessageSize,
		MaxMethodLen:   cfg.Security.MaxMethodLen,
		MaxParamDepth:  cfg.Security.MaxParamDepth,
		MaxParamNodes:  cfg.Security.MaxParamNodes,
	}, collector)

	backend := server.NewSimpleBackendAdapter(demobackend.New())
	dispatcher := server.NewDispatcher(backend, server.DispatcherConfig{}, logger)

	interceptors := []middleware.Interceptor{
		middleware.NewSecurityInterceptor(validator),
		middleware.NewRateLimitInterceptor(50, 100),
	}
	if cfg.Auth.Enabled {
		interceptors = append(interceptors, middleware.NewAuthInterceptor(middleware.AuthInterceptorConfig{
			Manager: authManager,
			Extract: credentialExtractor(cfg, logger),
		}))
	}
	pipeline := middleware.NewPipeline(interceptors...)

	handler := transport.Handler(func(ctx context.Context, req *protocol.Request) *protocol.Response {
		return pipeline.Run(ctx, req, dispatcher.Handle)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info(ctx, "received shutdown signal")
		cancel()
	}()

	// A batch runs concurrently only when config and the backend both opt in.
	cfg.Transport.ConcurrentBatch = cfg.Transport.ConcurrentBatch && dispatcher.ConcurrentSafe()
	tr, err := buildTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("building transport: %w", err)
	}

	logger.Info(ctx, "starting mcpcore", zap.String("transport", cfg.Transport.Kind))
	if err := tr.Start(ctx, handler); err != nil && ctx.Err() == nil {
		return fmt.Errorf("transport exited: %w", err)
	}
	return nil
}

func buildTransport(cfg *config.Config, logger *logging.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "http":
		return httpenv.New(httpenv.Config{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			MaxBodyBytes: int64(cfg.Transport.MaxMessageSize),
			Concurrent:   cfg.Transport.ConcurrentBatch,
		}, logger), nil
	case "stdio":
		return stdio.New(os.Stdin, os.Stdout, nil, logger, stdio.Config{
			MaxMessageSize: cfg.Transport.MaxMessageSize,
			Concurrent:     cfg.Transport.ConcurrentBatch,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport kind: %q", cfg.Transport.Kind)
	}
}

// credentialExtractor builds a CredentialExtractor that reaches for HTTP
// headers when the request arrived over httpenv (detected via the context
// value that transport attaches), and falls back to the stdio fallback
// chain (env, init params, process args, dev default) otherwise.
func credentialExtractor(cfg *config.Config, logger *logging.Logger) middleware.CredentialExtractor {
	stdioExtractor := auth.NewStdioExtractor(auth.StdioExtractorConfig{
		EnvVar:           "MCP_API_KEY",
		AllowInitParams:  true,
		AllowProcessArgs: cfg.Auth.AllowProcessArgsCredential,
		DevDefaultKey:    cfg.Auth.DevDefaultKey.Value(),
	}, logger)

	return func(ctx context.Context, req *protocol.Request) *auth.Credential {
		if headers := httpenv.HeadersFromContext(ctx); headers != nil {
			cred := auth.ExtractHTTPCredential(headers)
			if cred != nil {
				cred.ClientIP = httpenv.ClientIP(headers)
			}
			return cred
		}
		return stdioExtractor.Extract(req.Params)
	}
}
