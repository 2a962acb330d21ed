package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sleepstars/deepbridge/internal/clients"
	"github.com/sleepstars/deepbridge/internal/config"
	"github.com/sleepstars/deepbridge/internal/forwarder"
	"github.com/sleepstars/deepbridge/internal/logger"
	"github.com/sleepstars/deepbridge/internal/metrics"
	"github.com/sleepstars/deepbridge/internal/modelbridge"
	"github.com/sleepstars/deepbridge/internal/models"
)

const shutdownTimeout = 30 * time.Second

// Server is the OpenAI-compatible front of the gateway
type Server struct {
	config    *config.GatewayConfig
	router    *gin.Engine
	forwarder *forwarder.Forwarder
	upstream  clients.UpstreamClient
	metrics   *metrics.Metrics
	models    models.ModelList
	logger    *logger.Logger
}

// Option customizes a Server at construction time
type Option func(*Server)

// WithUpstream replaces the HTTP upstream client, mainly for tests
func WithUpstream(upstream clients.UpstreamClient) Option {
	return func(s *Server) { s.upstream = upstream }
}

// WithMetrics records into m instead of a fresh collector set
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer wires the router, forwarder and upstream client from cfg
func NewServer(cfg *config.GatewayConfig, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: logger.GetLogger().WithComponent("gateway"),
		models: models.NewModelList(cfg.Models.Catalog, cfg.Models.OwnedBy, time.Now().Unix()),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.upstream == nil {
		s.upstream = clients.NewUpstreamClient(clients.UpstreamClientConfig{
			URL:                 cfg.Upstream.URL,
			UserAgent:           cfg.Upstream.UserAgent,
			Timeout:             cfg.Upstream.Timeout.Std(),
			MaxIdleConns:        cfg.Upstream.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Upstream.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Upstream.IdleConnTimeout.Std(),
		})
	}

	resolver, err := modelbridge.NewResolver(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("create model resolver: %w", err)
	}
	s.forwarder = forwarder.New(resolver, s.upstream, s.metrics)

	s.setupRoutes()

	s.logger.Info("Gateway ready: upstream=%s policy=%s models=%d", cfg.Upstream.URL, resolver.Policy(), len(s.models.Data))
	return s, nil
}

// Handler returns the gateway as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the collectors the server records into
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Run serves until ctx is cancelled or a listener fails, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              s.config.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: relayed streams last as long as the upstream keeps sending.
	}}
	if addr := s.config.Server.MetricsListen; addr != "" {
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           s.metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			s.logger.Info("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, shutting down gracefully...")
	case runErr = <-errCh:
		s.logger.Error("Server error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return runErr
}

// Close releases idle upstream connections
func (s *Server) Close() error {
	if c, ok := s.upstream.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
