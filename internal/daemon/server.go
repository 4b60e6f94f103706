package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/devcrew/devcrew/internal/agent"
	"github.com/devcrew/devcrew/internal/config"
	"github.com/devcrew/devcrew/internal/llm/configbuilder"
	"github.com/devcrew/devcrew/internal/observability"
	"github.com/devcrew/devcrew/internal/pipeline"
	pipelinerpc "github.com/devcrew/devcrew/internal/rpc/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts pipeline runs over NDJSON and Connect plus health and metrics endpoints.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  pipelinerpc.Runner
	metrics *observability.Metrics
}

// NewServer constructs a daemon instance. All runs share one gated engine.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics()

	engine, registry, err := configbuilder.BuildEngine(cfg, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	def, err := pipeline.LoadDefinitionFile(cfg.Pipeline.Definition)
	if err != nil {
		return nil, fmt.Errorf("load pipeline definition: %w", err)
	}
	if def, err = def.Normalized(); err != nil {
		return nil, fmt.Errorf("load pipeline definition: %w", err)
	}

	strategy := agent.NewStrategyEngine(registry, cfg.Strategy)
	runner := &pipelinerpc.PipelineRunner{
		Definition: def,
		Engine:     engine,
		Params: func(stage string) agent.Params {
			return strategy.ParamsFor(stage, cfg.Engine)
		},
		Metrics: metrics,
		Logger:  logger,
	}

	return NewServerWithRunner(cfg, logger, runner, metrics), nil
}

// NewServerWithRunner assembles a server around an existing runner.
func NewServerWithRunner(cfg *config.Config, logger *zap.Logger, runner pipelinerpc.Runner, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics}
}

// Handler returns the routed HTTP handler, wrapped for h2c unless the
// transport is NDJSON only.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/pipeline/run", pipelinerpc.NewHandler(s.runner, s.metrics))

	if s.ndjsonOnly() {
		return mux
	}
	path, handler := pipelinerpc.NewConnectHandler(s.runner, s.metrics)
	mux.Handle(path, handler)
	return h2c.NewHandler(mux, &http2.Server{})
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting devcrew daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.cfg.Server.Transport))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down devcrew daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) ndjsonOnly() bool {
	return strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) == "ndjson"
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
