// Package server exposes the task orchestrator over HTTP.
//
// Handler failures are reported as 200 responses carrying
// {"success": false, "error": ...}; only authentication (401/403) and rate
// limiting (429) use HTTP status codes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/types"
)

const shutdownTimeout = 10 * time.Second

// TaskService is the orchestrator surface the handlers use.
type TaskService interface {
	Submit(ctx context.Context, task, sessionID string) (*orchestrator.SubmitResult, error)
	Poll(ctx context.Context, sessionID string, opts orchestrator.PollOptions) (*orchestrator.Status, error)
	Cancel(ctx context.Context, sessionID string) (string, error)
	Pause(ctx context.Context, sessionID string) (string, error)
	Resume(ctx context.Context, sessionID string) (string, error)
	ChatHistory(ctx context.Context) []*types.Message
	Result(ctx context.Context, sessionID, baseURL string) (*orchestrator.ResultBundle, error)
}

// Options configures the HTTP surface.
type Options struct {
	APIKey         string
	AllowedOrigins []string
	// StaticDir is served under /tmp.
	StaticDir          string
	RateLimitPerMinute int
	RateLimitBurst     int
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// Server is the HTTP API.
type Server struct {
	tasks  TaskService
	opts   Options
	logger *logging.Logger
	engine *gin.Engine
}

// New builds the router.
func New(tasks TaskService, opts Options) (*Server, error) {
	if opts.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if opts.StaticDir == "" {
		opts.StaticDir = "./tmp"
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		tasks:  tasks,
		opts:   opts,
		logger: opts.Logger,
		engine: gin.New(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine
	r.Use(recovery(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(corsMiddleware(s.opts.AllowedOrigins))

	r.GET("/healthcheck", s.healthcheck)
	r.GET("/health", s.healthcheck)
	r.Static(orchestrator.StaticPrefix, s.opts.StaticDir)
	if s.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/")
	api.Use(apiKeyAuth(s.opts.APIKey))
	api.Use(rateLimit(s.opts.RateLimitPerMinute, s.opts.RateLimitBurst))
	{
		api.POST("/execute-task", s.executeTask)
		api.GET("/task-status/:session_id", s.taskStatus)
		api.POST("/task-cancel/:session_id", s.cancelTask)
		api.POST("/task-pause/:session_id", s.pauseTask)
		api.POST("/task-resume/:session_id", s.resumeTask)
		api.GET("/chat-history", s.chatHistory)
		api.GET("/task-result/:session_id", s.taskResult)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Infof("Shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}
