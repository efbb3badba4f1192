// Package server exposes the tree operations over HTTP. It is a thin
// transport: request parsing and status mapping only, all semantics live in
// pkg/tree.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbor/pkg/tree"
)

// Server wires the gin engine to a tree manager.
type Server struct {
	engine *gin.Engine
	logger *slog.Logger
}

// New builds the router with middleware and all routes registered.
func New(manager *tree.Manager, logger *slog.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(logger))
	engine.Use(metricsMiddleware())

	engine.GET("/health", HealthCheck)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		nodes := v1.Group("/nodes")
		{
			nodes.GET("/:id", GetNode(manager))
			nodes.POST("", InsertNode(manager))
			nodes.PUT("/:id", UpdateNode(manager))
			nodes.DELETE("/:id", DeleteNode(manager))
			nodes.PUT("/:id/move", MoveNode(manager))
			nodes.PUT("/:id/reorder", ReorderNode(manager))
		}
	}

	return &Server{engine: engine, logger: logger}
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on addr until ctx is canceled, then drains connections
// with a shutdown timeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("http server stopped")
		return nil
	}
}

// requestIDMiddleware tags every request with an id, echoed in the
// X-Request-ID response header. An incoming id is kept.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"requestID", c.GetString("requestID"),
		)
	}
}
