// Package api is the HTTP facade: synchronous and asynchronous evaluation
// endpoints, job lifecycle endpoints, and service introspection, with the
// error taxonomy mapped onto HTTP statuses at this edge and nowhere else.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/auditflow/auditflow/pkg/batch"
	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/jobs"
	"github.com/auditflow/auditflow/pkg/providers/registry"
)

// Server wires the HTTP routes to the domain components.
type Server struct {
	cfg         *config.Config
	registry    *registry.Registry
	coordinator *batch.Coordinator
	manager     *jobs.Manager

	echo *echo.Echo
	srv  *http.Server
}

// NewServer builds the server and registers all routes.
func NewServer(cfg *config.Config, reg *registry.Registry, coordinator *batch.Coordinator, manager *jobs.Manager) *Server {
	s := &Server{
		cfg:         cfg,
		registry:    reg,
		coordinator: coordinator,
		manager:     manager,
		echo:        echo.New(),
	}

	s.echo.Use(correlationID())
	s.echo.Use(requestLogger())
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/config", s.configHandler)
	s.echo.POST("/evaluate", s.evaluateHandler)
	s.echo.POST("/evaluate/submit", s.submitHandler)
	s.echo.GET("/evaluate/status/:id", s.statusHandler)
	s.echo.GET("/evaluate/results/:id", s.resultsHandler)
	s.echo.POST("/evaluate/cancel/:id", s.cancelHandler)

	return s
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
