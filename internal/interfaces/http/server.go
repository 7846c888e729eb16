package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
)

// Server owns the HTTP listener lifecycle.
type Server struct {
	srv    *http.Server
	logger logging.Logger
	cfg    config.ServerConfig
}

// NewServer builds the server around an assembled router.  cfg.Mode selects
// gin's global mode, so construct the server before any test engines.
func NewServer(cfg config.ServerConfig, router *gin.Engine, log logging.Logger) *Server {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	return &Server{
		cfg:    cfg,
		logger: log,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Start blocks serving requests until Stop or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", logging.Int("port", s.cfg.Port))
	if err := s.srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
