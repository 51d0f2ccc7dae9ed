package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/zoobzio/magma"
)

// Server serves flow artifacts from a Loader
type Server struct {
	engine *magma.Engine
	loader magma.Loader
	logger *slog.Logger
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// NewServer creates a server for the engine's flows, reading artifacts
// from loader
func NewServer(eng *magma.Engine, loader magma.Loader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: eng,
		loader: loader,
		logger: logger,
	}
}

// SetupRoutes configures and returns the HTTP router. Any path not claimed
// by a status endpoint is matched against the flow routes
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))

	router.GET("/_magma/health", s.handleHealth)
	router.GET("/_magma/flows", s.listFlows)
	router.GET("/_magma/flows/:flowID", s.getFlow)
	router.GET("/_magma/flows/:flowID/reload", s.handleReload)

	router.NoRoute(s.serveArtifact)

	return router
}

// ListenAndServe runs the server on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) serveArtifact(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		s.error(c, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flow, ok := s.engine.Lookup(c.Request.URL.Path)
	if !ok {
		s.error(c, http.StatusNotFound, "no flow for "+c.Request.URL.Path)
		return
	}

	artifact, err := s.loader.Load(c.Request.Context(), flow.ID())
	if errors.Is(err, magma.ErrNotFound) {
		s.error(c, http.StatusNotFound, "flow has not produced an artifact yet")
		return
	}
	if err != nil {
		s.logger.Error("failed to load artifact",
			"flow", flow.ID(), "route", flow.Route().String(), "error", err)
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := artifact.MIMEType
	if contentType == "" {
		contentType = flow.Config().MIMEType
	}
	if artifact.Encoding != "" {
		contentType += "; charset=" + artifact.Encoding
	}
	c.Header("Content-Type", contentType)

	http.ServeContent(c.Writer, c.Request, "", artifact.Modified, bytes.NewReader(artifact.Data))
}

func (s *Server) error(c *gin.Context, status int, msg string) {
	c.JSON(status, ErrorResponse{Error: msg, Status: status})
}
