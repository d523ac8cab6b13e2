// Package server exposes the classification service over HTTP: the REST API,
// the websocket streaming endpoint, and the status and health probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"

	"github.com/arkeyez/arkdoc/archive"
	"github.com/arkeyez/arkdoc/auth"
	"github.com/arkeyez/arkdoc/config"
	"github.com/arkeyez/arkdoc/erp"
	"github.com/arkeyez/arkdoc/model"
	"github.com/arkeyez/arkdoc/observability"
	"github.com/arkeyez/arkdoc/pipeline"
	"github.com/arkeyez/arkdoc/stream"
)

const shutdownTimeout = 10 * time.Second

// Deps collects the service components the server routes requests to.
// ERP may be nil when no ERPNext backend is configured.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Model    *model.Manager
	Store    *archive.Store
	ERP      *erp.Connector
	Logger   observability.Logger
}

// Server is the HTTP front of the classification service.
type Server struct {
	cfg       config.Config
	pipe      *pipeline.Pipeline
	model     *model.Manager
	store     *archive.Store
	erp       *erp.Connector
	registry  *stream.Registry
	auth      *auth.Authenticator
	adminHash string
	log       observability.Logger
	router    *gin.Engine
}

// New builds a Server and its route table.
func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Model == nil {
		return nil, errors.New("pipeline and model are required")
	}
	log := deps.Logger
	if log == nil {
		log = observability.NopLogger{}
	}

	authn, err := auth.New(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("build authenticator: %w", err)
	}
	adminHash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		pipe:      deps.Pipeline,
		model:     deps.Model,
		store:     deps.Store,
		erp:       deps.ERP,
		registry:  stream.NewRegistry(log),
		auth:      authn,
		adminHash: adminHash,
		log:       log,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/api/v1/health", s.handleHealth)
	r.GET("/api/v1/status", s.handleStatus)
	r.POST("/api/v1/login", s.handleLogin)
	r.GET("/ws/classify", s.handleWebsocket)

	api := r.Group("/api/v1", s.requireAuth())
	{
		api.POST("/classify-multi", s.handleClassifyMulti)
		api.POST("/erpnext/insert", s.handleERPInsert)
		api.POST("/erpnext/insert-bulk", s.handleERPInsertBulk)
		api.GET("/erpnext/history", s.handleHistory)
		api.GET("/erpnext/stats", s.handleStats)
	}
	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves the API until ctx is cancelled, then shuts down gracefully.
// The listener is capped at the configured connection limit.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxConnections)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.log.Info("server listening",
		observability.String("addr", ln.Addr().String()),
		observability.Int("max_connections", s.cfg.MaxConnections))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
