// Package server exposes the provisioning API over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/forgeplane/forgeplane/pkg/config"
	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/stack"
	"github.com/forgeplane/forgeplane/pkg/stores"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
	"github.com/forgeplane/forgeplane/pkg/templates"
)

// WorkflowService is the surface the HTTP layer needs from the workflow
// manager.
type WorkflowService interface {
	Submit(ctx context.Context, req *provision.ProjectRequest) (int64, error)
	Status(ctx context.Context, id int64) (*stores.WorkflowRecord, error)
	SubmitResource(ctx context.Context, req *provision.ResourceRequest) (string, error)
	ExecuteResourceTracked(ctx context.Context, req *provision.ResourceRequest) (string, stack.Result, error)
	JobStatus(ctx context.Context, token string) (*stores.Job, error)
}

// Server is the HTTP front of the provisioning service.
type Server struct {
	cfg      *config.Configs
	engine   *gin.Engine
	service  WorkflowService
	registry *templates.Registry
	metrics  *telemetry.Metrics
	log      *telemetry.Logger
	validate *validator.Validate
}

// New builds the router with CORS, request logging and all routes wired.
func New(cfg *config.Configs, service WorkflowService, registry *templates.Registry, metrics *telemetry.Metrics, logger *telemetry.Logger) *Server {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		engine:   gin.New(),
		service:  service,
		registry: registry,
		metrics:  metrics,
		log:      logger.NewComponentLogger("http"),
		validate: validator.New(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AppURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/create-project", s.createProject)
	s.engine.GET("/create-project/status/:id", s.projectStatus)
	s.engine.POST("/create-resource", s.createResource)
	s.engine.GET("/create-resource/status/:jobId", s.resourceStatus)
	s.engine.GET("/templates", s.listTemplates)
	s.engine.GET("/healthz", s.healthz)
	if s.metrics != nil && s.cfg.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.AppPort),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}
