// Package server exposes the webhook endpoint and the Jenkins REST resource over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scmhooks/jenkins-notifier/internal/bitbucket"
	"github.com/scmhooks/jenkins-notifier/internal/events"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
	"github.com/scmhooks/jenkins-notifier/internal/notifier"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// EventHandler processes decoded host events
type EventHandler interface {
	Handle(ctx context.Context, ev events.Event) (int, error)
}

// Notifier performs notifications for the REST resource
type Notifier interface {
	Notify(ctx context.Context, repo events.Repository, ref, sha1, targetBranch string) *notifier.NotificationResult
	NotifyWith(ctx context.Context, req notifier.Request) notifier.NotificationResult
}

// Host answers repository questions for the REST resource
type Host interface {
	Repository(ctx context.Context, projectKey, slug string) (*bitbucket.RepositoryInfo, error)
	DefaultBranch(ctx context.Context, repo events.Repository) (*bitbucket.Branch, error)
	HTTPCloneURL(ctx context.Context, repo events.Repository) (string, error)
	SSHCloneURL(ctx context.Context, repo events.Repository) (string, error)
	SSHEnabled() bool
}

// Config is the dependency bag passed to New
type Config struct {
	Addr     string
	Events   EventHandler
	Notifier Notifier
	Host     Host
	Settings settings.Service
	Security *SecurityValidator

	// MetricsPath and MetricsHandler mount the metrics endpoint when both are set
	MetricsPath    string
	MetricsHandler http.Handler

	Logger *logger.Logger
}

// Server holds the gin engine and its dependencies
type Server struct {
	engine   *gin.Engine
	addr     string
	events   EventHandler
	notifier Notifier
	host     Host
	settings settings.Service
	security *SecurityValidator
	log      *logger.Logger
}

// New creates a Server and registers its routes
func New(cfg Config) (*Server, error) {
	if cfg.Events == nil || cfg.Notifier == nil || cfg.Host == nil || cfg.Settings == nil {
		return nil, errors.New("events, notifier, host and settings are required")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &Server{
		engine:   gin.New(),
		addr:     cfg.Addr,
		events:   cfg.Events,
		notifier: cfg.Notifier,
		host:     cfg.Host,
		settings: cfg.Settings,
		security: cfg.Security,
		log:      cfg.Logger,
	}
	if srv.security == nil {
		srv.security = NewSecurityValidator("", 0)
	}
	if srv.log == nil {
		srv.log = logger.Get()
	}

	srv.engine.Use(gin.Recovery(), srv.requestLogger())
	srv.mapHandlers(cfg.MetricsPath, cfg.MetricsHandler)
	return srv, nil
}

func (srv *Server) mapHandlers(metricsPath string, metrics http.Handler) {
	srv.engine.GET("/healthz", srv.healthCheck)
	if metricsPath != "" && metrics != nil {
		srv.engine.GET(metricsPath, gin.WrapH(metrics))
	}

	srv.engine.POST("/webhook", srv.handleWebhook)

	repo := srv.engine.Group("/rest/jenkins/latest/projects/:project/repos/:slug", srv.withRepository)
	repo.POST("/test", srv.testConfiguration)
	repo.POST("/triggerJenkins", srv.triggerJenkins)
	repo.GET("/config", srv.cloneConfig)
	repo.GET("/conditions", srv.conditions)
}

// Handler returns the HTTP handler serving all routes
func (srv *Server) Handler() http.Handler {
	return srv.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (srv *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              srv.addr,
		Handler:           srv.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.log.Info("Listening on %s", srv.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (srv *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		srv.log.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (srv *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
