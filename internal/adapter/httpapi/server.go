// Package httpapi serves the admin endpoints of retryd.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamretry/internal/declare"
	"streamretry/pkg/retry"
)

// Cache is the part of the resolution cache exposed over HTTP.
type Cache interface {
	Stats() (targets, entries int)
	Sweep(idle time.Duration) int
}

// Declarations answers which declaration applies to a call.
type Declarations interface {
	Declaration(target any, method retry.Method) (retry.PolicySpec, bool)
}

// Config holds the dependencies of the admin server.
type Config struct {
	Addr         string
	Cache        Cache
	Declarations Declarations
	Executors    *retry.Executors
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg Config
	log *slog.Logger
	srv *http.Server
}

// New builds the router. Call Run to listen.
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, log: log.With(slog.String("component", "httpapi"))}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/cache", s.cacheStats)
	r.POST("/cache/sweep", s.cacheSweep)
	r.GET("/executors", s.executors)
	r.GET("/declarations", s.declaration)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) cacheStats(c *gin.Context) {
	if s.cfg.Cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no resolution cache"})
		return
	}
	targets, entries := s.cfg.Cache.Stats()
	c.JSON(http.StatusOK, gin.H{"targets": targets, "entries": entries})
}

// cacheSweep drops entries idle for longer than ?idle= (a Go duration, default 0).
func (s *Server) cacheSweep(c *gin.Context) {
	if s.cfg.Cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no resolution cache"})
		return
	}
	var idle time.Duration
	if v := c.Query("idle"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "idle must be a non-negative duration"})
			return
		}
		idle = d
	}
	dropped := s.cfg.Cache.Sweep(idle)
	s.log.Info("cache swept on request", slog.Int("dropped", dropped), slog.Duration("idle", idle))
	c.JSON(http.StatusOK, gin.H{"dropped": dropped})
}

func (s *Server) executors(c *gin.Context) {
	names := []string{}
	if s.cfg.Executors != nil {
		names = s.cfg.Executors.Names()
	}
	c.JSON(http.StatusOK, gin.H{"executors": names})
}

// typeRef lets a query name the concrete type of a target.
type typeRef retry.TypeID

func (t typeRef) RetryType() retry.TypeID { return retry.TypeID(t) }

// declaration reports the declaration applying to ?type=&method=&params=a,b[&target=].
func (s *Server) declaration(c *gin.Context) {
	if s.cfg.Declarations == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no declarations"})
		return
	}
	owner, name := c.Query("type"), c.Query("method")
	if owner == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and method are required"})
		return
	}
	m := retry.Method{Owner: retry.TypeID(owner), Name: name}
	if p := c.Query("params"); p != "" {
		m.Params = strings.Split(p, ",")
	}
	var target any
	if t := c.Query("target"); t != "" {
		target = typeRef(t)
	}

	spec, ok := s.cfg.Declarations.Declaration(target, m)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"method": m.String(), "declared": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"method": m.String(), "declared": true, "policy": declare.FromSpec(spec)})
}
