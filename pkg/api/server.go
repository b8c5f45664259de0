// Package api serves the enriched trips over a read-only HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/store"
)

// Server is the HTTP query layer over a trip store
type Server struct {
	store    store.TripStore
	cfg      config.APIConfig
	logger   *zap.Logger
	cache    *responseCache
	registry *prometheus.Registry
	engine   *gin.Engine
}

// NewServer builds the router. reg receives the HTTP series and is served
// on /metrics; a nil reg gets a private registry.
func NewServer(st store.TripStore, cfg *config.APIConfig, reg *prometheus.Registry, logger *zap.Logger) (*Server, error) {
	if st == nil {
		return nil, errors.New("trip store cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("api configuration cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		store:    st,
		cfg:      *cfg,
		logger:   logger.Named("api"),
		registry: reg,
	}
	s.cache = newResponseCache(cfg.CacheSize, cfg.CacheTTL, s.logger)
	s.engine = s.newRouter(newHTTPMetrics(reg))
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) newRouter(metrics *httpMetrics) *gin.Engine {
	if s.cfg.GinMode != "" {
		gin.SetMode(s.cfg.GinMode)
	}

	r := gin.New()
	r.Use(RequestID(), Logger(s.logger), gin.Recovery(), corsMiddleware(s.cfg.CORSOrigins), metrics.middleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/trips", s.listTrips)
	api.GET("/summary/metrics", s.summaryMetrics)
	api.GET("/summary/top-pickups", s.topPickups)
	api.GET("/insights/anomalies", s.anomalies)

	r.NoRoute(s.noRoute)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
		if len(origins) == 0 {
			cfg.AllowAllOrigins = true
		}
	}
	return cors.New(cfg)
}

// noRoute serves the frontend from StaticDir for non-API paths
func (s *Server) noRoute(c *gin.Context) {
	p := c.Request.URL.Path
	if s.cfg.StaticDir == "" || c.Request.Method != http.MethodGet || strings.HasPrefix(p, "/api/") {
		writeError(c, http.StatusNotFound, "not_found", "route not found")
		return
	}

	clean := path.Clean("/" + p)
	if clean == "/" {
		clean = "/index.html"
	}
	file := filepath.Join(s.cfg.StaticDir, filepath.FromSlash(clean))
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		writeError(c, http.StatusNotFound, "not_found", "file not found")
		return
	}
	c.File(file)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.logger.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
