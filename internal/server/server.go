// Package server implements the HTTP API consumed by the map viewer.
package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/twpayne/go-shadows"
	"github.com/twpayne/go-shadows/internal/config"
)

// A Backend answers tile and shadow requests.
type Backend interface {
	TileInformation(coord shadows.GeodeticCoord) (shadows.TileInformation, error)
	ShadowsDataURI(ctx context.Context, tile shadows.TileAddress) (string, error)
}

// A Server serves the HTTP API.
type Server struct {
	backend        Backend
	logger         *slog.Logger
	loads          *semaphore.Weighted
	loadWait       time.Duration
	allowedOrigins []string
	mapImages      fs.FS
	engine         *gin.Engine
}

// An Option sets an option on a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxConcurrentLoads bounds the number of heightmaps loaded at once.
func WithMaxConcurrentLoads(n int) Option {
	return func(s *Server) {
		s.loads = semaphore.NewWeighted(int64(n))
	}
}

// WithLoadWait sets how long a shadow request waits for a load slot.
func WithLoadWait(loadWait time.Duration) Option {
	return func(s *Server) {
		s.loadWait = loadWait
	}
}

func WithAllowedOrigins(allowedOrigins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = allowedOrigins
	}
}

// WithMapImages serves the map images in fsys under /api/tiles.
func WithMapImages(fsys fs.FS) Option {
	return func(s *Server) {
		s.mapImages = fsys
	}
}

// New returns a new Server for backend.
func New(backend Backend, options ...Option) *Server {
	s := &Server{
		backend:        backend,
		logger:         slog.Default(),
		loads:          semaphore.NewWeighted(8),
		loadWait:       2 * time.Second,
		allowedOrigins: []string{"*"},
	}
	for _, option := range options {
		option(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests, observeRequests, s.cors)
	api := engine.Group("/api")
	api.GET("/tile_coordinates/:longitude/:latitude", s.getTileCoordinates)
	api.GET("/shadows/:longitude/:latitude", s.getShadows)
	if s.mapImages != nil {
		api.StaticFS("/tiles", http.FS(s.mapImages))
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.engine = engine

	return s
}

// Handler returns s's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on cfg.Address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	httpServer := &http.Server{
		Addr:         cfg.Address,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("address", cfg.Address))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getTileCoordinates(c *gin.Context) {
	lon, errLon := strconv.ParseFloat(c.Param("longitude"), 64)
	lat, errLat := strconv.ParseFloat(c.Param("latitude"), 64)
	if err := errors.Join(errLon, errLat); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	tileInformation, err := s.backend.TileInformation(shadows.GeodeticCoord{Lon: lon, Lat: lat})
	if err != nil {
		s.abort(c, statusCode(err), err)
		return
	}
	c.JSON(http.StatusOK, tileInformation)
}

func (s *Server) getShadows(c *gin.Context) {
	lon, errLon := strconv.ParseInt(c.Param("longitude"), 10, 64)
	lat, errLat := strconv.ParseInt(c.Param("latitude"), 10, 64)
	if err := errors.Join(errLon, errLat); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	acquireCtx, cancel := context.WithTimeout(ctx, s.loadWait)
	defer cancel()
	if err := s.loads.Acquire(acquireCtx, 1); err != nil {
		s.abort(c, http.StatusServiceUnavailable, err)
		return
	}
	defer s.loads.Release(1)

	dataURI, err := s.backend.ShadowsDataURI(ctx, shadows.TileAddress{Lon: lon, Lat: lat})
	if err != nil {
		s.abort(c, statusCode(err), err)
		return
	}
	c.String(http.StatusOK, dataURI)
}

// abort ends c with status. Only client errors are described in the response
// body.
func (s *Server) abort(c *gin.Context, status int, err error) {
	attrs := []slog.Attr{
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.Any("err", err),
	}
	var shadowsErr *shadows.Error
	if errors.As(err, &shadowsErr) {
		attrs = append(attrs, slog.String("kind", shadowsErr.Kind.String()))
		if shadowsErr.Tile != nil {
			attrs = append(attrs, slog.String("tile", shadows.TileFilename(*shadowsErr.Tile)))
		}
	}
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.LogAttrs(c.Request.Context(), level, "request failed", attrs...)

	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
	})
}

func statusCode(err error) int {
	switch shadows.KindOf(err) {
	case shadows.InvalidInputDomain, shadows.ProjectionFailure:
		return http.StatusBadRequest
	case shadows.ArtifactNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
