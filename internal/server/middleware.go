package server

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadows_http_requests_total",
		Help: "The total number of HTTP requests",
	}, []string{"route", "code"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shadows_http_request_duration_seconds",
		Help:    "The duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// route returns the matched route of c, or "unmatched".
func route(c *gin.Context) string {
	if fullPath := c.FullPath(); fullPath != "" {
		return fullPath
	}
	return "unmatched"
}

func observeRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	name := route(c)
	httpRequests.WithLabelValues(name, strconv.Itoa(c.Writer.Status())).Inc()
	httpRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.LogAttrs(c.Request.Context(), slog.LevelInfo, "request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("latency", time.Since(start)),
	)
}

// cors allows cross-origin GET requests from s's allowed origins and answers
// preflight requests.
func (s *Server) cors(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if origin == "" {
		c.Next()
		return
	}

	switch {
	case slices.Contains(s.allowedOrigins, "*"):
		c.Header("Access-Control-Allow-Origin", "*")
	case slices.Contains(s.allowedOrigins, origin):
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
	default:
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
		return
	}

	if c.Request.Method == http.MethodOptions {
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		if headers := c.GetHeader("Access-Control-Request-Headers"); headers != "" {
			c.Header("Access-Control-Allow-Headers", headers)
		}
		c.Header("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
