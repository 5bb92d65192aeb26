package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"restock-service/internal/service"
	"restock-service/internal/util"
	"restock-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SweepRunner triggers a sweep on demand
type SweepRunner interface {
	Name() string
	RunNow(ctx context.Context) (service.SweepResult, error)
}

// Handler contains HTTP handlers
type Handler struct {
	checks map[string]Pinger
	sweeps map[string]SweepRunner
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(checks map[string]Pinger, sweeps ...SweepRunner) *Handler {
	h := &Handler{
		checks: checks,
		sweeps: make(map[string]SweepRunner, len(sweeps)),
		logger: util.ComponentLogger("api"),
	}
	for _, s := range sweeps {
		h.sweeps[s.Name()] = s
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sweeps/:name", h.runSweep)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// runSweep runs the named sweep and returns its summary
func (h *Handler) runSweep(c *gin.Context) {
	name := c.Param("name")
	sweep, ok := h.sweeps[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown sweep",
		})
		return
	}

	result, err := sweep.RunNow(c.Request.Context())
	if errors.Is(err, worker.ErrSweepLocked) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Sweep already running",
		})
		return
	}
	if err != nil {
		h.logger.Error("Manual sweep failed", zap.String("sweep", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Sweep failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
