package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// RegisterHealthRoutes adds GET and HEAD /health. Any failing check turns
// the response into a 503.
func RegisterHealthRoutes(router gin.IRoutes, name, version string, checks map[string]HealthCheck) {
	started := time.Now()

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		resp := HealthResponse{
			Status:  StatusHealthy,
			Service: name,
			Version: version,
			Uptime:  time.Since(started).Round(time.Second).String(),
		}
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for checkName, check := range checks {
			if err := check(ctx); err != nil {
				resp.Status = StatusUnhealthy
				resp.Checks[checkName] = err.Error()
				continue
			}
			resp.Checks[checkName] = StatusHealthy
		}

		code := http.StatusOK
		if resp.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	})

	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}
