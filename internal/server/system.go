package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"podmill/internal/logging"
)

// healthCheckTimeout bounds each component probe so a hung dependency
// cannot stall the health endpoint.
const healthCheckTimeout = 2 * time.Second

// health reports per-component reachability. The endpoint is
// unauthenticated, so probe failures are reported without detail; the
// reason lands in the logs instead.
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()
	components := gin.H{}
	status := "ok"

	probe := func(name string, ping func(context.Context) error) {
		probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := ping(probeCtx); err != nil {
			components[name] = "unavailable"
			status = "degraded"
			s.logger.Debug("health probe failed",
				logging.String("probe", name),
				logging.Error(err))
			return
		}
		components[name] = "ok"
	}

	probe("documents", s.documents.Ping)
	if s.store != nil {
		probe("storage", s.store.Ping)
	}
	if s.limiter != nil {
		probe("rate_limiter", s.limiter.Ping)
	}
	if s.cache != nil {
		probe("cache", s.cache.Ping)
	}

	body := gin.H{
		"status":     status,
		"components": components,
	}
	if s.collector != nil {
		snap := s.collector.Snapshot()
		body["uptime_seconds"] = snap.UptimeSeconds
		body["error_rate"] = snap.Health.ErrorRate
	}
	c.JSON(http.StatusOK, body)
}

// metrics serves the collector snapshot.
func (s *Server) metrics(c *gin.Context) {
	if s.collector == nil {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "metrics collection not configured")
		return
	}
	c.JSON(http.StatusOK, s.collector.Snapshot())
}
