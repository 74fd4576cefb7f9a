package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/archon-research/fraud-scoring/internal/ports/inbound"
)

// componentResponse omits the failure detail; the checker logs it instead.
type componentResponse struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Status string `json:"status"`
}

type healthResponse struct {
	Status       string              `json:"status"`
	Ready        bool                `json:"ready"`
	Healthy      bool                `json:"healthy"`
	ShuttingDown bool                `json:"shuttingDown"`
	Components   []componentResponse `json:"components,omitempty"`
}

// readiness asks the checker once. Checkers that report per component
// contribute the breakdown as well.
func (s *Server) readiness(ctx context.Context) (bool, []componentResponse) {
	reporter, ok := s.checker.(inbound.HealthReporter)
	if !ok {
		return s.checker.IsReady(ctx), nil
	}

	statuses := reporter.Report(ctx)
	ready := true
	components := make([]componentResponse, len(statuses))
	for i, st := range statuses {
		ready = ready && st.Ready
		components[i] = componentResponse{Name: st.Name, Ready: st.Ready, Status: "ok"}
		if !st.Ready {
			components[i].Status = "unavailable"
		}
	}
	return ready, components
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// handleReady answers 200 only while every dependency is usable.
func (s *Server) handleReady(c *gin.Context) {
	if s.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}

	ready, components := s.readiness(c.Request.Context())
	status := "ready"
	if !ready {
		status = "not_ready"
	}
	body := gin.H{"status": status}
	if components != nil {
		body["components"] = components
	}
	c.JSON(statusCode(ready), body)
}

func (s *Server) handleLive(c *gin.Context) {
	if s.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}

	healthy := s.checker.IsHealthy(c.Request.Context())
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	c.JSON(statusCode(healthy), gin.H{"status": status})
}

// handleHealth combines liveness and readiness into one document.
func (s *Server) handleHealth(c *gin.Context) {
	if s.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "shutting_down", ShuttingDown: true})
		return
	}

	ctx := c.Request.Context()
	resp := healthResponse{Healthy: s.checker.IsHealthy(ctx)}
	resp.Ready, resp.Components = s.readiness(ctx)

	resp.Status = "ok"
	if !resp.Ready || !resp.Healthy {
		resp.Status = "degraded"
	}
	c.JSON(statusCode(resp.Ready && resp.Healthy), resp)
}
