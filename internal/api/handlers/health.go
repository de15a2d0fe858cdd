package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

// BreakerState is implemented by stores guarded by a circuit breaker.
type BreakerState interface {
	State() string
}

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter reports live socket and user counts.
type ConnectionCounter interface {
	Counts() (connections, users int)
}

type HealthHandler struct {
	breaker     BreakerState
	pingers     map[string]Pinger
	connections ConnectionCounter
}

// NewHealthHandler builds the /healthz handler. breaker may be nil when the
// store is not guarded; pingers are probed by name.
func NewHealthHandler(breaker BreakerState, connections ConnectionCounter, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{breaker: breaker, pingers: pingers, connections: connections}
}

// HealthResponse reports the state of the service and its dependencies.
type HealthResponse struct {
	Status       string            `json:"status"`
	Store        string            `json:"store"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Connections  int               `json:"connections"`
	Users        int               `json:"users"`
}

// Check godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Check(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	if h.breaker != nil {
		resp.Store = h.breaker.State()
		if resp.Store == gobreaker.StateOpen.String() {
			resp.Status = "degraded"
		}
	}

	if len(h.pingers) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		resp.Dependencies = make(map[string]string, len(h.pingers))
		for name, p := range h.pingers {
			if err := p.Ping(ctx); err != nil {
				resp.Dependencies[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	if h.connections != nil {
		resp.Connections, resp.Users = h.connections.Counts()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
