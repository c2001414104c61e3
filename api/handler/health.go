package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/api/transport"
	"github.com/fastygo/taskpilot/internal/infrastructure/monitor"
	"github.com/fastygo/taskpilot/pkg/httpcontext"
)

// StatusSource reports dependency health.
type StatusSource interface {
	GetStatus() monitor.Status
}

type HealthHandler struct {
	baseHandler
	monitor StatusSource
	agent   AgentTrigger
}

func NewHealthHandler(mon StatusSource, agent AgentTrigger, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
		agent:       agent,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"services": map[string]interface{}{
			"postgresql":   status.PostgreSQL,
			"redis":        status.Redis,
			"spawn_buffer": status.SpawnBuffer,
		},
		"pending_spawns": status.PendingSpawns,
	}
	if h.agent != nil {
		// counts and error text stay behind the operator-only agent endpoints
		if last := h.agent.Last(); last != nil {
			payload["last_agent_run"] = map[string]interface{}{
				"finished_at": last.FinishedAt,
				"failed":      last.Error != "",
			}
		}
	}

	if status.Healthy() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("DEGRADED", "dependencies unhealthy", payload))
}
