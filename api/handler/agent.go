package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/api/transport"
	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/internal/services"
	"github.com/fastygo/taskpilot/pkg/httpcontext"
	"github.com/fastygo/taskpilot/pkg/logger"
	"github.com/fastygo/taskpilot/usecase/agent"
)

// AgentTrigger starts agent runs on demand.
type AgentTrigger interface {
	RunNow(ctx context.Context) (agent.RunSummary, error)
	Last() *services.LastRun
}

// AgentHandler exposes the system-wide agent to operators only. A run touches every
// agent-enabled identity and consumes their rate gate quota.
type AgentHandler struct {
	baseHandler
	trigger   AgentTrigger
	operators map[string]struct{}
}

func NewAgentHandler(trigger AgentTrigger, operatorIDs []string, adapter *httpcontext.Adapter, logger *zap.Logger) *AgentHandler {
	operators := make(map[string]struct{}, len(operatorIDs))
	for _, id := range operatorIDs {
		operators[id] = struct{}{}
	}
	return &AgentHandler{
		baseHandler: newBaseHandler(adapter, logger),
		trigger:     trigger,
		operators:   operators,
	}
}

// operator writes 401/403 and returns false unless the caller may drive the agent.
func (h *AgentHandler) operator(ctx *fasthttp.RequestCtx) bool {
	userID := h.userID(ctx)
	if userID == "" {
		return false
	}
	if _, ok := h.operators[userID]; !ok {
		h.logger.Warn("agent access denied", zap.String("caller", userID))
		h.respondJSON(ctx, http.StatusForbidden, transport.NewError(string(domain.ErrCodeForbidden), domain.ErrForbidden.Message, nil))
		return false
	}
	return true
}

// @Summary Run the overdue agent now
// @Tags agent
// @Router /api/v1/agent/runs [post]
func (h *AgentHandler) Run(ctx *fasthttp.RequestCtx) {
	if !h.operator(ctx) {
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	// the run is bounded by the scheduler timeout, not the request timeout
	summary, err := h.trigger.RunNow(context.WithoutCancel(reqCtx))
	if err != nil {
		status, code := mapError(err)
		logger.WithRequestID(reqCtx, h.logger).Warn("manual agent run failed", zap.Error(err))
		h.respondJSON(ctx, status, transport.NewError(code, publicMessage(err), transport.NewRunSummary(summary)))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.NewRunSummary(summary))
}

// @Summary Last agent run
// @Tags agent
// @Router /api/v1/agent/runs/last [get]
func (h *AgentHandler) Last(ctx *fasthttp.RequestCtx) {
	if !h.operator(ctx) {
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.trigger.Last())
}

// publicMessage keeps only the outer domain message; wrapped causes name other identities.
func publicMessage(err error) string {
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		return dErr.Message
	}
	return "agent run failed"
}
