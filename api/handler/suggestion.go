package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/api/transport"
	"github.com/fastygo/taskpilot/domain"
	"github.com/fastygo/taskpilot/pkg/httpcontext"
	"github.com/fastygo/taskpilot/repository"
	suggestionUC "github.com/fastygo/taskpilot/usecase/suggestion"
)

type SuggestionHandler struct {
	baseHandler
	uc *suggestionUC.UseCase
}

func NewSuggestionHandler(uc *suggestionUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List suggestions
// @Tags suggestions
// @Param dismissed query bool false "filter by dismissed flag"
// @Router /api/v1/suggestions [get]
func (h *SuggestionHandler) List(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	args := ctx.QueryArgs()
	filter := repository.SuggestionFilter{
		OwnerID:   userID,
		Type:      domain.SuggestionType(args.Peek("type")),
		Dismissed: parseBool(args.Peek("dismissed")),
		Limit:     parseInt(string(args.Peek("limit")), 20),
		Offset:    parseInt(string(args.Peek("offset")), 0),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	items, total, err := h.uc.List(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(items, transport.Page{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}))
}

// @Summary Suggestion counts
// @Tags suggestions
// @Router /api/v1/suggestions/counts [get]
func (h *SuggestionHandler) Counts(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	counts, err := h.uc.Counts(stdCtx, userID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, counts)
}

// @Summary Dismiss suggestion
// @Tags suggestions
// @Router /api/v1/suggestions/{id}/dismiss [post]
func (h *SuggestionHandler) Dismiss(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := h.pathID(ctx)
	if id == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	s, err := h.uc.Dismiss(stdCtx, id, userID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, s)
}

// @Summary Delete suggestion
// @Tags suggestions
// @Router /api/v1/suggestions/{id} [delete]
func (h *SuggestionHandler) Delete(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := h.pathID(ctx)
	if id == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Delete(stdCtx, id, userID); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}
