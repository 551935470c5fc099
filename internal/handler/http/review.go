package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/service"
	"github.com/utafrali/proflens/pkg/httputil"
	"github.com/utafrali/proflens/pkg/pagination"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateReview handles POST /api/v1/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller := callerFrom(r)
	review, err := h.service.Create(r.Context(), req.toInput(caller.UserID))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data:    toReviewResponse(*review, caller),
		Message: "review created",
	})
}

// ListReviews handles GET /api/v1/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	filter, ok := reviewFilterFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	caller := callerFrom(r)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: pagination.Map(*result, func(rv domain.Review) ReviewResponse {
			return toReviewResponse(rv, caller)
		}),
	})
}

// ListMyReviews handles GET /api/v1/users/me/reviews
func (h *ReviewHandler) ListMyReviews(w http.ResponseWriter, r *http.Request) {
	p := pagination.FromRequest(r)
	caller := callerFrom(r)

	result, err := h.service.ListByUser(r.Context(), caller, p.Page, p.Limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: pagination.Map(*result, func(rv domain.Review) ReviewResponse {
			return toReviewResponse(rv, caller)
		}),
	})
}

// GetReview handles GET /api/v1/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	review, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toReviewResponse(*review, callerFrom(r))})
}

// UpdateReview handles PUT /api/v1/reviews/{id}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller := callerFrom(r)
	review, err := h.service.Update(r.Context(), id, caller, req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data:    toReviewResponse(*review, caller),
		Message: "review updated",
	})
}

// DeleteReview handles DELETE /api/v1/reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, callerFrom(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Message: "review deleted"})
}

// MarkHelpful handles PUT /api/v1/reviews/{id}/helpful
func (h *ReviewHandler) MarkHelpful(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	result, err := h.service.MarkHelpful(r.Context(), id, callerFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// ReportReview handles PUT /api/v1/reviews/{id}/report
func (h *ReviewHandler) ReportReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	result, err := h.service.Report(r.Context(), id, callerFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data:    result,
		Message: "review reported",
	})
}

// recomputeHandler returns a handler for POST /api/v1/{kind}s/{id}/recompute.
func (h *ReviewHandler) recomputeHandler(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		agg, err := h.service.RecomputeRatings(r.Context(), kind, id)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: agg})
	}
}
