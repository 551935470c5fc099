package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/proflens/internal/service"
	"github.com/utafrali/proflens/pkg/httputil"
)

// ProfessorHandler handles HTTP requests for professor endpoints.
type ProfessorHandler struct {
	service *service.ProfessorService
	logger  *slog.Logger
}

// NewProfessorHandler creates a new professor HTTP handler.
func NewProfessorHandler(svc *service.ProfessorService, logger *slog.Logger) *ProfessorHandler {
	return &ProfessorHandler{
		service: svc,
		logger:  logger,
	}
}

// ListProfessors handles GET /api/v1/professors
func (h *ProfessorHandler) ListProfessors(w http.ResponseWriter, r *http.Request) {
	filter, ok := entityFilterFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// SearchProfessors handles GET /api/v1/professors/search?q=
func (h *ProfessorHandler) SearchProfessors(w http.ResponseWriter, r *http.Request) {
	professors, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: professors})
}

// GetProfessor handles GET /api/v1/professors/{id}
func (h *ProfessorHandler) GetProfessor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ProfessorDetailResponse{
		Professor: detail.Professor,
		Reviews:   toReviewResponses(detail.Reviews, callerFrom(r)),
	}})
}

// CreateProfessor handles POST /api/v1/professors
func (h *ProfessorHandler) CreateProfessor(w http.ResponseWriter, r *http.Request) {
	var req ProfessorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	professor, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: professor})
}

// UpdateProfessor handles PUT /api/v1/professors/{id}
func (h *ProfessorHandler) UpdateProfessor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req ProfessorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	professor, err := h.service.Update(r.Context(), id, req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: professor})
}

// DeleteProfessor handles DELETE /api/v1/professors/{id}
func (h *ProfessorHandler) DeleteProfessor(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Message: "professor deleted"})
}
