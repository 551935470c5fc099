package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/proflens/internal/service"
	"github.com/utafrali/proflens/pkg/httputil"
)

// CourseHandler handles HTTP requests for course endpoints.
type CourseHandler struct {
	service *service.CourseService
	logger  *slog.Logger
}

// NewCourseHandler creates a new course HTTP handler.
func NewCourseHandler(svc *service.CourseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{
		service: svc,
		logger:  logger,
	}
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
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

// SearchCourses handles GET /api/v1/courses/search?q=
func (h *CourseHandler) SearchCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: courses})
}

// GetCourse handles GET /api/v1/courses/{id}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CourseDetailResponse{
		Course:  detail.Course,
		Reviews: toReviewResponses(detail.Reviews, callerFrom(r)),
	}})
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	course, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: course})
}

// UpdateCourse handles PUT /api/v1/courses/{id}
func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CourseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	course, err := h.service.Update(r.Context(), id, req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: course})
}

// DeleteCourse handles DELETE /api/v1/courses/{id}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Message: "course deleted"})
}
