package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/pkg/httputil"
	"github.com/utafrali/proflens/pkg/middleware"
	"github.com/utafrali/proflens/pkg/pagination"
	"github.com/utafrali/proflens/pkg/validator"
)

// maxBodyBytes limits request bodies to 1MB.
const maxBodyBytes = 1 << 20

// callerFrom returns the identity stored by the auth middleware. Public
// routes yield the zero Caller.
func callerFrom(r *http.Request) domain.Caller {
	return domain.Caller{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}

// decodeBody decodes and validates the JSON body into dst, writing a 400 and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, r, err)
		return false
	}
	return true
}

func writeInvalidQuery(w http.ResponseWriter, field, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  map[string]string{field: message},
		},
	})
}

// optionalQuery returns a pointer to the trimmed query value, or nil when absent.
func optionalQuery(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil
	}
	return &v
}

// reviewFilterFromRequest reads type, professorId, courseId, sortBy, page
// and limit.
func reviewFilterFromRequest(w http.ResponseWriter, r *http.Request) (repository.ReviewFilter, bool) {
	p := pagination.FromRequest(r)
	filter := repository.ReviewFilter{
		ProfessorID: optionalQuery(r, "professorId"),
		CourseID:    optionalQuery(r, "courseId"),
		SortBy:      r.URL.Query().Get("sortBy"),
		Page:        p.Page,
		Limit:       p.Limit,
	}
	for key, id := range map[string]*string{"professorId": filter.ProfessorID, "courseId": filter.CourseID} {
		if id == nil {
			continue
		}
		if _, err := uuid.Parse(*id); err != nil {
			writeInvalidQuery(w, key, "must be a valid UUID")
			return filter, false
		}
	}
	if t := optionalQuery(r, "type"); t != nil {
		kind, ok := domain.ParseKind(*t)
		if !ok {
			writeInvalidQuery(w, "type", "must be one of: professor course")
			return filter, false
		}
		filter.Type = &kind
	}
	return filter, true
}

// entityFilterFromRequest reads department, search, minRating, sortBy, page
// and limit.
func entityFilterFromRequest(w http.ResponseWriter, r *http.Request) (repository.EntityFilter, bool) {
	p := pagination.FromRequest(r)
	filter := repository.EntityFilter{
		Department: optionalQuery(r, "department"),
		Search:     optionalQuery(r, "search"),
		SortBy:     r.URL.Query().Get("sortBy"),
		Page:       p.Page,
		Limit:      p.Limit,
	}
	if v := optionalQuery(r, "minRating"); v != nil {
		minRating, err := strconv.ParseFloat(*v, 64)
		if err != nil || minRating < 0 || minRating > domain.MaxRating {
			writeInvalidQuery(w, "minRating", "must be a number between 0 and 5")
			return filter, false
		}
		filter.MinRating = &minRating
	}
	return filter, true
}
