package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/service"
	"github.com/utafrali/proflens/pkg/health"
	"github.com/utafrali/proflens/pkg/middleware"
)

// searchMaxAge is the Cache-Control max-age of the search endpoints.
const searchMaxAge = 30

// RouterConfig carries everything NewRouter wires together. A non-empty
// PprofCIDRs mounts /debug/pprof for those networks.
type RouterConfig struct {
	ServiceName    string
	Reviews        *service.ReviewService
	Professors     *service.ProfessorService
	Courses        *service.CourseService
	Health         *health.Handler
	TokenValidator middleware.TokenValidator
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all ProfLens routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	authenticated := func(r chi.Router) {
		r.Use(middleware.Auth(cfg.TokenValidator))
		r.Use(middleware.RequestLogger(logger))
	}
	adminOnly := func(r chi.Router) {
		authenticated(r)
		r.Use(middleware.RequireRole(domain.RoleAdmin))
	}

	reviewHandler := NewReviewHandler(cfg.Reviews, logger)
	professorHandler := NewProfessorHandler(cfg.Professors, logger)
	courseHandler := NewCourseHandler(cfg.Courses, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", reviewHandler.ListReviews)
			r.Get("/{id}", reviewHandler.GetReview)

			r.Group(func(r chi.Router) {
				authenticated(r)
				r.Post("/", reviewHandler.CreateReview)
				r.Put("/{id}", reviewHandler.UpdateReview)
				r.Delete("/{id}", reviewHandler.DeleteReview)
				r.Put("/{id}/helpful", reviewHandler.MarkHelpful)
				r.Put("/{id}/report", reviewHandler.ReportReview)
			})
		})

		r.Group(func(r chi.Router) {
			authenticated(r)
			r.Get("/users/me/reviews", reviewHandler.ListMyReviews)
		})

		r.Route("/professors", func(r chi.Router) {
			r.Get("/", professorHandler.ListProfessors)
			r.With(middleware.CacheControl(searchMaxAge)).Get("/search", professorHandler.SearchProfessors)
			r.Get("/{id}", professorHandler.GetProfessor)

			r.Group(func(r chi.Router) {
				adminOnly(r)
				r.Post("/", professorHandler.CreateProfessor)
				r.Put("/{id}", professorHandler.UpdateProfessor)
				r.Delete("/{id}", professorHandler.DeleteProfessor)
				r.Post("/{id}/recompute", reviewHandler.recomputeHandler(domain.KindProfessor))
			})
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", courseHandler.ListCourses)
			r.With(middleware.CacheControl(searchMaxAge)).Get("/search", courseHandler.SearchCourses)
			r.Get("/{id}", courseHandler.GetCourse)

			r.Group(func(r chi.Router) {
				adminOnly(r)
				r.Post("/", courseHandler.CreateCourse)
				r.Put("/{id}", courseHandler.UpdateCourse)
				r.Delete("/{id}", courseHandler.DeleteCourse)
				r.Post("/{id}/recompute", reviewHandler.recomputeHandler(domain.KindCourse))
			})
		})
	})

	return r
}
