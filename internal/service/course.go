package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
	"github.com/utafrali/proflens/pkg/pagination"
)

// CourseInput holds the display fields of a course. On update nil fields
// are left unchanged.
type CourseInput struct {
	Code           *string
	Name           *string
	Department     *string
	DepartmentName *string
	Credits        *int
	Description    *string
	ProfessorIDs   []string
	Tags           []string
}

// CourseService implements the course catalogue.
type CourseService struct {
	store   repository.Store
	cache   EntityCache
	effects sideEffects
	logger  *slog.Logger
}

// NewCourseService creates a new course service. cache may be nil.
func NewCourseService(store repository.Store, cache EntityCache, events EventPublisher, logger *slog.Logger) *CourseService {
	effects := newSideEffects(cache, events, logger)
	return &CourseService{
		store:   store,
		cache:   effects.cache,
		effects: effects,
		logger:  logger,
	}
}

// Get returns a course with its most recent reviews.
func (s *CourseService) Get(ctx context.Context, id string) (*domain.CourseDetail, error) {
	var cached domain.CourseDetail
	hit, err := s.cache.Get(ctx, domain.KindCourse, id, &cached)
	if err != nil {
		s.logger.WarnContext(ctx, "course cache read failed",
			slog.String("course_id", id),
			slog.String("error", err.Error()),
		)
	}
	if hit {
		return &cached, nil
	}

	course, err := s.store.Courses().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	reviews, err := s.store.Reviews().ListRecentByTarget(ctx, domain.KindCourse, id, domain.RecentReviewsLimit)
	if err != nil {
		return nil, fmt.Errorf("list course reviews: %w", err)
	}

	detail := &domain.CourseDetail{Course: *course, Reviews: reviews}
	if detail.Reviews == nil {
		detail.Reviews = []domain.Review{}
	}
	if err := s.cache.Set(ctx, domain.KindCourse, id, detail); err != nil {
		s.logger.WarnContext(ctx, "course cache write failed",
			slog.String("course_id", id),
			slog.String("error", err.Error()),
		)
	}
	return detail, nil
}

// List returns a page of courses matching filter.
func (s *CourseService) List(ctx context.Context, filter repository.EntityFilter) (*pagination.Result[domain.Course], error) {
	if !domain.IsValidEntitySort(filter.SortBy, domain.CourseSorts()) {
		return nil, apperrors.Validation(map[string]string{
			"sortBy": "must be one of: " + strings.Join(domain.CourseSorts(), " "),
		})
	}

	params := pagination.New(filter.Page, filter.Limit)
	filter.Page, filter.Limit = params.Page, params.Limit

	courses, total, err := s.store.Courses().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	result := pagination.NewResult(courses, total, params)
	return &result, nil
}

// Search returns up to SearchLimit courses matching query.
func (s *CourseService) Search(ctx context.Context, query string) ([]domain.Course, error) {
	query, err := searchQuery(query)
	if err != nil {
		return nil, err
	}
	courses, err := s.store.Courses().Search(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search courses: %w", err)
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	return courses, nil
}

// Create adds a course with empty ratings.
func (s *CourseService) Create(ctx context.Context, input CourseInput) (*domain.Course, error) {
	now := time.Now().UTC()
	course := &domain.Course{
		ID:        uuid.New().String(),
		Aggregate: domain.EmptyAggregate(domain.KindCourse),
		ReviewIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyCourseInput(course, input)
	course.Normalize()
	if fields := course.Validate(); fields != nil {
		return nil, apperrors.Validation(fields)
	}

	if err := s.store.Courses().Create(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	s.logger.InfoContext(ctx, "course created",
		slog.String("course_id", course.ID),
		slog.String("code", course.Code),
	)
	s.effects.publish(ctx, "catalog.changed", func(p EventPublisher) error {
		return p.PublishCatalogChanged(ctx, "created", domain.KindCourse, course.ID)
	})

	return course, nil
}

// Update changes the display fields of a course.
func (s *CourseService) Update(ctx context.Context, id string, input CourseInput) (*domain.Course, error) {
	course, err := s.store.Courses().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}

	applyCourseInput(course, input)
	course.Normalize()
	if fields := course.Validate(); fields != nil {
		return nil, apperrors.Validation(fields)
	}
	course.UpdatedAt = time.Now().UTC()

	if err := s.store.Courses().Update(ctx, course); err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}

	s.logger.InfoContext(ctx, "course updated", slog.String("course_id", id))
	s.effects.invalidate(ctx, domain.KindCourse, id)
	s.effects.publish(ctx, "catalog.changed", func(p EventPublisher) error {
		return p.PublishCatalogChanged(ctx, "updated", domain.KindCourse, id)
	})

	return course, nil
}

// Delete removes a course that has no reviews.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		course, err := tx.Courses().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if len(course.ReviewIDs) > 0 || course.TotalReviews > 0 {
			return apperrors.Conflict("course still has reviews")
		}
		if err := tx.Courses().Delete(ctx, id); err != nil {
			return fmt.Errorf("delete course: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "course deleted", slog.String("course_id", id))
	s.effects.invalidate(ctx, domain.KindCourse, id)
	s.effects.publish(ctx, "catalog.changed", func(p EventPublisher) error {
		return p.PublishCatalogChanged(ctx, "deleted", domain.KindCourse, id)
	})

	return nil
}

func applyCourseInput(c *domain.Course, in CourseInput) {
	setString(&c.Code, in.Code)
	setString(&c.Name, in.Name)
	setString(&c.Department, in.Department)
	setString(&c.DepartmentName, in.DepartmentName)
	setString(&c.Description, in.Description)
	if in.Credits != nil {
		c.Credits = *in.Credits
	}
	if in.ProfessorIDs != nil {
		c.ProfessorIDs = in.ProfessorIDs
	}
	if in.Tags != nil {
		c.Tags = in.Tags
	}
}
