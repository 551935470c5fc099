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

// Search bounds shared by the professor and course lookups.
const (
	MinSearchLength = 2
	SearchLimit     = 10
)

// ProfessorInput holds the display fields of a professor. On update nil
// fields are left unchanged.
type ProfessorInput struct {
	FirstName      *string
	LastName       *string
	Email          *string
	Title          *string
	Department     *string
	DepartmentName *string
	Courses        []string
	Tags           []string
}

// ProfessorService implements the professor catalogue.
type ProfessorService struct {
	store   repository.Store
	cache   EntityCache
	effects sideEffects
	logger  *slog.Logger
}

// NewProfessorService creates a new professor service. cache may be nil.
func NewProfessorService(store repository.Store, cache EntityCache, events EventPublisher, logger *slog.Logger) *ProfessorService {
	effects := newSideEffects(cache, events, logger)
	return &ProfessorService{
		store:   store,
		cache:   effects.cache,
		effects: effects,
		logger:  logger,
	}
}

// Get returns a professor with its most recent reviews, served from the
// cache when possible.
func (s *ProfessorService) Get(ctx context.Context, id string) (*domain.ProfessorDetail, error) {
	var cached domain.ProfessorDetail
	hit, err := s.cache.Get(ctx, domain.KindProfessor, id, &cached)
	if err != nil {
		s.logger.WarnContext(ctx, "professor cache read failed",
			slog.String("professor_id", id),
			slog.String("error", err.Error()),
		)
	}
	if hit {
		return &cached, nil
	}

	professor, err := s.store.Professors().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get professor: %w", err)
	}
	reviews, err := s.store.Reviews().ListRecentByTarget(ctx, domain.KindProfessor, id, domain.RecentReviewsLimit)
	if err != nil {
		return nil, fmt.Errorf("list professor reviews: %w", err)
	}

	detail := &domain.ProfessorDetail{Professor: *professor, Reviews: reviews}
	if detail.Reviews == nil {
		detail.Reviews = []domain.Review{}
	}
	if err := s.cache.Set(ctx, domain.KindProfessor, id, detail); err != nil {
		s.logger.WarnContext(ctx, "professor cache write failed",
			slog.String("professor_id", id),
			slog.String("error", err.Error()),
		)
	}
	return detail, nil
}

// List returns a page of professors matching filter.
func (s *ProfessorService) List(ctx context.Context, filter repository.EntityFilter) (*pagination.Result[domain.Professor], error) {
	if !domain.IsValidEntitySort(filter.SortBy, domain.ProfessorSorts()) {
		return nil, apperrors.Validation(map[string]string{
			"sortBy": "must be one of: " + strings.Join(domain.ProfessorSorts(), " "),
		})
	}

	params := pagination.New(filter.Page, filter.Limit)
	filter.Page, filter.Limit = params.Page, params.Limit

	professors, total, err := s.store.Professors().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list professors: %w", err)
	}
	result := pagination.NewResult(professors, total, params)
	return &result, nil
}

// Search returns up to SearchLimit professors matching query.
func (s *ProfessorService) Search(ctx context.Context, query string) ([]domain.Professor, error) {
	query, err := searchQuery(query)
	if err != nil {
		return nil, err
	}
	professors, err := s.store.Professors().Search(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search professors: %w", err)
	}
	if professors == nil {
		professors = []domain.Professor{}
	}
	return professors, nil
}

// Create adds a professor with empty ratings.
func (s *ProfessorService) Create(ctx context.Context, input ProfessorInput) (*domain.Professor, error) {
	now := time.Now().UTC()
	professor := &domain.Professor{
		ID:        uuid.New().String(),
		Aggregate: domain.EmptyAggregate(domain.KindProfessor),
		ReviewIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyProfessorInput(professor, input)
	professor.Normalize()
	if fields := professor.Validate(); fields != nil {
		return nil, apperrors.Validation(fields)
	}

	if err := s.store.Professors().Create(ctx, professor); err != nil {
		return nil, fmt.Errorf("create professor: %w", err)
	}

	s.logger.InfoContext(ctx, "professor created",
		slog.String("professor_id", professor.ID),
		slog.String("email", professor.Email),
	)
	s.effects.publish(ctx, "catalog.changed", func(p EventPublisher) error {
		return p.PublishCatalogChanged(ctx, "created", domain.KindProfessor, professor.ID)
	})

	return professor, nil
}

// Update changes the display fields of a professor. Ratings are never
// taken from input.
func (s *ProfessorService) Update(ctx context.Context, id string, input ProfessorInput) (*domain.Professor, error) {
	professor, err := s.store.Professors().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get professor: %w", err)
	}

	applyProfessorInput(professor, input)
	professor.Normalize()
	if fields := professor.Validate(); fields != nil {
		return nil, apperrors.Validation(fields)
	}
	professor.UpdatedAt = time.Now().UTC()

	if err := s.store.Professors().Update(ctx, professor); err != nil {
		return nil, fmt.Errorf("update professor: %w", err)
	}

	s.logger.InfoContext(ctx, "professor updated", slog.String("professor_id", id))
	s.effects.invalidate(ctx, domain.KindProfessor, id)
	s.effects.publish(ctx, "catalog.changed", func(p EventPublisher) error {
		return p.PublishCatalogChanged(ctx, "updated", domain.KindProfessor, id)
	})

	return professor, nil
}

// Delete removes a professor that has no reviews.
func (s *ProfessorService) Delete(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		professor, err := tx.Professors().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get professor: %w", err)
		}
		if len(professor.ReviewIDs) > 0 || professor.TotalReviews > 0 {
			return apperrors.Conflict("professor still has reviews")
		}
		if err := tx.Professors().Delete(ctx, id); err != nil {
			return fmt.Errorf("delete professor: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "professor deleted", slog.String("professor_id", id))
	s.effects.invalidate(ctx, domain.KindProfessor, id)
	s.effects.publish(ctx, "catalog.changed", func(p EventPublisher) error {
		return p.PublishCatalogChanged(ctx, "deleted", domain.KindProfessor, id)
	})

	return nil
}

func applyProfessorInput(p *domain.Professor, in ProfessorInput) {
	setString(&p.FirstName, in.FirstName)
	setString(&p.LastName, in.LastName)
	setString(&p.Email, in.Email)
	setString(&p.Title, in.Title)
	setString(&p.Department, in.Department)
	setString(&p.DepartmentName, in.DepartmentName)
	if in.Courses != nil {
		p.Courses = in.Courses
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func searchQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinSearchLength {
		return "", apperrors.Validation(map[string]string{
			"q": fmt.Sprintf("must be at least %d characters", MinSearchLength),
		})
	}
	return q, nil
}
