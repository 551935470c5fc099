package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/rating"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
	"github.com/utafrali/proflens/pkg/pagination"
)

// CreateReviewInput holds the parameters for creating a review. Exactly one
// of ProfessorID and CourseID is expected, matching Type.
type CreateReviewInput struct {
	UserID      string
	Type        string
	ProfessorID string
	CourseID    string
	Rating      int
	Ratings     map[string]int
	Comment     string
	Semester    string
	CourseTaken string
	Anonymous   *bool
}

// UpdateReviewInput holds the fields a review author may change. Nil fields
// are left as they are; a non-nil Ratings replaces the whole dimension map.
type UpdateReviewInput struct {
	Rating      *int
	Ratings     map[string]int
	Comment     *string
	Semester    *string
	CourseTaken *string
	Anonymous   *bool
}

// ReviewService implements the review lifecycle: every change to an
// entity's review set is committed together with the recomputed aggregate.
type ReviewService struct {
	store      repository.Store
	aggregator *rating.Aggregator
	effects    sideEffects
	logger     *slog.Logger
	now        func() time.Time
}

// NewReviewService creates a new review service. cache may be nil.
func NewReviewService(
	store repository.Store,
	aggregator *rating.Aggregator,
	cache EntityCache,
	events EventPublisher,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		store:      store,
		aggregator: aggregator,
		effects:    newSideEffects(cache, events, logger),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create validates input, stores the review, links it to its target and
// author and recomputes the target's ratings in one transaction.
func (s *ReviewService) Create(ctx context.Context, input CreateReviewInput) (*domain.Review, error) {
	if input.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	kind, targetID, fields := resolveTarget(input)

	now := s.now()
	semester := strings.TrimSpace(input.Semester)
	if semester == "" {
		semester = domain.DefaultSemester(now)
	}
	anonymous := true
	if input.Anonymous != nil {
		anonymous = *input.Anonymous
	}

	review := &domain.Review{
		ID:          uuid.New().String(),
		UserID:      input.UserID,
		Type:        kind,
		TargetID:    targetID,
		Rating:      input.Rating,
		Ratings:     copyScores(input.Ratings),
		Comment:     strings.TrimSpace(input.Comment),
		Semester:    semester,
		CourseTaken: strings.TrimSpace(input.CourseTaken),
		Anonymous:   anonymous,
		Verified:    true,
		HelpfulBy:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for field, msg := range review.Validate() {
		if _, ok := fields[field]; !ok {
			fields[field] = msg
		}
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields)
	}

	var agg *domain.Aggregate
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		exists, err := tx.Targets().Exists(ctx, kind, targetID)
		if err != nil {
			return fmt.Errorf("check %s: %w", kind, err)
		}
		if !exists {
			return apperrors.NotFound(kind.String(), targetID)
		}

		if err := tx.Reviews().Create(ctx, review); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		if err := tx.Targets().AddReview(ctx, kind, targetID, review.ID); err != nil {
			return fmt.Errorf("link review to %s: %w", kind, err)
		}
		if err := tx.Users().AddReview(ctx, review.UserID, review.ID); err != nil {
			return fmt.Errorf("link review to author: %w", err)
		}

		agg, err = s.aggregator.WithStore(tx).Recompute(ctx, kind, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("type", kind.String()),
		slog.String("target_id", targetID),
		slog.String("user_id", review.UserID),
		slog.Int("rating", review.Rating),
	)

	s.effects.publish(ctx, "review.created", func(p EventPublisher) error {
		return p.PublishReviewCreated(ctx, review)
	})
	s.effects.ratingsChanged(ctx, kind, targetID, agg)

	return review, nil
}

// resolveTarget maps the type and the two target ids of input onto one
// entity reference, collecting field errors for missing or mismatched ids.
func resolveTarget(input CreateReviewInput) (domain.EntityKind, string, map[string]string) {
	fields := map[string]string{}
	kind, ok := domain.ParseKind(input.Type)
	if !ok {
		fields["type"] = "must be one of: professor course"
		return kind, "", fields
	}

	var targetID string
	switch kind {
	case domain.KindProfessor:
		targetID = input.ProfessorID
		if input.ProfessorID == "" {
			fields["professor_id"] = "is required for professor reviews"
		}
		if input.CourseID != "" {
			fields["course_id"] = "must be empty for professor reviews"
		}
	case domain.KindCourse:
		targetID = input.CourseID
		if input.CourseID == "" {
			fields["course_id"] = "is required for course reviews"
		}
		if input.ProfessorID != "" {
			fields["professor_id"] = "must be empty for course reviews"
		}
	}
	return kind, targetID, fields
}

// Get returns a review by id.
func (s *ReviewService) Get(ctx context.Context, id string) (*domain.Review, error) {
	review, err := s.store.Reviews().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

// List returns a page of reviews matching filter.
func (s *ReviewService) List(ctx context.Context, filter repository.ReviewFilter) (*pagination.Result[domain.Review], error) {
	if !domain.IsValidReviewSort(filter.SortBy) {
		return nil, apperrors.Validation(map[string]string{
			"sortBy": "must be one of: " + strings.Join(domain.ValidReviewSorts(), " "),
		})
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperrors.Validation(map[string]string{"type": "must be one of: professor course"})
	}

	params := pagination.New(filter.Page, filter.Limit)
	filter.Page, filter.Limit = params.Page, params.Limit

	reviews, total, err := s.store.Reviews().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	result := pagination.NewResult(reviews, total, params)
	return &result, nil
}

// ListByUser returns a page of the caller's own reviews, newest first.
func (s *ReviewService) ListByUser(ctx context.Context, caller domain.Caller, page, limit int) (*pagination.Result[domain.Review], error) {
	if caller.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	userID := caller.UserID
	return s.List(ctx, repository.ReviewFilter{UserID: &userID, Page: page, Limit: limit})
}

// Update applies input to a review owned by the caller. The target's ratings
// are recomputed only when a score changed.
func (s *ReviewService) Update(ctx context.Context, id string, caller domain.Caller, input UpdateReviewInput) (*domain.Review, error) {
	var (
		updated *domain.Review
		agg     *domain.Aggregate
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		existing, err := tx.Reviews().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get review: %w", err)
		}
		if !caller.CanModify(existing.UserID) {
			return apperrors.Forbidden()
		}

		updated = existing.Clone()
		fields := applyReviewUpdate(updated, input)
		for field, msg := range updated.Validate() {
			if _, ok := fields[field]; !ok {
				fields[field] = msg
			}
		}
		if len(fields) > 0 {
			return apperrors.Validation(fields)
		}
		updated.UpdatedAt = s.now()

		if err := tx.Reviews().Update(ctx, updated); err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		if existing.SameScores(updated) {
			return nil
		}
		agg, err = s.aggregator.WithStore(tx).Recompute(ctx, updated.Type, updated.TargetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "review updated",
		slog.String("review_id", id),
		slog.String("user_id", caller.UserID),
		slog.Bool("ratings_recomputed", agg != nil),
	)

	s.effects.publish(ctx, "review.updated", func(p EventPublisher) error {
		return p.PublishReviewUpdated(ctx, updated)
	})
	if agg != nil {
		s.effects.ratingsChanged(ctx, updated.Type, updated.TargetID, agg)
	} else {
		s.effects.invalidate(ctx, updated.Type, updated.TargetID)
	}

	return updated, nil
}

func applyReviewUpdate(r *domain.Review, input UpdateReviewInput) map[string]string {
	fields := map[string]string{}
	if input.Rating != nil {
		r.Rating = *input.Rating
	}
	if input.Ratings != nil {
		r.Ratings = copyScores(input.Ratings)
	}
	if input.Comment != nil {
		r.Comment = strings.TrimSpace(*input.Comment)
	}
	if input.Semester != nil {
		r.Semester = strings.TrimSpace(*input.Semester)
		if r.Semester == "" {
			fields["semester"] = "must not be empty"
		}
	}
	if input.CourseTaken != nil {
		r.CourseTaken = strings.TrimSpace(*input.CourseTaken)
	}
	if input.Anonymous != nil {
		r.Anonymous = *input.Anonymous
	}
	return fields
}

// Delete removes a review owned by the caller, unlinks it from its target
// and author and recomputes the target's ratings.
func (s *ReviewService) Delete(ctx context.Context, id string, caller domain.Caller) error {
	var (
		review *domain.Review
		agg    *domain.Aggregate
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		review, err = tx.Reviews().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get review: %w", err)
		}
		if !caller.CanModify(review.UserID) {
			return apperrors.Forbidden()
		}

		if err := tx.Targets().RemoveReview(ctx, review.Type, review.TargetID, id); err != nil {
			return fmt.Errorf("unlink review from %s: %w", review.Type, err)
		}
		if err := tx.Users().RemoveReview(ctx, review.UserID, id); err != nil {
			return fmt.Errorf("unlink review from author: %w", err)
		}
		if err := tx.Reviews().Delete(ctx, id); err != nil {
			return fmt.Errorf("delete review: %w", err)
		}

		agg, err = s.aggregator.WithStore(tx).Recompute(ctx, review.Type, review.TargetID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", id),
		slog.String("user_id", caller.UserID),
		slog.String("target_id", review.TargetID),
	)

	s.effects.publish(ctx, "review.deleted", func(p EventPublisher) error {
		return p.PublishReviewDeleted(ctx, review)
	})
	s.effects.ratingsChanged(ctx, review.Type, review.TargetID, agg)

	return nil
}

// MarkHelpful toggles the caller's helpful vote on a review.
func (s *ReviewService) MarkHelpful(ctx context.Context, id string, caller domain.Caller) (*domain.HelpfulResult, error) {
	if caller.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	review, marked, err := s.store.Reviews().ToggleHelpful(ctx, id, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("toggle helpful: %w", err)
	}

	s.logger.InfoContext(ctx, "review helpful toggled",
		slog.String("review_id", id),
		slog.String("user_id", caller.UserID),
		slog.Bool("marked", marked),
		slog.Int("helpful", review.Helpful),
	)
	s.effects.invalidate(ctx, review.Type, review.TargetID)

	return &domain.HelpfulResult{Helpful: review.Helpful, Marked: marked}, nil
}

// Report flags a review for moderation. Repeated reports by the same caller
// are counted.
func (s *ReviewService) Report(ctx context.Context, id string, caller domain.Caller) (*domain.ReportResult, error) {
	if caller.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	review, err := s.store.Reviews().Report(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("report review: %w", err)
	}

	s.logger.WarnContext(ctx, "review reported",
		slog.String("review_id", id),
		slog.String("reporter_id", caller.UserID),
		slog.Int("report_count", review.ReportCount),
	)
	s.effects.invalidate(ctx, review.Type, review.TargetID)

	return &domain.ReportResult{ReportCount: review.ReportCount}, nil
}

// RecomputeRatings rebuilds an entity's aggregate from its current reviews.
func (s *ReviewService) RecomputeRatings(ctx context.Context, kind domain.EntityKind, id string) (*domain.Aggregate, error) {
	var agg *domain.Aggregate
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		agg, err = s.aggregator.WithStore(tx).Recompute(ctx, kind, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "ratings recomputed on request",
		slog.String("kind", kind.String()),
		slog.String("entity_id", id),
		slog.Int("total_reviews", agg.TotalReviews),
	)
	s.effects.ratingsChanged(ctx, kind, id, agg)

	return agg, nil
}

func copyScores(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
