package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/pkg/database"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

const reviewColumns = `id, user_id, type, target_id, rating, ratings, comment, semester, course_taken,
		       anonymous, verified, helpful, helpful_by, reported, report_count, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a new review.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (id, user_id, type, target_id, rating, ratings, comment, semester, course_taken,
		                     anonymous, verified, helpful, helpful_by, reported, report_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	ratings, err := marshalJSON(review.Ratings)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		review.ID,
		review.UserID,
		string(review.Type),
		review.TargetID,
		review.Rating,
		ratings,
		review.Comment,
		review.Semester,
		review.CourseTaken,
		review.Anonymous,
		review.Verified,
		review.Helpful,
		nonNil(review.HelpfulBy),
		review.Reported,
		review.ReportCount,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("review", "id", review.ID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReview", query)
	defer func() { end(err) }()

	rv, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

// List returns one page of reviews matching the filter with the total count.
func (r *ReviewRepository) List(ctx context.Context, filter repository.ReviewFilter) (_ []domain.Review, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, string(*filter.Type))
		argIndex++
	}

	if filter.ProfessorID != nil {
		conditions = append(conditions, fmt.Sprintf("type = 'professor' AND target_id = $%d", argIndex))
		args = append(args, *filter.ProfessorID)
		argIndex++
	}

	if filter.CourseID != nil {
		conditions = append(conditions, fmt.Sprintf("type = 'course' AND target_id = $%d", argIndex))
		args = append(args, *filter.CourseID)
		argIndex++
	}

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}

	limit, offset := limitOffset(filter.Page, filter.Limit)
	query := fmt.Sprintf(`
		SELECT %s,
		       count(*) OVER() AS total_count
		FROM reviews
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		reviewColumns, whereClause(conditions), reviewOrder(filter.SortBy), argIndex, argIndex+1)
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListReviews", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var (
		reviews    = []domain.Review{}
		totalCount int
	)
	for rows.Next() {
		rv, err := scanReview(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, totalCount, nil
}

func reviewOrder(sortBy string) string {
	switch sortBy {
	case domain.ReviewSortRating:
		return "rating DESC, created_at DESC, id DESC"
	case domain.ReviewSortHelpful:
		return "helpful DESC, created_at DESC, id DESC"
	default:
		return "created_at DESC, id DESC"
	}
}

// ListByTarget returns every review of one entity.
func (r *ReviewRepository) ListByTarget(ctx context.Context, kind domain.EntityKind, targetID string) (_ []domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE type = $1 AND target_id = $2`

	ctx, end := database.TraceQuery(ctx, "ListReviewsByTarget", query)
	defer func() { end(err) }()

	return r.queryReviews(ctx, query, string(kind), targetID)
}

// ListRecentByTarget returns up to limit reviews of one entity, newest first.
func (r *ReviewRepository) ListRecentByTarget(ctx context.Context, kind domain.EntityKind, targetID string, limit int) (_ []domain.Review, err error) {
	query := `SELECT ` + reviewColumns + `
		FROM reviews
		WHERE type = $1 AND target_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	ctx, end := database.TraceQuery(ctx, "ListRecentReviewsByTarget", query)
	defer func() { end(err) }()

	return r.queryReviews(ctx, query, string(kind), targetID, limit)
}

func (r *ReviewRepository) queryReviews(ctx context.Context, query string, args ...any) ([]domain.Review, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// Update persists the client-editable fields of a review.
func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) (err error) {
	query := `
		UPDATE reviews
		SET rating = $2, ratings = $3, comment = $4, semester = $5, course_taken = $6,
		    anonymous = $7, updated_at = $8
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateReview", query)
	defer func() { end(err) }()

	ratings, err := marshalJSON(review.Ratings)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query,
		review.ID,
		review.Rating,
		ratings,
		review.Comment,
		review.Semester,
		review.CourseTaken,
		review.Anonymous,
		review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", review.ID)
	}
	return nil
}

// Delete removes a review by its ID.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteReview", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// ToggleHelpful flips userID's membership in helpful_by and adjusts the
// counter in the same statement. Row locking makes concurrent toggles by the
// same user serialize, so none is lost.
func (r *ReviewRepository) ToggleHelpful(ctx context.Context, id, userID string) (_ *domain.Review, _ bool, err error) {
	query := `
		UPDATE reviews
		SET helpful_by = CASE WHEN $2::text = ANY(helpful_by)
		                      THEN array_remove(helpful_by, $2::text)
		                      ELSE array_append(helpful_by, $2::text) END,
		    helpful = CASE WHEN $2::text = ANY(helpful_by)
		                   THEN GREATEST(helpful - 1, 0)
		                   ELSE helpful + 1 END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + reviewColumns + `, $2::text = ANY(helpful_by) AS marked`

	ctx, end := database.TraceQuery(ctx, "ToggleReviewHelpful", query)
	defer func() { end(err) }()

	var marked bool
	rv, err := scanReview(r.db.QueryRow(ctx, query, id, userID), &marked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, apperrors.NotFound("review", id)
		}
		return nil, false, fmt.Errorf("toggle review helpful: %w", err)
	}
	return rv, marked, nil
}

// Report flags the review and increments its report counter.
func (r *ReviewRepository) Report(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `
		UPDATE reviews
		SET reported = TRUE, report_count = report_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + reviewColumns

	ctx, end := database.TraceQuery(ctx, "ReportReview", query)
	defer func() { end(err) }()

	rv, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("report review: %w", err)
	}
	return rv, nil
}

// scanReview reads reviewColumns followed by any extra trailing columns.
func scanReview(row rowScanner, extra ...any) (*domain.Review, error) {
	var (
		rv      domain.Review
		kind    string
		ratings []byte
	)

	dest := []any{
		&rv.ID,
		&rv.UserID,
		&kind,
		&rv.TargetID,
		&rv.Rating,
		&ratings,
		&rv.Comment,
		&rv.Semester,
		&rv.CourseTaken,
		&rv.Anonymous,
		&rv.Verified,
		&rv.Helpful,
		&rv.HelpfulBy,
		&rv.Reported,
		&rv.ReportCount,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	rv.Type = domain.EntityKind(kind)
	rv.Ratings = map[string]int{}
	if err := unmarshalJSON(ratings, &rv.Ratings); err != nil {
		return nil, err
	}
	rv.HelpfulBy = nonNil(rv.HelpfulBy)
	return &rv, nil
}
