package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/pkg/database"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

// TargetRepository implements repository.TargetRepository over the
// professors and courses tables, which share the aggregate columns.
type TargetRepository struct {
	db database.DBTX
}

// NewTargetRepository creates a new PostgreSQL-backed target repository.
func NewTargetRepository(db database.DBTX) *TargetRepository {
	return &TargetRepository{db: db}
}

// Exists reports whether an entity of kind with id exists.
func (r *TargetRepository) Exists(ctx context.Context, kind domain.EntityKind, id string) (_ bool, err error) {
	table, err := entityTable(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table)

	ctx, end := database.TraceQuery(ctx, "TargetExists", query)
	defer func() { end(err) }()

	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s exists: %w", kind, err)
	}
	return exists, nil
}

// AddReview appends reviewID to the entity's review references once.
func (r *TargetRepository) AddReview(ctx context.Context, kind domain.EntityKind, id, reviewID string) error {
	return r.execOnEntity(ctx, kind, id, "AddTargetReview", `
		UPDATE %s
		SET review_ids = CASE WHEN $2::text = ANY(review_ids) THEN review_ids
		                      ELSE array_append(review_ids, $2::text) END,
		    updated_at = NOW()
		WHERE id = $1`, id, reviewID)
}

// RemoveReview drops reviewID from the entity's review references.
func (r *TargetRepository) RemoveReview(ctx context.Context, kind domain.EntityKind, id, reviewID string) error {
	return r.execOnEntity(ctx, kind, id, "RemoveTargetReview", `
		UPDATE %s
		SET review_ids = array_remove(review_ids, $2::text), updated_at = NOW()
		WHERE id = $1`, id, reviewID)
}

// Lock takes the entity's row lock, which AddReview and RemoveReview also
// take, so recomputations on one entity run one at a time.
func (r *TargetRepository) Lock(ctx context.Context, kind domain.EntityKind, id string) (err error) {
	table, err := entityTable(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, table)

	ctx, end := database.TraceQuery(ctx, "LockTarget", query)
	defer func() { end(err) }()

	var locked string
	if err := r.db.QueryRow(ctx, query, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound(kind.String(), id)
		}
		return fmt.Errorf("lock %s: %w", kind, err)
	}
	return nil
}

// UpdateAggregate overwrites the derived rating columns in one statement.
func (r *TargetRepository) UpdateAggregate(ctx context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error {
	ratings, err := marshalJSON(agg.Ratings)
	if err != nil {
		return err
	}
	return r.execOnEntity(ctx, kind, id, "UpdateTargetAggregate", `
		UPDATE %s
		SET overall_rating = $2, total_reviews = $3, ratings = $4, updated_at = NOW()
		WHERE id = $1`, id, agg.OverallRating, agg.TotalReviews, ratings)
}

func (r *TargetRepository) execOnEntity(ctx context.Context, kind domain.EntityKind, id, operation, format string, args ...any) (err error) {
	table, err := entityTable(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(format, table)

	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(kind.String(), id)
	}
	return nil
}
