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

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// AddReview records reviewID for the author, inserting the row on first use.
func (r *UserRepository) AddReview(ctx context.Context, userID, reviewID string) (err error) {
	query := `
		INSERT INTO users (id, review_ids)
		VALUES ($1, ARRAY[$2::text])
		ON CONFLICT (id) DO UPDATE
		SET review_ids = CASE WHEN $2::text = ANY(users.review_ids) THEN users.review_ids
		                      ELSE array_append(users.review_ids, $2::text) END,
		    updated_at = NOW()`

	ctx, end := database.TraceQuery(ctx, "AddUserReview", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID, reviewID); err != nil {
		return fmt.Errorf("add user review: %w", err)
	}
	return nil
}

// RemoveReview drops reviewID from the author's references. A missing
// author row is not an error.
func (r *UserRepository) RemoveReview(ctx context.Context, userID, reviewID string) (err error) {
	query := `UPDATE users SET review_ids = array_remove(review_ids, $2::text), updated_at = NOW() WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "RemoveUserReview", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID, reviewID); err != nil {
		return fmt.Errorf("remove user review: %w", err)
	}
	return nil
}

// GetByID retrieves the author projection.
func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *domain.User, err error) {
	query := `SELECT id, review_ids FROM users WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetUser", query)
	defer func() { end(err) }()

	var u domain.User
	if err = r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.ReviewIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.ReviewIDs = nonNil(u.ReviewIDs)
	return &u, nil
}
