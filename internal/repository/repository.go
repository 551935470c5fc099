package repository

import (
	"context"

	"github.com/utafrali/proflens/internal/domain"
)

// ReviewFilter defines filter criteria for listing reviews. ProfessorID and
// CourseID each restrict results to reviews of that kind and target.
type ReviewFilter struct {
	Type        *domain.EntityKind
	ProfessorID *string
	CourseID    *string
	UserID      *string
	SortBy      string
	Page        int
	Limit       int
}

// EntityFilter defines filter criteria for listing professors or courses.
type EntityFilter struct {
	Department *string
	Search     *string
	MinRating  *float64
	SortBy     string
	Page       int
	Limit      int
}

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	// Create inserts a new review.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID retrieves a review, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// List returns one page of reviews matching filter plus the total match count.
	List(ctx context.Context, filter ReviewFilter) ([]domain.Review, int, error)

	// ListByTarget returns every review of the given entity.
	ListByTarget(ctx context.Context, kind domain.EntityKind, targetID string) ([]domain.Review, error)

	// ListRecentByTarget returns up to limit reviews of the entity, newest first.
	ListRecentByTarget(ctx context.Context, kind domain.EntityKind, targetID string, limit int) ([]domain.Review, error)

	// Update persists the client-editable fields of review.
	Update(ctx context.Context, review *domain.Review) error

	// Delete removes a review by id.
	Delete(ctx context.Context, id string) error

	// ToggleHelpful adds userID to the review's helpful voters, or removes it
	// when already present, adjusting the counter in the same statement. It
	// returns the updated review and whether userID is now a voter.
	ToggleHelpful(ctx context.Context, id, userID string) (*domain.Review, bool, error)

	// Report flags the review and increments its report counter.
	Report(ctx context.Context, id string) (*domain.Review, error)
}

// TargetRepository holds the operations shared by every reviewable kind:
// existence checks, review references and derived aggregate fields.
type TargetRepository interface {
	Exists(ctx context.Context, kind domain.EntityKind, id string) (bool, error)
	AddReview(ctx context.Context, kind domain.EntityKind, id, reviewID string) error
	RemoveReview(ctx context.Context, kind domain.EntityKind, id, reviewID string) error

	// Lock serializes aggregate writers on the entity for the rest of the
	// enclosing transaction. It returns ErrNotFound when no entity matches.
	Lock(ctx context.Context, kind domain.EntityKind, id string) error

	// UpdateAggregate overwrites the entity's aggregate fields in one write.
	// It returns ErrNotFound when no entity matches.
	UpdateAggregate(ctx context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error
}

// ProfessorRepository defines catalogue persistence for professors.
type ProfessorRepository interface {
	Create(ctx context.Context, p *domain.Professor) error
	GetByID(ctx context.Context, id string) (*domain.Professor, error)
	List(ctx context.Context, filter EntityFilter) ([]domain.Professor, int, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Professor, error)

	// Update persists display fields. Aggregate fields are left untouched.
	Update(ctx context.Context, p *domain.Professor) error
	Delete(ctx context.Context, id string) error
}

// CourseRepository defines catalogue persistence for courses.
type CourseRepository interface {
	Create(ctx context.Context, c *domain.Course) error
	GetByID(ctx context.Context, id string) (*domain.Course, error)
	List(ctx context.Context, filter EntityFilter) ([]domain.Course, int, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Course, error)

	// Update persists display fields. Aggregate fields are left untouched.
	Update(ctx context.Context, c *domain.Course) error
	Delete(ctx context.Context, id string) error
}

// UserRepository maintains the per-author review projection.
type UserRepository interface {
	// AddReview records reviewID for userID, creating the user row on first use.
	AddReview(ctx context.Context, userID, reviewID string) error
	RemoveReview(ctx context.Context, userID, reviewID string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Store groups the repositories of one backend. InTx runs fn against a Store
// whose repositories share a single transaction; the transaction commits
// when fn returns nil and rolls back otherwise. Calling InTx on a Store that
// is already transactional runs fn in the same transaction.
type Store interface {
	Reviews() ReviewRepository
	Targets() TargetRepository
	Professors() ProfessorRepository
	Courses() CourseRepository
	Users() UserRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
}
