// Package postgres implements the repository interfaces on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/pkg/database"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

// Pool is the connection surface the store needs: plain queries plus
// transactions with explicit options. Both *pgxpool.Pool and pgxmock pools
// satisfy it.
type Pool interface {
	database.DBTX
	database.TxBeginner
}

// Store implements repository.Store. Outside a transaction db is the pool;
// inside InTx it is the pgx.Tx.
type Store struct {
	pool Pool
	db   database.DBTX
	inTx bool
}

var _ repository.Store = (*Store)(nil)

// New creates a PostgreSQL-backed store.
func New(pool Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Reviews() repository.ReviewRepository { return NewReviewRepository(s.db) }
func (s *Store) Targets() repository.TargetRepository { return NewTargetRepository(s.db) }
func (s *Store) Professors() repository.ProfessorRepository { return NewProfessorRepository(s.db) }
func (s *Store) Courses() repository.CourseRepository { return NewCourseRepository(s.db) }
func (s *Store) Users() repository.UserRepository { return NewUserRepository(s.db) }

// InTx runs fn inside a READ COMMITTED transaction. Nested calls reuse the
// outer transaction. A connection failure at begin is reported as
// ErrServiceUnavail.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		err = fmt.Errorf("begin transaction: %w", err)
		if database.IsConnectionError(err) {
			return apperrors.Unavailable("the database is unavailable", err)
		}
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// entityTable maps a reviewable kind to its table.
func entityTable(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.KindProfessor:
		return "professors", nil
	case domain.KindCourse:
		return "courses", nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return b, nil
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func limitOffset(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * limit
	}
	return limit, offset
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
