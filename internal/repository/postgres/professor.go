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

const professorColumns = `id, first_name, last_name, email, title, department, department_name, courses, tags,
		       overall_rating, total_reviews, ratings, review_ids, created_at, updated_at`

// ProfessorRepository implements repository.ProfessorRepository using PostgreSQL.
type ProfessorRepository struct {
	db database.DBTX
}

// NewProfessorRepository creates a new PostgreSQL-backed professor repository.
func NewProfessorRepository(db database.DBTX) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

// Create inserts a new professor.
func (r *ProfessorRepository) Create(ctx context.Context, p *domain.Professor) (err error) {
	query := `
		INSERT INTO professors (id, first_name, last_name, email, title, department, department_name, courses, tags,
		                        overall_rating, total_reviews, ratings, review_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, "CreateProfessor", query)
	defer func() { end(err) }()

	ratings, err := marshalJSON(p.Ratings)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.FirstName,
		p.LastName,
		p.Email,
		p.Title,
		p.Department,
		p.DepartmentName,
		nonNil(p.Courses),
		nonNil(p.Tags),
		p.OverallRating,
		p.TotalReviews,
		ratings,
		nonNil(p.ReviewIDs),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("professor", "email", p.Email)
		}
		return fmt.Errorf("insert professor: %w", err)
	}
	return nil
}

// GetByID retrieves a professor by its ID.
func (r *ProfessorRepository) GetByID(ctx context.Context, id string) (_ *domain.Professor, err error) {
	query := `SELECT ` + professorColumns + ` FROM professors WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProfessor", query)
	defer func() { end(err) }()

	p, err := scanProfessor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("professor", id)
		}
		return nil, fmt.Errorf("get professor: %w", err)
	}
	return p, nil
}

// List returns one page of professors matching the filter with the total count.
func (r *ProfessorRepository) List(ctx context.Context, filter repository.EntityFilter) (_ []domain.Professor, _ int, err error) {
	conditions, args := entityConditions(filter,
		"(first_name || ' ' || last_name) ILIKE $%[1]d OR department_name ILIKE $%[1]d OR email ILIKE $%[1]d")

	limit, offset := limitOffset(filter.Page, filter.Limit)
	argIndex := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s,
		       count(*) OVER() AS total_count
		FROM professors
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		professorColumns, whereClause(conditions), professorOrder(filter.SortBy), argIndex, argIndex+1)
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListProfessors", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list professors: %w", err)
	}
	defer rows.Close()

	var (
		professors = []domain.Professor{}
		totalCount int
	)
	for rows.Next() {
		p, err := scanProfessor(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan professor row: %w", err)
		}
		professors = append(professors, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate professor rows: %w", err)
	}
	return professors, totalCount, nil
}

func professorOrder(sortBy string) string {
	switch sortBy {
	case domain.EntitySortName:
		return "last_name ASC, first_name ASC, id ASC"
	case domain.EntitySortReviews:
		return "total_reviews DESC, id ASC"
	default:
		return "overall_rating DESC, id ASC"
	}
}

// Search returns up to limit professors whose name or department matches q.
func (r *ProfessorRepository) Search(ctx context.Context, q string, limit int) ([]domain.Professor, error) {
	items, _, err := r.List(ctx, repository.EntityFilter{Search: &q, Page: 1, Limit: limit})
	return items, err
}

// Update persists the display fields of a professor.
func (r *ProfessorRepository) Update(ctx context.Context, p *domain.Professor) (err error) {
	query := `
		UPDATE professors
		SET first_name = $2, last_name = $3, email = $4, title = $5, department = $6,
		    department_name = $7, courses = $8, tags = $9, updated_at = $10
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateProfessor", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		p.ID,
		p.FirstName,
		p.LastName,
		p.Email,
		p.Title,
		p.Department,
		p.DepartmentName,
		nonNil(p.Courses),
		nonNil(p.Tags),
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("professor", "email", p.Email)
		}
		return fmt.Errorf("update professor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("professor", p.ID)
	}
	return nil
}

// Delete removes a professor by its ID.
func (r *ProfessorRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM professors WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteProfessor", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete professor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("professor", id)
	}
	return nil
}

func scanProfessor(row rowScanner, extra ...any) (*domain.Professor, error) {
	var (
		p       domain.Professor
		ratings []byte
	)
	dest := []any{
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Title,
		&p.Department,
		&p.DepartmentName,
		&p.Courses,
		&p.Tags,
		&p.OverallRating,
		&p.TotalReviews,
		&ratings,
		&p.ReviewIDs,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	p.Ratings = map[string]float64{}
	if err := unmarshalJSON(ratings, &p.Ratings); err != nil {
		return nil, err
	}
	p.Courses = nonNil(p.Courses)
	p.Tags = nonNil(p.Tags)
	p.ReviewIDs = nonNil(p.ReviewIDs)
	return &p, nil
}

// entityConditions builds the WHERE conditions shared by the catalogue
// tables. searchFormat refers to the search placeholder as %[1]d.
func entityConditions(filter repository.EntityFilter, searchFormat string) ([]string, []any) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Department != nil {
		conditions = append(conditions, fmt.Sprintf("department = $%d", argIndex))
		args = append(args, *filter.Department)
		argIndex++
	}

	if filter.Search != nil {
		conditions = append(conditions, "("+fmt.Sprintf(searchFormat, argIndex)+")")
		args = append(args, "%"+*filter.Search+"%")
		argIndex++
	}

	if filter.MinRating != nil {
		conditions = append(conditions, fmt.Sprintf("overall_rating >= $%d", argIndex))
		args = append(args, *filter.MinRating)
	}

	return conditions, args
}
