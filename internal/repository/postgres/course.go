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

const courseColumns = `id, code, name, department, department_name, credits, description, professor_ids, tags,
		       overall_rating, total_reviews, ratings, review_ids, created_at, updated_at`

// CourseRepository implements repository.CourseRepository using PostgreSQL.
type CourseRepository struct {
	db database.DBTX
}

// NewCourseRepository creates a new PostgreSQL-backed course repository.
func NewCourseRepository(db database.DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) (err error) {
	query := `
		INSERT INTO courses (id, code, name, department, department_name, credits, description, professor_ids, tags,
		                     overall_rating, total_reviews, ratings, review_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, "CreateCourse", query)
	defer func() { end(err) }()

	ratings, err := marshalJSON(c.Ratings)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Name,
		c.Department,
		c.DepartmentName,
		c.Credits,
		c.Description,
		nonNil(c.ProfessorIDs),
		nonNil(c.Tags),
		c.OverallRating,
		c.TotalReviews,
		ratings,
		nonNil(c.ReviewIDs),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("course", "code", c.Code)
		}
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

// GetByID retrieves a course by its ID.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (_ *domain.Course, err error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetCourse", query)
	defer func() { end(err) }()

	c, err := scanCourse(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("course", id)
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

// List returns one page of courses matching the filter with the total count.
func (r *CourseRepository) List(ctx context.Context, filter repository.EntityFilter) (_ []domain.Course, _ int, err error) {
	conditions, args := entityConditions(filter,
		"code ILIKE $%[1]d OR name ILIKE $%[1]d OR department_name ILIKE $%[1]d")

	limit, offset := limitOffset(filter.Page, filter.Limit)
	argIndex := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s,
		       count(*) OVER() AS total_count
		FROM courses
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		courseColumns, whereClause(conditions), courseOrder(filter.SortBy), argIndex, argIndex+1)
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListCourses", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var (
		courses    = []domain.Course{}
		totalCount int
	)
	for rows.Next() {
		c, err := scanCourse(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan course row: %w", err)
		}
		courses = append(courses, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate course rows: %w", err)
	}
	return courses, totalCount, nil
}

func courseOrder(sortBy string) string {
	switch sortBy {
	case domain.EntitySortCode:
		return "code ASC"
	case domain.EntitySortName:
		return "name ASC, code ASC"
	case domain.EntitySortReviews:
		return "total_reviews DESC, code ASC"
	default:
		return "overall_rating DESC, code ASC"
	}
}

// Search returns up to limit courses whose code, name or department matches q.
func (r *CourseRepository) Search(ctx context.Context, q string, limit int) ([]domain.Course, error) {
	items, _, err := r.List(ctx, repository.EntityFilter{Search: &q, Page: 1, Limit: limit})
	return items, err
}

// Update persists the display fields of a course.
func (r *CourseRepository) Update(ctx context.Context, c *domain.Course) (err error) {
	query := `
		UPDATE courses
		SET code = $2, name = $3, department = $4, department_name = $5, credits = $6,
		    description = $7, professor_ids = $8, tags = $9, updated_at = $10
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateCourse", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Name,
		c.Department,
		c.DepartmentName,
		c.Credits,
		c.Description,
		nonNil(c.ProfessorIDs),
		nonNil(c.Tags),
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("course", "code", c.Code)
		}
		return fmt.Errorf("update course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("course", c.ID)
	}
	return nil
}

// Delete removes a course by its ID.
func (r *CourseRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM courses WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteCourse", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("course", id)
	}
	return nil
}

func scanCourse(row rowScanner, extra ...any) (*domain.Course, error) {
	var (
		c       domain.Course
		ratings []byte
	)
	dest := []any{
		&c.ID,
		&c.Code,
		&c.Name,
		&c.Department,
		&c.DepartmentName,
		&c.Credits,
		&c.Description,
		&c.ProfessorIDs,
		&c.Tags,
		&c.OverallRating,
		&c.TotalReviews,
		&ratings,
		&c.ReviewIDs,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	c.Ratings = map[string]float64{}
	if err := unmarshalJSON(ratings, &c.Ratings); err != nil {
		return nil, err
	}
	c.ProfessorIDs = nonNil(c.ProfessorIDs)
	c.Tags = nonNil(c.Tags)
	c.ReviewIDs = nonNil(c.ReviewIDs)
	return &c, nil
}
