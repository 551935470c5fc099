package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

var professorColumnNames = []string{
	"id", "first_name", "last_name", "email", "title", "department", "department_name", "courses", "tags",
	"overall_rating", "total_reviews", "ratings", "review_ids", "created_at", "updated_at",
}

var courseColumnNames = []string{
	"id", "code", "name", "department", "department_name", "credits", "description", "professor_ids", "tags",
	"overall_rating", "total_reviews", "ratings", "review_ids", "created_at", "updated_at",
}

func sampleProfessor() domain.Professor {
	return domain.Professor{
		ID:             "prof-1",
		FirstName:      "Amr",
		LastName:       "Goneid",
		Email:          "goneid@uni.edu",
		Title:          domain.TitleProfessor,
		Department:     "CSCE",
		DepartmentName: "Computer Science",
		Courses:        []string{"CSCE 1101"},
		Tags:           []string{},
		Aggregate:      domain.EmptyAggregate(domain.KindProfessor),
		ReviewIDs:      []string{},
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
}

func professorRow(p domain.Professor) []any {
	return []any{
		p.ID, p.FirstName, p.LastName, p.Email, p.Title, p.Department, p.DepartmentName, p.Courses, p.Tags,
		4.25, 4, []byte(`{"clarity":4.5,"grading":3}`), []string{"rev-1"}, p.CreatedAt, p.UpdatedAt,
	}
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:             "course-1",
		Code:           "CSCE 2301",
		Name:           "Digital Design",
		Department:     "CSCE",
		DepartmentName: "Computer Science",
		Credits:        3,
		Description:    "Combinational and sequential logic.",
		ProfessorIDs:   []string{},
		Tags:           []string{},
		Aggregate:      domain.EmptyAggregate(domain.KindCourse),
		ReviewIDs:      []string{},
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
}

func courseRow(c domain.Course) []any {
	return []any{
		c.ID, c.Code, c.Name, c.Department, c.DepartmentName, c.Credits, c.Description, c.ProfessorIDs, c.Tags,
		c.OverallRating, c.TotalReviews, []byte(`{}`), c.ReviewIDs, c.CreatedAt, c.UpdatedAt,
	}
}

func TestTargetRepository_Exists(t *testing.T) {
	mock := setupMock(t)
	repo := NewTargetRepository(mock)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM professors WHERE id = \$1\)`).
		WithArgs("prof-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), domain.KindProfessor, "prof-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Exists(context.Background(), domain.EntityKind("dean"), "x")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepository_Lock(t *testing.T) {
	mock := setupMock(t)
	repo := NewTargetRepository(mock)

	mock.ExpectQuery(`SELECT id FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("course-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("course-1"))
	mock.ExpectQuery(`SELECT id FROM courses WHERE id = \$1 FOR UPDATE`).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id FROM professors WHERE id = \$1 FOR UPDATE`).
		WithArgs("prof-1").
		WillReturnError(errors.New("lock timeout"))

	require.NoError(t, repo.Lock(context.Background(), domain.KindCourse, "course-1"))
	assert.ErrorIs(t, repo.Lock(context.Background(), domain.KindCourse, "gone"), apperrors.ErrNotFound)
	err := repo.Lock(context.Background(), domain.KindProfessor, "prof-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock professor")
	assert.Error(t, repo.Lock(context.Background(), domain.EntityKind("dean"), "x"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepository_UpdateAggregate(t *testing.T) {
	mock := setupMock(t)
	repo := NewTargetRepository(mock)
	agg := domain.Aggregate{
		OverallRating: 4.5,
		TotalReviews:  2,
		Ratings:       map[string]float64{domain.DimensionDifficulty: 3.5, domain.DimensionWorkload: 0},
	}

	mock.ExpectExec(`UPDATE courses\s+SET overall_rating = \$2, total_reviews = \$3, ratings = \$4`).
		WithArgs("course-1", 4.5, 2, []byte(`{"difficulty":3.5,"workload":0}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE courses`).
		WithArgs("gone", 4.5, 2, []byte(`{"difficulty":3.5,"workload":0}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdateAggregate(context.Background(), domain.KindCourse, "course-1", agg))
	err := repo.UpdateAggregate(context.Background(), domain.KindCourse, "gone", agg)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepository_AddReview(t *testing.T) {
	mock := setupMock(t)
	repo := NewTargetRepository(mock)

	mock.ExpectExec(`UPDATE professors\s+SET review_ids = CASE`).
		WithArgs("prof-1", "rev-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE professors`).
		WithArgs("prof-x", "rev-1").
		WillReturnError(errors.New("connection refused"))

	require.NoError(t, repo.AddReview(context.Background(), domain.KindProfessor, "prof-1", "rev-1"))
	err := repo.AddReview(context.Background(), domain.KindProfessor, "prof-x", "rev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update professor")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepository_Create_DuplicateEmail(t *testing.T) {
	mock := setupMock(t)
	repo := NewProfessorRepository(mock)
	p := sampleProfessor()

	mock.ExpectExec("INSERT INTO professors").
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), &p)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestProfessorRepository_GetByID(t *testing.T) {
	mock := setupMock(t)
	repo := NewProfessorRepository(mock)
	p := sampleProfessor()

	mock.ExpectQuery("SELECT .+ FROM professors WHERE id").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(professorColumnNames).AddRow(professorRow(p)...))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Goneid", got.LastName)
	assert.Equal(t, 4.25, got.OverallRating)
	assert.Equal(t, 4, got.TotalReviews)
	assert.Equal(t, 4.5, got.Ratings[domain.DimensionClarity])
	assert.Equal(t, []string{"rev-1"}, got.ReviewIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepository_GetByID_NotFound(t *testing.T) {
	mock := setupMock(t)
	repo := NewProfessorRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM professors WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProfessorRepository_List(t *testing.T) {
	mock := setupMock(t)
	repo := NewProfessorRepository(mock)
	p := sampleProfessor()
	dept, search, minRating := "CSCE", "gon", 3.5

	mock.ExpectQuery(`WHERE department = \$1 AND \(\(first_name \|\| ' ' \|\| last_name\) ILIKE \$2 .+\) AND overall_rating >= \$3\s+ORDER BY last_name ASC`).
		WithArgs(dept, "%gon%", minRating, 20, 0).
		WillReturnRows(pgxmock.NewRows(append(professorColumnNames, "total_count")).
			AddRow(append(professorRow(p), 1)...))

	items, total, err := repo.List(context.Background(), repository.EntityFilter{
		Department: &dept,
		Search:     &search,
		MinRating:  &minRating,
		SortBy:     domain.EntitySortName,
		Page:       1,
		Limit:      20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, p.ID, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepository_Search(t *testing.T) {
	mock := setupMock(t)
	repo := NewProfessorRepository(mock)

	mock.ExpectQuery(`FROM professors\s+WHERE \(.+ILIKE \$1.+\)\s+ORDER BY overall_rating DESC`).
		WithArgs("%ada%", 10, 0).
		WillReturnRows(pgxmock.NewRows(append(professorColumnNames, "total_count")))

	items, err := repo.Search(context.Background(), "ada", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfessorRepository_Update_NotFound(t *testing.T) {
	mock := setupMock(t)
	repo := NewProfessorRepository(mock)
	p := sampleProfessor()

	mock.ExpectExec("UPDATE professors").
		WithArgs(p.ID, p.FirstName, p.LastName, p.Email, p.Title, p.Department,
			p.DepartmentName, p.Courses, p.Tags, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), &p)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepository_CreateAndGet(t *testing.T) {
	mock := setupMock(t)
	repo := NewCourseRepository(mock)
	c := sampleCourse()

	mock.ExpectExec("INSERT INTO courses").
		WithArgs(c.ID, c.Code, c.Name, c.Department, c.DepartmentName, c.Credits, c.Description,
			c.ProfessorIDs, c.Tags, 0.0, 0,
			[]byte(`{"content_quality":0,"difficulty":0,"usefulness":0,"workload":0}`),
			c.ReviewIDs, c.CreatedAt, c.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM courses WHERE id").
		WithArgs(c.ID).
		WillReturnRows(pgxmock.NewRows(courseColumnNames).AddRow(courseRow(c)...))

	require.NoError(t, repo.Create(context.Background(), &c))
	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "CSCE 2301", got.Code)
	assert.Equal(t, 3, got.Credits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepository_ListByCode(t *testing.T) {
	mock := setupMock(t)
	repo := NewCourseRepository(mock)
	c := sampleCourse()

	mock.ExpectQuery(`FROM courses\s+ORDER BY code ASC`).
		WithArgs(5, 5).
		WillReturnRows(pgxmock.NewRows(append(courseColumnNames, "total_count")).
			AddRow(append(courseRow(c), 6)...))

	items, total, err := repo.List(context.Background(), repository.EntityFilter{
		SortBy: domain.EntitySortCode,
		Page:   2,
		Limit:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepository_Delete_NotFound(t *testing.T) {
	mock := setupMock(t)
	repo := NewCourseRepository(mock)

	mock.ExpectExec("DELETE FROM courses").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), apperrors.ErrNotFound)
}

func TestUserRepository_AddReviewUpserts(t *testing.T) {
	mock := setupMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`INSERT INTO users .+ ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("user-1", "rev-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.AddReview(context.Background(), "user-1", "rev-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID(t *testing.T) {
	mock := setupMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("SELECT id, review_ids FROM users").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "review_ids"}).AddRow("user-1", []string{"rev-1", "rev-2"}))
	mock.ExpectQuery("SELECT id, review_ids FROM users").
		WithArgs("user-2").
		WillReturnError(pgx.ErrNoRows)

	u, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"rev-1", "rev-2"}, u.ReviewIDs)

	_, err = repo.GetByID(context.Background(), "user-2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
