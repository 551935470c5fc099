package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/internal/repository/memory"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

func validProfessorInput() ProfessorInput {
	return ProfessorInput{
		FirstName:      strPtr("Noha"),
		LastName:       strPtr("Ghatwary"),
		Email:          strPtr("NGhatwary@aucegypt.edu"),
		Department:     strPtr("CSCE"),
		DepartmentName: strPtr("Computer Science and Engineering"),
		Courses:        []string{"CSCE 1001"},
	}
}

func validCourseInput(code string) CourseInput {
	return CourseInput{
		Code:           strPtr(code),
		Name:           strPtr("Fundamentals of Computing"),
		Department:     strPtr("CSCE"),
		DepartmentName: strPtr("Computer Science and Engineering"),
		Credits:        intPtr(3),
		Description:    strPtr("An introduction to programming."),
	}
}

func TestProfessorService_Create(t *testing.T) {
	events := new(mockPublisher)
	events.On("PublishCatalogChanged", mock.Anything, "created", domain.KindProfessor, mock.AnythingOfType("string")).Return(nil)
	svc := NewProfessorService(memory.New(), nil, events, newTestLogger())

	p, err := svc.Create(context.Background(), validProfessorInput())
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "nghatwary@aucegypt.edu", p.Email)
	assert.Equal(t, domain.TitleProfessor, p.Title)
	assert.Zero(t, p.TotalReviews)
	assert.Len(t, p.Ratings, len(domain.KindProfessor.Dimensions()))
	events.AssertExpectations(t)

	_, err = svc.Create(context.Background(), validProfessorInput())
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
}

func TestProfessorService_Create_Validation(t *testing.T) {
	svc := NewProfessorService(memory.New(), nil, new(mockPublisher), newTestLogger())

	in := validProfessorInput()
	in.Email = strPtr("not-an-email")
	in.Title = strPtr("Dean")

	_, err := svc.Create(context.Background(), in)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "title")
}

func TestProfessorService_Get_UsesCache(t *testing.T) {
	store := memory.New()
	cache := new(mockCache)
	events := new(mockPublisher).allowAll()
	svc := NewProfessorService(store, cache, events, newTestLogger())
	ctx := context.Background()

	p, err := svc.Create(ctx, validProfessorInput())
	require.NoError(t, err)

	t.Run("miss loads from store and fills cache", func(t *testing.T) {
		cache.On("Get", ctx, domain.KindProfessor, p.ID, mock.Anything).Return(false, nil).Once()
		cache.On("Set", ctx, domain.KindProfessor, p.ID, mock.AnythingOfType("*domain.ProfessorDetail")).Return(nil).Once()

		detail, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, detail.ID)
		assert.NotNil(t, detail.Reviews)
	})

	t.Run("hit skips the store", func(t *testing.T) {
		cache.On("Get", ctx, domain.KindProfessor, p.ID, mock.Anything).
			Run(func(args mock.Arguments) {
				dst := args.Get(3).(*domain.ProfessorDetail)
				dst.ID = p.ID
				dst.FirstName = "Cached"
			}).
			Return(true, nil).Once()

		detail, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Cached", detail.FirstName)
	})

	t.Run("cache failure falls back to store", func(t *testing.T) {
		cache.On("Get", ctx, domain.KindProfessor, p.ID, mock.Anything).Return(false, errors.New("redis down")).Once()
		cache.On("Set", ctx, domain.KindProfessor, p.ID, mock.Anything).Return(errors.New("redis down")).Once()

		detail, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Noha", detail.FirstName)
	})

	cache.AssertExpectations(t)
}

func TestProfessorService_Get_NotFound(t *testing.T) {
	svc := NewProfessorService(memory.New(), nil, new(mockPublisher), newTestLogger())
	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestProfessorService_Get_RecentReviews(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	prof := f.seedProfessor(t)

	for i := 0; i < domain.RecentReviewsLimit+2; i++ {
		_, err := f.svc.Create(ctx, CreateReviewInput{
			UserID: "u-1", Type: "professor", ProfessorID: prof.ID, Rating: 4, Comment: longComment(),
		})
		require.NoError(t, err)
	}

	svc := NewProfessorService(f.store, nil, f.events, newTestLogger())
	detail, err := svc.Get(ctx, prof.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Reviews, domain.RecentReviewsLimit)
	assert.Equal(t, domain.RecentReviewsLimit+2, detail.TotalReviews)
}

func TestProfessorService_Update_KeepsAggregate(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	prof := f.seedProfessor(t)
	_, err := f.svc.Create(ctx, CreateReviewInput{
		UserID: "u-1", Type: "professor", ProfessorID: prof.ID, Rating: 2, Comment: longComment(),
	})
	require.NoError(t, err)

	cache := new(mockCache)
	cache.On("Invalidate", ctx, domain.KindProfessor, []string{prof.ID}).Return(nil)
	svc := NewProfessorService(f.store, cache, f.events, newTestLogger())

	updated, err := svc.Update(ctx, prof.ID, ProfessorInput{Title: strPtr(domain.TitleLecturer)})
	require.NoError(t, err)
	assert.Equal(t, domain.TitleLecturer, updated.Title)
	assert.Equal(t, "Amr", updated.FirstName)

	stored, err := f.store.Professors().GetByID(ctx, prof.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.OverallRating)
	assert.Equal(t, 1, stored.TotalReviews)
	cache.AssertExpectations(t)

	_, err = svc.Update(ctx, "missing", ProfessorInput{})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestProfessorService_Delete(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	svc := NewProfessorService(f.store, nil, f.events, newTestLogger())

	reviewed := f.seedProfessor(t)
	_, err := f.svc.Create(ctx, CreateReviewInput{
		UserID: "u-1", Type: "professor", ProfessorID: reviewed.ID, Rating: 2, Comment: longComment(),
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, reviewed.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	empty := f.seedProfessor(t)
	require.NoError(t, svc.Delete(ctx, empty.ID))
	_, err = f.store.Professors().GetByID(ctx, empty.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = svc.Delete(ctx, empty.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestProfessorService_ListAndSearch(t *testing.T) {
	svc := NewProfessorService(memory.New(), nil, new(mockPublisher).allowAll(), newTestLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, validProfessorInput())
	require.NoError(t, err)
	other := validProfessorInput()
	other.FirstName, other.LastName, other.Email = strPtr("Sherif"), strPtr("Aly"), strPtr("saly@aucegypt.edu")
	other.Department = strPtr("MENG")
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)

	dept := "MENG"
	res, err := svc.List(ctx, repository.EntityFilter{Department: &dept})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "Sherif", res.Items[0].FirstName)

	res, err = svc.List(ctx, repository.EntityFilter{SortBy: domain.EntitySortName})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Aly", res.Items[0].LastName)

	_, err = svc.List(ctx, repository.EntityFilter{SortBy: domain.EntitySortCode})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	found, err := svc.Search(ctx, "ghat")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Noha", found[0].FirstName)

	found, err = svc.Search(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)

	_, err = svc.Search(ctx, " a ")
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Fields, "q")
}

func TestCourseService_Lifecycle(t *testing.T) {
	store := memory.New()
	events := new(mockPublisher).allowAll()
	svc := NewCourseService(store, nil, events, newTestLogger())
	ctx := context.Background()

	c, err := svc.Create(ctx, validCourseInput("csce 1001"))
	require.NoError(t, err)
	assert.Equal(t, "CSCE 1001", c.Code)
	assert.Len(t, c.Ratings, len(domain.KindCourse.Dimensions()))

	_, err = svc.Create(ctx, validCourseInput("CSCE 1001"))
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))

	bad := validCourseInput("CSCE 9999")
	bad.Credits = intPtr(9)
	_, err = svc.Create(ctx, bad)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Fields, "credits")

	updated, err := svc.Update(ctx, c.ID, CourseInput{Name: strPtr("Computing Fundamentals")})
	require.NoError(t, err)
	assert.Equal(t, "Computing Fundamentals", updated.Name)
	assert.Equal(t, 3, updated.Credits)

	detail, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Computing Fundamentals", detail.Name)
	assert.Empty(t, detail.Reviews)

	found, err := svc.Search(ctx, "1001")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	res, err := svc.List(ctx, repository.EntityFilter{SortBy: domain.EntitySortCode})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	require.NoError(t, svc.Delete(ctx, c.ID))
	events.AssertCalled(t, "PublishCatalogChanged", mock.Anything, "deleted", domain.KindCourse, c.ID)
}

func TestCourseService_DeleteWithReviews(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)
	_, err := f.svc.Create(ctx, courseReview("u-1", course.ID, 4, 4))
	require.NoError(t, err)

	svc := NewCourseService(f.store, nil, f.events, newTestLogger())
	err = svc.Delete(ctx, course.ID)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	_, err = f.store.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
}
