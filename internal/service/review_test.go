package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

var (
	author   = domain.Caller{UserID: "u-author", Role: domain.RoleStudent}
	stranger = domain.Caller{UserID: "u-stranger", Role: domain.RoleStudent}
	admin    = domain.Caller{UserID: "u-admin", Role: domain.RoleAdmin}
)

func assertAggregate(t *testing.T, f *reviewFixture, courseID string, overall, dim float64, total int) {
	t.Helper()
	c, err := f.store.Courses().GetByID(context.Background(), courseID)
	require.NoError(t, err)
	assert.InDelta(t, overall, c.OverallRating, 1e-9)
	assert.Equal(t, total, c.TotalReviews)
	for _, d := range domain.KindCourse.Dimensions() {
		assert.InDelta(t, dim, c.Ratings[d], 1e-9, d)
	}
}

func courseScores(difficulty, workload, usefulness, quality int) map[string]int {
	return map[string]int{
		domain.DimensionDifficulty:     difficulty,
		domain.DimensionWorkload:       workload,
		domain.DimensionUsefulness:     usefulness,
		domain.DimensionContentQuality: quality,
	}
}

func assertCourseRatings(t *testing.T, f *reviewFixture, courseID string, total int, overall float64, want map[string]float64) {
	t.Helper()
	c, err := f.store.Courses().GetByID(context.Background(), courseID)
	require.NoError(t, err)
	assert.Equal(t, total, c.TotalReviews)
	assert.InDelta(t, overall, c.OverallRating, 1e-9)
	for d, v := range want {
		assert.InDelta(t, v, c.Ratings[d], 1e-9, d)
	}
}

func TestReviewService_CourseScenario(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	inputA := courseReview("u-a", course.ID, 5, 0)
	inputA.Ratings = courseScores(4, 3, 5, 4)
	a, err := f.svc.Create(ctx, inputA)
	require.NoError(t, err)
	assertCourseRatings(t, f, course.ID, 1, 5, map[string]float64{
		domain.DimensionDifficulty:     4,
		domain.DimensionWorkload:       3,
		domain.DimensionUsefulness:     5,
		domain.DimensionContentQuality: 4,
	})

	inputB := courseReview("u-b", course.ID, 3, 0)
	inputB.Ratings = courseScores(2, 3, 3, 3)
	_, err = f.svc.Create(ctx, inputB)
	require.NoError(t, err)
	assertCourseRatings(t, f, course.ID, 2, 4, map[string]float64{
		domain.DimensionDifficulty:     3,
		domain.DimensionWorkload:       3,
		domain.DimensionUsefulness:     4,
		domain.DimensionContentQuality: 3.5,
	})

	require.NoError(t, f.svc.Delete(ctx, a.ID, domain.Caller{UserID: "u-a", Role: domain.RoleStudent}))
	assertCourseRatings(t, f, course.ID, 1, 3, map[string]float64{
		domain.DimensionDifficulty:     2,
		domain.DimensionWorkload:       3,
		domain.DimensionUsefulness:     3,
		domain.DimensionContentQuality: 3,
	})

	c, err := f.store.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
	assert.NotContains(t, c.ReviewIDs, a.ID)
	u, err := f.store.Users().GetByID(ctx, "u-a")
	require.NoError(t, err)
	assert.Empty(t, u.ReviewIDs)
}

func TestReviewService_Create_Defaults(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	f.svc.now = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	course := f.seedCourse(t)

	review, err := f.svc.Create(context.Background(), courseReview("u-1", course.ID, 4, 4))
	require.NoError(t, err)

	assert.NotEmpty(t, review.ID)
	assert.Equal(t, domain.KindCourse, review.Type)
	assert.Equal(t, course.ID, review.TargetID)
	assert.Equal(t, "Fall 2026", review.Semester)
	assert.True(t, review.Anonymous)
	assert.True(t, review.Verified)
	assert.Zero(t, review.Helpful)
	assert.Empty(t, review.HelpfulBy)

	u, err := f.store.Users().GetByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{review.ID}, u.ReviewIDs)

	f.events.AssertCalled(t, "PublishReviewCreated", mock.Anything, mock.Anything)
	f.events.AssertCalled(t, "PublishRatingsRecomputed", mock.Anything, domain.KindCourse, course.ID, mock.Anything)
}

func TestReviewService_Create_ProfessorReview(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	prof := f.seedProfessor(t)

	_, err := f.svc.Create(context.Background(), CreateReviewInput{
		UserID:      "u-1",
		Type:        "professor",
		ProfessorID: prof.ID,
		Rating:      3,
		Ratings:     map[string]int{domain.DimensionClarity: 5, domain.DimensionGrading: 1},
		Comment:     longComment(),
		Anonymous:   boolPtr(false),
	})
	require.NoError(t, err)

	p, err := f.store.Professors().GetByID(context.Background(), prof.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.OverallRating)
	assert.Equal(t, 5.0, p.Ratings[domain.DimensionClarity])
	assert.Equal(t, 1.0, p.Ratings[domain.DimensionGrading])
	assert.Zero(t, p.Ratings[domain.DimensionWorkload], "unrated dimension stays zero")
}

func TestReviewService_Create_Validation(t *testing.T) {
	f := newReviewFixture(t, nil)
	course := f.seedCourse(t)

	tests := []struct {
		name      string
		mutate    func(in *CreateReviewInput)
		wantField string
	}{
		{name: "unknown type", mutate: func(in *CreateReviewInput) { in.Type = "dean" }, wantField: "type"},
		{name: "missing course id", mutate: func(in *CreateReviewInput) { in.CourseID = "" }, wantField: "course_id"},
		{name: "professor id on course review", mutate: func(in *CreateReviewInput) { in.ProfessorID = "p-1" }, wantField: "professor_id"},
		{name: "professor type with course id", mutate: func(in *CreateReviewInput) { in.Type = "professor" }, wantField: "course_id"},
		{name: "rating out of range", mutate: func(in *CreateReviewInput) { in.Rating = 6 }, wantField: "rating"},
		{name: "dimension out of range", mutate: func(in *CreateReviewInput) { in.Ratings[domain.DimensionWorkload] = 9 }, wantField: "ratings.workload"},
		{name: "dimension of other kind", mutate: func(in *CreateReviewInput) { in.Ratings[domain.DimensionClarity] = 4 }, wantField: "ratings.clarity"},
		{name: "comment too short", mutate: func(in *CreateReviewInput) { in.Comment = "too short" }, wantField: "comment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := courseReview("u-1", course.ID, 4, 4)
			tt.mutate(&in)

			_, err := f.svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
			assert.Contains(t, appErr.Fields, tt.wantField)
		})
	}

	reviews, total, err := f.store.Reviews().List(context.Background(), repository.ReviewFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, reviews)
}

func TestReviewService_Create_TargetNotFound(t *testing.T) {
	f := newReviewFixture(t, nil)

	_, err := f.svc.Create(context.Background(), courseReview("u-1", "00000000-0000-0000-0000-000000000000", 4, 4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.store.Users().GetByID(context.Background(), "u-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "author projection must not be created")
	f.events.AssertNotCalled(t, "PublishReviewCreated", mock.Anything, mock.Anything)
}

func TestReviewService_Create_Unauthenticated(t *testing.T) {
	f := newReviewFixture(t, nil)
	course := f.seedCourse(t)

	_, err := f.svc.Create(context.Background(), courseReview("", course.ID, 4, 4))
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestReviewService_Create_PublishFailureDoesNotFail(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.On("PublishReviewCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.events.On("PublishRatingsRecomputed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	course := f.seedCourse(t)

	review, err := f.svc.Create(context.Background(), courseReview("u-1", course.ID, 4, 4))
	require.NoError(t, err)
	assert.NotEmpty(t, review.ID)
	assertAggregate(t, f, course.ID, 4, 4, 1)
}

func TestReviewService_Update(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	review, err := f.svc.Create(ctx, courseReview(author.UserID, course.ID, 5, 4))
	require.NoError(t, err)

	t.Run("stranger is forbidden", func(t *testing.T) {
		_, err := f.svc.Update(ctx, review.ID, stranger, UpdateReviewInput{Rating: intPtr(1)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrForbidden))

		stored, err := f.store.Reviews().GetByID(ctx, review.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, stored.Rating)
		assertAggregate(t, f, course.ID, 5, 4, 1)
	})

	t.Run("missing review", func(t *testing.T) {
		_, err := f.svc.Update(ctx, "nope", author, UpdateReviewInput{Rating: intPtr(1)})
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("invalid patch", func(t *testing.T) {
		_, err := f.svc.Update(ctx, review.ID, author, UpdateReviewInput{Comment: strPtr("short")})
		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Fields, "comment")
	})

	t.Run("author changes scores", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, review.ID, author, UpdateReviewInput{
			Rating:  intPtr(3),
			Ratings: scores(domain.KindCourse, 2),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, updated.Rating)
		assert.Equal(t, course.ID, updated.TargetID)
		assertAggregate(t, f, course.ID, 3, 2, 1)
	})

	t.Run("admin may edit", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, review.ID, admin, UpdateReviewInput{Rating: intPtr(4)})
		require.NoError(t, err)
		assert.Equal(t, 4, updated.Rating)
		assert.Equal(t, author.UserID, updated.UserID)
		assertAggregate(t, f, course.ID, 4, 2, 1)
	})
}

func TestReviewService_Update_CommentOnlySkipsRecompute(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	review, err := f.svc.Create(ctx, courseReview(author.UserID, course.ID, 5, 4))
	require.NoError(t, err)

	events := new(mockPublisher)
	events.On("PublishReviewUpdated", mock.Anything, mock.Anything).Return(nil)
	f.svc.effects.events = events

	newComment := longComment() + " Would take again."
	updated, err := f.svc.Update(ctx, review.ID, author, UpdateReviewInput{
		Comment:   &newComment,
		Semester:  strPtr("Spring 2026"),
		Anonymous: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, newComment, updated.Comment)
	assert.Equal(t, "Spring 2026", updated.Semester)
	assert.False(t, updated.Anonymous)

	events.AssertExpectations(t)
	events.AssertNotCalled(t, "PublishRatingsRecomputed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReviewService_Delete(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	review, err := f.svc.Create(ctx, courseReview(author.UserID, course.ID, 5, 4))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, review.ID, stranger)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
	_, err = f.store.Reviews().GetByID(ctx, review.ID)
	require.NoError(t, err, "forbidden delete must not remove the review")

	require.NoError(t, f.svc.Delete(ctx, review.ID, author))
	_, err = f.store.Reviews().GetByID(ctx, review.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	c, err := f.store.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Zero(t, c.TotalReviews)
	assert.Zero(t, c.OverallRating)
	for _, d := range domain.KindCourse.Dimensions() {
		assert.Zero(t, c.Ratings[d])
	}

	err = f.svc.Delete(ctx, review.ID, author)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestReviewService_MarkHelpful(t *testing.T) {
	cache := new(mockCache)
	cache.On("Invalidate", mock.Anything, domain.KindCourse, mock.Anything).Return(nil)
	f := newReviewFixture(t, cache)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	review, err := f.svc.Create(ctx, courseReview(author.UserID, course.ID, 5, 4))
	require.NoError(t, err)

	res, err := f.svc.MarkHelpful(ctx, review.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, domain.HelpfulResult{Helpful: 1, Marked: true}, *res)

	res, err = f.svc.MarkHelpful(ctx, review.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.HelpfulResult{Helpful: 2, Marked: true}, *res)

	res, err = f.svc.MarkHelpful(ctx, review.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, domain.HelpfulResult{Helpful: 1, Marked: false}, *res)

	stored, err := f.store.Reviews().GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{admin.UserID}, stored.HelpfulBy)
	assertAggregate(t, f, course.ID, 5, 4, 1)

	_, err = f.svc.MarkHelpful(ctx, review.ID, domain.Caller{})
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = f.svc.MarkHelpful(ctx, "nope", stranger)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	cache.AssertCalled(t, "Invalidate", mock.Anything, domain.KindCourse, []string{course.ID})
}

func TestReviewService_MarkHelpful_TwiceRestoresState(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	review, err := f.svc.Create(ctx, courseReview(author.UserID, course.ID, 5, 4))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.MarkHelpful(ctx, review.ID, stranger)
		require.NoError(t, err)
		_, err = f.svc.MarkHelpful(ctx, review.ID, stranger)
		require.NoError(t, err)
	}

	stored, err := f.store.Reviews().GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Helpful)
	assert.Empty(t, stored.HelpfulBy)
}

func TestReviewService_Report(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	review, err := f.svc.Create(ctx, courseReview(author.UserID, course.ID, 5, 4))
	require.NoError(t, err)

	res, err := f.svc.Report(ctx, review.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReportCount)

	res, err = f.svc.Report(ctx, review.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReportCount, "reports are not deduplicated")

	stored, err := f.store.Reviews().GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reported)
	assertAggregate(t, f, course.ID, 5, 4, 1)
}

func TestReviewService_List(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)
	prof := f.seedProfessor(t)

	for i, overall := range []int{3, 5, 1} {
		_, err := f.svc.Create(ctx, courseReview("u-"+string(rune('a'+i)), course.ID, overall, 3))
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, CreateReviewInput{
		UserID: "u-a", Type: "professor", ProfessorID: prof.ID, Rating: 4, Comment: longComment(),
	})
	require.NoError(t, err)

	t.Run("by course sorted by rating", func(t *testing.T) {
		res, err := f.svc.List(ctx, repository.ReviewFilter{CourseID: &course.ID, SortBy: domain.ReviewSortRating})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Total)
		require.Len(t, res.Items, 3)
		assert.Equal(t, 5, res.Items[0].Rating)
		assert.Equal(t, 1, res.Items[2].Rating)
		assert.Equal(t, 20, res.Limit)
	})

	t.Run("pagination is clamped", func(t *testing.T) {
		res, err := f.svc.List(ctx, repository.ReviewFilter{Page: 2, Limit: 500})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Total)
		assert.Equal(t, 100, res.Limit)
		assert.Empty(t, res.Items)
		assert.True(t, res.HasPrev)
	})

	t.Run("by type", func(t *testing.T) {
		kind := domain.KindProfessor
		res, err := f.svc.List(ctx, repository.ReviewFilter{Type: &kind})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
	})

	t.Run("invalid sort", func(t *testing.T) {
		_, err := f.svc.List(ctx, repository.ReviewFilter{SortBy: "created_at"})
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	})

	t.Run("by user", func(t *testing.T) {
		res, err := f.svc.ListByUser(ctx, domain.Caller{UserID: "u-a"}, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)

		_, err = f.svc.ListByUser(ctx, domain.Caller{}, 1, 10)
		assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	})
}

func TestReviewService_RecomputeRatings(t *testing.T) {
	f := newReviewFixture(t, nil)
	f.events.allowAll()
	ctx := context.Background()
	course := f.seedCourse(t)

	_, err := f.svc.Create(ctx, courseReview("u-1", course.ID, 4, 2))
	require.NoError(t, err)

	stale := domain.Aggregate{OverallRating: 1, TotalReviews: 9, Ratings: map[string]float64{}}
	require.NoError(t, f.store.Targets().UpdateAggregate(ctx, domain.KindCourse, course.ID, stale))

	agg, err := f.svc.RecomputeRatings(ctx, domain.KindCourse, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, agg.OverallRating)
	assert.Equal(t, 1, agg.TotalReviews)
	assertAggregate(t, f, course.ID, 4, 2, 1)

	_, err = f.svc.RecomputeRatings(ctx, domain.KindCourse, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
