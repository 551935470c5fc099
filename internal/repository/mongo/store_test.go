package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func toDoc(t *testing.T, v any) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func sampleReview() *domain.Review {
	return &domain.Review{
		ID:        "rev-1",
		UserID:    "user-1",
		Type:      domain.KindProfessor,
		TargetID:  "prof-1",
		Rating:    5,
		Ratings:   map[string]int{domain.DimensionClarity: 5, domain.DimensionGrading: 4},
		Comment:   "Explains every concept twice and answers email within the hour.",
		Semester:  "Spring 2026",
		Anonymous: true,
		Verified:  true,
		HelpfulBy: []string{},
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func newMT(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestReviewRepository_CreateAndGet(t *testing.T) {
	mt := newMT(t)

	mt.Run("create", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, store.Reviews().Create(context.Background(), sampleReview()))
	})

	mt.Run("duplicate id", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := store.Reviews().Create(context.Background(), sampleReview())
		assert.ErrorIs(mt, err, apperrors.ErrAlreadyExists)
	})

	mt.Run("get", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "proflens.reviews", mtest.FirstBatch, toDoc(mt.T, sampleReview())))

		got, err := store.Reviews().GetByID(context.Background(), "rev-1")
		require.NoError(mt, err)
		assert.Equal(mt, domain.KindProfessor, got.Type)
		assert.Equal(mt, 4, got.Ratings[domain.DimensionGrading])
		assert.True(mt, got.CreatedAt.Equal(testTime))
	})

	mt.Run("get missing", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "proflens.reviews", mtest.FirstBatch))

		_, err := store.Reviews().GetByID(context.Background(), "missing")
		assert.ErrorIs(mt, err, apperrors.ErrNotFound)
	})
}

func TestReviewRepository_List(t *testing.T) {
	mt := newMT(t)

	mt.Run("count then page", func(mt *mtest.T) {
		store := New(mt.DB, false)
		second := sampleReview()
		second.ID = "rev-2"
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "proflens.reviews", mtest.FirstBatch, bson.D{{Key: "n", Value: 7}}),
			mtest.CreateCursorResponse(0, "proflens.reviews", mtest.FirstBatch,
				toDoc(mt.T, sampleReview()), toDoc(mt.T, second)),
		)

		pid := "prof-1"
		items, total, err := store.Reviews().List(context.Background(), repository.ReviewFilter{
			ProfessorID: &pid,
			SortBy:      domain.ReviewSortRating,
			Page:        1,
			Limit:       2,
		})
		require.NoError(mt, err)
		assert.Equal(mt, 7, total)
		assert.Len(mt, items, 2)
	})

	mt.Run("professor and course ids never match", func(mt *mtest.T) {
		store := New(mt.DB, false)
		pid, cid := "prof-1", "course-1"

		items, total, err := store.Reviews().List(context.Background(), repository.ReviewFilter{ProfessorID: &pid, CourseID: &cid})
		require.NoError(mt, err)
		assert.Zero(mt, total)
		assert.Empty(mt, items)
	})
}

func TestReviewRepository_ToggleHelpful(t *testing.T) {
	mt := newMT(t)

	mt.Run("first vote marks", func(mt *mtest.T) {
		store := New(mt.DB, false)
		voted := sampleReview()
		voted.Helpful = 1
		voted.HelpfulBy = []string{"user-2"}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt.T, voted)}))

		got, marked, err := store.Reviews().ToggleHelpful(context.Background(), "rev-1", "user-2")
		require.NoError(mt, err)
		assert.True(mt, marked)
		assert.Equal(mt, 1, got.Helpful)
		assert.Equal(mt, []string{"user-2"}, got.HelpfulBy)
	})

	mt.Run("second vote unmarks", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt.T, sampleReview())}),
		)

		got, marked, err := store.Reviews().ToggleHelpful(context.Background(), "rev-1", "user-2")
		require.NoError(mt, err)
		assert.False(mt, marked)
		assert.Zero(mt, got.Helpful)
		assert.Empty(mt, got.HelpfulBy)
	})

	mt.Run("missing review", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, "proflens.reviews", mtest.FirstBatch),
		)

		_, _, err := store.Reviews().ToggleHelpful(context.Background(), "missing", "user-2")
		assert.ErrorIs(mt, err, apperrors.ErrNotFound)
	})
}

func TestReviewRepository_Report(t *testing.T) {
	mt := newMT(t)

	mt.Run("increments", func(mt *mtest.T) {
		store := New(mt.DB, false)
		reported := sampleReview()
		reported.Reported = true
		reported.ReportCount = 2
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt.T, reported)}))

		got, err := store.Reviews().Report(context.Background(), "rev-1")
		require.NoError(mt, err)
		assert.True(mt, got.Reported)
		assert.Equal(mt, 2, got.ReportCount)
	})

	mt.Run("missing", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := store.Reviews().Report(context.Background(), "missing")
		assert.ErrorIs(mt, err, apperrors.ErrNotFound)
	})
}

func TestReviewRepository_UpdateAndDelete(t *testing.T) {
	mt := newMT(t)

	mt.Run("update missing", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := store.Reviews().Update(context.Background(), sampleReview())
		assert.ErrorIs(mt, err, apperrors.ErrNotFound)
	})

	mt.Run("delete", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		require.NoError(mt, store.Reviews().Delete(context.Background(), "rev-1"))
		assert.ErrorIs(mt, store.Reviews().Delete(context.Background(), "rev-1"), apperrors.ErrNotFound)
	})
}

func TestTargetRepository(t *testing.T) {
	mt := newMT(t)

	mt.Run("update aggregate", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		agg := domain.EmptyAggregate(domain.KindCourse)
		require.NoError(mt, store.Targets().UpdateAggregate(context.Background(), domain.KindCourse, "course-1", agg))
		err := store.Targets().UpdateAggregate(context.Background(), domain.KindCourse, "gone", agg)
		assert.ErrorIs(mt, err, apperrors.ErrNotFound)
	})

	mt.Run("exists", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "proflens.professors", mtest.FirstBatch, bson.D{{Key: "_id", Value: "prof-1"}}),
			mtest.CreateCursorResponse(0, "proflens.professors", mtest.FirstBatch),
		)

		ok, err := store.Targets().Exists(context.Background(), domain.KindProfessor, "prof-1")
		require.NoError(mt, err)
		assert.True(mt, ok)

		ok, err = store.Targets().Exists(context.Background(), domain.KindProfessor, "prof-2")
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("lock", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		require.NoError(mt, store.Targets().Lock(context.Background(), domain.KindCourse, "course-1"))
		err := store.Targets().Lock(context.Background(), domain.KindCourse, "gone")
		assert.ErrorIs(mt, err, apperrors.ErrNotFound)
	})

	mt.Run("unknown kind", func(mt *mtest.T) {
		store := New(mt.DB, false)
		assert.Error(mt, store.Targets().AddReview(context.Background(), domain.EntityKind("dean"), "x", "rev-1"))
	})
}

func TestProfessorRepository(t *testing.T) {
	mt := newMT(t)

	prof := &domain.Professor{
		ID:             "prof-1",
		FirstName:      "Grace",
		LastName:       "Hopper",
		Email:          "hopper@uni.edu",
		Title:          domain.TitleProfessor,
		Department:     "CSCE",
		DepartmentName: "Computer Science",
		Aggregate:      domain.Aggregate{OverallRating: 4.5, TotalReviews: 2, Ratings: map[string]float64{domain.DimensionClarity: 4.5}},
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}

	mt.Run("get flattens aggregate", func(mt *mtest.T) {
		store := New(mt.DB, false)
		doc := toDoc(mt.T, prof)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "proflens.professors", mtest.FirstBatch, doc))

		got, err := store.Professors().GetByID(context.Background(), "prof-1")
		require.NoError(mt, err)
		assert.Equal(mt, 4.5, got.OverallRating)
		assert.Equal(mt, 2, got.TotalReviews)
		assert.NotNil(mt, got.Courses)
		assert.NotNil(mt, got.ReviewIDs)
	})

	mt.Run("duplicate email", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Code: 11000, Message: "duplicate key error"}))

		err := store.Professors().Create(context.Background(), prof)
		assert.ErrorIs(mt, err, apperrors.ErrAlreadyExists)
	})

	mt.Run("search", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "proflens.professors", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
			mtest.CreateCursorResponse(0, "proflens.professors", mtest.FirstBatch, toDoc(mt.T, prof)),
		)

		items, err := store.Professors().Search(context.Background(), "hop", 10)
		require.NoError(mt, err)
		require.Len(mt, items, 1)
		assert.Equal(mt, "Hopper", items[0].LastName)
	})
}

func TestCourseRepository(t *testing.T) {
	mt := newMT(t)

	mt.Run("delete missing", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		assert.ErrorIs(mt, store.Courses().Delete(context.Background(), "missing"), apperrors.ErrNotFound)
	})

	mt.Run("update", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		c := &domain.Course{ID: "course-1", Code: "CSCE 2301", Name: "Digital Design", Credits: 3}
		require.NoError(mt, store.Courses().Update(context.Background(), c))
	})
}

func TestUserRepository(t *testing.T) {
	mt := newMT(t)

	mt.Run("add review upserts", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "user-1"}}}},
		))

		require.NoError(mt, store.Users().AddReview(context.Background(), "user-1", "rev-1"))
	})

	mt.Run("get", func(mt *mtest.T) {
		store := New(mt.DB, false)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "proflens.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "user-1"}, {Key: "review_ids", Value: bson.A{"rev-1"}}}))

		u, err := store.Users().GetByID(context.Background(), "user-1")
		require.NoError(mt, err)
		assert.Equal(mt, []string{"rev-1"}, u.ReviewIDs)
	})
}

func TestStore_InTxWithoutTransactions(t *testing.T) {
	mt := newMT(t)

	mt.Run("runs fn directly", func(mt *mtest.T) {
		store := New(mt.DB, false)
		called := false
		err := store.InTx(context.Background(), func(tx repository.Store) error {
			called = true
			assert.Same(mt, store, tx)
			return nil
		})
		require.NoError(mt, err)
		assert.True(mt, called)
	})
}
