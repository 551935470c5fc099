package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/rating"
	"github.com/utafrali/proflens/internal/repository/memory"
)

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishReviewCreated(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockPublisher) PublishReviewUpdated(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockPublisher) PublishReviewDeleted(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockPublisher) PublishRatingsRecomputed(ctx context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error {
	args := m.Called(ctx, kind, id, agg)
	return args.Error(0)
}

func (m *mockPublisher) PublishCatalogChanged(ctx context.Context, action string, kind domain.EntityKind, id string) error {
	args := m.Called(ctx, action, kind, id)
	return args.Error(0)
}

// allowAll accepts every publish call.
func (m *mockPublisher) allowAll() *mockPublisher {
	for _, method := range []string{"PublishReviewCreated", "PublishReviewUpdated", "PublishReviewDeleted"} {
		m.On(method, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	m.On("PublishRatingsRecomputed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishCatalogChanged", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// --- Mock Cache ---

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, kind domain.EntityKind, id string, dst any) (bool, error) {
	args := m.Called(ctx, kind, id, dst)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, kind domain.EntityKind, id string, v any) error {
	args := m.Called(ctx, kind, id, v)
	return args.Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, kind domain.EntityKind, ids ...string) error {
	args := m.Called(ctx, kind, ids)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type reviewFixture struct {
	svc    *ReviewService
	store  *memory.Store
	events *mockPublisher
}

func newReviewFixture(t *testing.T, cache EntityCache) *reviewFixture {
	t.Helper()
	store := memory.New()
	events := new(mockPublisher)
	logger := newTestLogger()
	agg := rating.NewAggregator(store, rating.PolicyExclude, logger)
	return &reviewFixture{
		svc:    NewReviewService(store, agg, cache, events, logger),
		store:  store,
		events: events,
	}
}

func (f *reviewFixture) seedCourse(t *testing.T) *domain.Course {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Course{
		ID:             uuid.New().String(),
		Code:           "CSCE 2301",
		Name:           "Digital Design I",
		Department:     "CSCE",
		DepartmentName: "Computer Science and Engineering",
		Credits:        3,
		Description:    "Combinational and sequential logic.",
		Aggregate:      domain.EmptyAggregate(domain.KindCourse),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.Normalize()
	require.NoError(t, f.store.Courses().Create(context.Background(), c))
	return c
}

func (f *reviewFixture) seedProfessor(t *testing.T) *domain.Professor {
	t.Helper()
	now := time.Now().UTC()
	p := &domain.Professor{
		ID:             uuid.New().String(),
		FirstName:      "Amr",
		LastName:       "Goneid",
		Email:          uuid.New().String()[:8] + "@aucegypt.edu",
		Department:     "CSCE",
		DepartmentName: "Computer Science and Engineering",
		Aggregate:      domain.EmptyAggregate(domain.KindProfessor),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.Normalize()
	require.NoError(t, f.store.Professors().Create(context.Background(), p))
	return p
}

// scores rates every dimension of kind with v.
func scores(kind domain.EntityKind, v int) map[string]int {
	out := map[string]int{}
	for _, d := range kind.Dimensions() {
		out[d] = v
	}
	return out
}

func longComment() string {
	return strings.Repeat("Clear lectures and fair exams. ", 3)
}

func courseReview(userID, courseID string, overall, dims int) CreateReviewInput {
	return CreateReviewInput{
		UserID:   userID,
		Type:     "course",
		CourseID: courseID,
		Rating:   overall,
		Ratings:  scores(domain.KindCourse, dims),
		Comment:  longComment(),
	}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }
