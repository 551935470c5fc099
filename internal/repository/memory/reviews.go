package memory

import (
	"context"
	"sort"
	"time"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

type reviewRepo struct{ s *Store }

func (r *reviewRepo) Create(_ context.Context, review *domain.Review) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.reviews[review.ID]; ok {
			return apperrors.AlreadyExists("review", "id", review.ID)
		}
		st.reviews[review.ID] = review.Clone()
		return nil
	})
}

func (r *reviewRepo) GetByID(_ context.Context, id string) (*domain.Review, error) {
	var out *domain.Review
	err := r.s.with(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok {
			return apperrors.NotFound("review", id)
		}
		out = rv.Clone()
		return nil
	})
	return out, err
}

func (r *reviewRepo) List(_ context.Context, f repository.ReviewFilter) ([]domain.Review, int, error) {
	var (
		out   []domain.Review
		total int
	)
	err := r.s.with(func(st *state) error {
		matched := make([]domain.Review, 0)
		for _, rv := range st.reviews {
			if matchesReview(rv, f) {
				matched = append(matched, *rv.Clone())
			}
		}
		sortReviews(matched, f.SortBy)
		total = len(matched)
		out = page(matched, f.Page, f.Limit)
		return nil
	})
	return out, total, err
}

func matchesReview(rv *domain.Review, f repository.ReviewFilter) bool {
	if f.Type != nil && rv.Type != *f.Type {
		return false
	}
	if f.ProfessorID != nil && (rv.Type != domain.KindProfessor || rv.TargetID != *f.ProfessorID) {
		return false
	}
	if f.CourseID != nil && (rv.Type != domain.KindCourse || rv.TargetID != *f.CourseID) {
		return false
	}
	if f.UserID != nil && rv.UserID != *f.UserID {
		return false
	}
	return true
}

func sortReviews(reviews []domain.Review, sortBy string) {
	sort.SliceStable(reviews, func(i, j int) bool {
		a, b := reviews[i], reviews[j]
		switch sortBy {
		case domain.ReviewSortRating:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
		case domain.ReviewSortHelpful:
			if a.Helpful != b.Helpful {
				return a.Helpful > b.Helpful
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (r *reviewRepo) ListByTarget(_ context.Context, kind domain.EntityKind, targetID string) ([]domain.Review, error) {
	var out []domain.Review
	err := r.s.with(func(st *state) error {
		for _, rv := range st.reviews {
			if rv.Type == kind && rv.TargetID == targetID {
				out = append(out, *rv.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (r *reviewRepo) ListRecentByTarget(ctx context.Context, kind domain.EntityKind, targetID string, limit int) ([]domain.Review, error) {
	all, err := r.ListByTarget(ctx, kind, targetID)
	if err != nil {
		return nil, err
	}
	sortReviews(all, domain.ReviewSortCreatedAt)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []domain.Review{}
	}
	return all, nil
}

func (r *reviewRepo) Update(_ context.Context, review *domain.Review) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.reviews[review.ID]
		if !ok {
			return apperrors.NotFound("review", review.ID)
		}
		next := cur.Clone()
		next.Rating = review.Rating
		next.Ratings = review.Clone().Ratings
		next.Comment = review.Comment
		next.Semester = review.Semester
		next.CourseTaken = review.CourseTaken
		next.Anonymous = review.Anonymous
		next.UpdatedAt = review.UpdatedAt
		st.reviews[review.ID] = next
		return nil
	})
}

func (r *reviewRepo) Delete(_ context.Context, id string) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.reviews[id]; !ok {
			return apperrors.NotFound("review", id)
		}
		delete(st.reviews, id)
		return nil
	})
}

func (r *reviewRepo) ToggleHelpful(_ context.Context, id, userID string) (*domain.Review, bool, error) {
	var (
		out    *domain.Review
		marked bool
	)
	err := r.s.with(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok {
			return apperrors.NotFound("review", id)
		}
		if rv.HasVoted(userID) {
			rv.HelpfulBy = removeString(rv.HelpfulBy, userID)
			rv.Helpful = max(rv.Helpful-1, 0)
		} else {
			rv.HelpfulBy = append(rv.HelpfulBy, userID)
			rv.Helpful++
			marked = true
		}
		rv.UpdatedAt = time.Now().UTC()
		out = rv.Clone()
		return nil
	})
	return out, marked, err
}

func (r *reviewRepo) Report(_ context.Context, id string) (*domain.Review, error) {
	var out *domain.Review
	err := r.s.with(func(st *state) error {
		rv, ok := st.reviews[id]
		if !ok {
			return apperrors.NotFound("review", id)
		}
		rv.Reported = true
		rv.ReportCount++
		rv.UpdatedAt = time.Now().UTC()
		out = rv.Clone()
		return nil
	})
	return out, err
}
