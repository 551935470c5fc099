package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

type targetRepo struct{ s *Store }

// entityRefs returns pointers to the mutable fields shared by both kinds.
func entityRefs(st *state, kind domain.EntityKind, id string) (*domain.Aggregate, *[]string, error) {
	switch kind {
	case domain.KindProfessor:
		if p, ok := st.professors[id]; ok {
			return &p.Aggregate, &p.ReviewIDs, nil
		}
	case domain.KindCourse:
		if c, ok := st.courses[id]; ok {
			return &c.Aggregate, &c.ReviewIDs, nil
		}
	default:
		return nil, nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil, nil, apperrors.NotFound(kind.String(), id)
}

func (r *targetRepo) Exists(_ context.Context, kind domain.EntityKind, id string) (bool, error) {
	var found bool
	err := r.s.with(func(st *state) error {
		_, _, err := entityRefs(st, kind, id)
		found = err == nil
		return nil
	})
	return found, err
}

func (r *targetRepo) AddReview(_ context.Context, kind domain.EntityKind, id, reviewID string) error {
	return r.s.with(func(st *state) error {
		_, refs, err := entityRefs(st, kind, id)
		if err != nil {
			return err
		}
		if !containsString(*refs, reviewID) {
			*refs = append(*refs, reviewID)
		}
		return nil
	})
}

func (r *targetRepo) RemoveReview(_ context.Context, kind domain.EntityKind, id, reviewID string) error {
	return r.s.with(func(st *state) error {
		_, refs, err := entityRefs(st, kind, id)
		if err != nil {
			return err
		}
		*refs = removeString(*refs, reviewID)
		return nil
	})
}

// Lock only checks existence; InTx already holds the store lock.
func (r *targetRepo) Lock(_ context.Context, kind domain.EntityKind, id string) error {
	return r.s.with(func(st *state) error {
		_, _, err := entityRefs(st, kind, id)
		return err
	})
}

func (r *targetRepo) UpdateAggregate(_ context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error {
	return r.s.with(func(st *state) error {
		cur, _, err := entityRefs(st, kind, id)
		if err != nil {
			return err
		}
		*cur = domain.Aggregate{
			OverallRating: agg.OverallRating,
			TotalReviews:  agg.TotalReviews,
			Ratings:       cloneRatings(agg.Ratings),
		}
		return nil
	})
}

type professorRepo struct{ s *Store }

func (r *professorRepo) Create(_ context.Context, p *domain.Professor) error {
	return r.s.with(func(st *state) error {
		for _, existing := range st.professors {
			if existing.Email == p.Email {
				return apperrors.AlreadyExists("professor", "email", p.Email)
			}
		}
		st.professors[p.ID] = cloneProfessor(p)
		return nil
	})
}

func (r *professorRepo) GetByID(_ context.Context, id string) (*domain.Professor, error) {
	var out *domain.Professor
	err := r.s.with(func(st *state) error {
		p, ok := st.professors[id]
		if !ok {
			return apperrors.NotFound("professor", id)
		}
		out = cloneProfessor(p)
		return nil
	})
	return out, err
}

func (r *professorRepo) List(_ context.Context, f repository.EntityFilter) ([]domain.Professor, int, error) {
	var (
		out   []domain.Professor
		total int
	)
	err := r.s.with(func(st *state) error {
		matched := make([]domain.Professor, 0)
		for _, p := range st.professors {
			if !matchesEntity(p.Department, p.OverallRating, f) {
				continue
			}
			if f.Search != nil && !containsFold(*f.Search, p.FirstName, p.LastName, p.DepartmentName) {
				continue
			}
			matched = append(matched, *cloneProfessor(p))
		}
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i], matched[j]
			switch f.SortBy {
			case domain.EntitySortName:
				if a.LastName != b.LastName {
					return a.LastName < b.LastName
				}
				return a.FirstName < b.FirstName
			case domain.EntitySortReviews:
				if a.TotalReviews != b.TotalReviews {
					return a.TotalReviews > b.TotalReviews
				}
			default:
				if a.OverallRating != b.OverallRating {
					return a.OverallRating > b.OverallRating
				}
			}
			return a.ID < b.ID
		})
		total = len(matched)
		out = page(matched, f.Page, f.Limit)
		return nil
	})
	return out, total, err
}

func (r *professorRepo) Search(ctx context.Context, query string, limit int) ([]domain.Professor, error) {
	items, _, err := r.List(ctx, repository.EntityFilter{Search: &query, Page: 1, Limit: limit})
	return items, err
}

func (r *professorRepo) Update(_ context.Context, p *domain.Professor) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.professors[p.ID]
		if !ok {
			return apperrors.NotFound("professor", p.ID)
		}
		next := cloneProfessor(p)
		next.Aggregate = cur.Aggregate
		next.ReviewIDs = cur.ReviewIDs
		next.CreatedAt = cur.CreatedAt
		st.professors[p.ID] = next
		return nil
	})
}

func (r *professorRepo) Delete(_ context.Context, id string) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.professors[id]; !ok {
			return apperrors.NotFound("professor", id)
		}
		delete(st.professors, id)
		return nil
	})
}

type courseRepo struct{ s *Store }

func (r *courseRepo) Create(_ context.Context, c *domain.Course) error {
	return r.s.with(func(st *state) error {
		for _, existing := range st.courses {
			if existing.Code == c.Code {
				return apperrors.AlreadyExists("course", "code", c.Code)
			}
		}
		st.courses[c.ID] = cloneCourse(c)
		return nil
	})
}

func (r *courseRepo) GetByID(_ context.Context, id string) (*domain.Course, error) {
	var out *domain.Course
	err := r.s.with(func(st *state) error {
		c, ok := st.courses[id]
		if !ok {
			return apperrors.NotFound("course", id)
		}
		out = cloneCourse(c)
		return nil
	})
	return out, err
}

func (r *courseRepo) List(_ context.Context, f repository.EntityFilter) ([]domain.Course, int, error) {
	var (
		out   []domain.Course
		total int
	)
	err := r.s.with(func(st *state) error {
		matched := make([]domain.Course, 0)
		for _, c := range st.courses {
			if !matchesEntity(c.Department, c.OverallRating, f) {
				continue
			}
			if f.Search != nil && !containsFold(*f.Search, c.Code, c.Name, c.DepartmentName) {
				continue
			}
			matched = append(matched, *cloneCourse(c))
		}
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i], matched[j]
			switch f.SortBy {
			case domain.EntitySortCode:
				return a.Code < b.Code
			case domain.EntitySortName:
				if a.Name != b.Name {
					return a.Name < b.Name
				}
			case domain.EntitySortReviews:
				if a.TotalReviews != b.TotalReviews {
					return a.TotalReviews > b.TotalReviews
				}
			default:
				if a.OverallRating != b.OverallRating {
					return a.OverallRating > b.OverallRating
				}
			}
			return a.Code < b.Code
		})
		total = len(matched)
		out = page(matched, f.Page, f.Limit)
		return nil
	})
	return out, total, err
}

func (r *courseRepo) Search(ctx context.Context, query string, limit int) ([]domain.Course, error) {
	items, _, err := r.List(ctx, repository.EntityFilter{Search: &query, Page: 1, Limit: limit})
	return items, err
}

func (r *courseRepo) Update(_ context.Context, c *domain.Course) error {
	return r.s.with(func(st *state) error {
		cur, ok := st.courses[c.ID]
		if !ok {
			return apperrors.NotFound("course", c.ID)
		}
		for id, existing := range st.courses {
			if id != c.ID && existing.Code == c.Code {
				return apperrors.AlreadyExists("course", "code", c.Code)
			}
		}
		next := cloneCourse(c)
		next.Aggregate = cur.Aggregate
		next.ReviewIDs = cur.ReviewIDs
		next.CreatedAt = cur.CreatedAt
		st.courses[c.ID] = next
		return nil
	})
}

func (r *courseRepo) Delete(_ context.Context, id string) error {
	return r.s.with(func(st *state) error {
		if _, ok := st.courses[id]; !ok {
			return apperrors.NotFound("course", id)
		}
		delete(st.courses, id)
		return nil
	})
}

func matchesEntity(department string, rating float64, f repository.EntityFilter) bool {
	if f.Department != nil && department != *f.Department {
		return false
	}
	if f.MinRating != nil && rating < *f.MinRating {
		return false
	}
	return true
}

func containsFold(query string, fields ...string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

type userRepo struct{ s *Store }

func (r *userRepo) AddReview(_ context.Context, userID, reviewID string) error {
	return r.s.with(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			u = &domain.User{ID: userID, ReviewIDs: []string{}}
			st.users[userID] = u
		}
		if !containsString(u.ReviewIDs, reviewID) {
			u.ReviewIDs = append(u.ReviewIDs, reviewID)
		}
		return nil
	})
}

func (r *userRepo) RemoveReview(_ context.Context, userID, reviewID string) error {
	return r.s.with(func(st *state) error {
		if u, ok := st.users[userID]; ok {
			u.ReviewIDs = removeString(u.ReviewIDs, reviewID)
		}
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.s.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperrors.NotFound("user", id)
		}
		out = &domain.User{ID: u.ID, ReviewIDs: append([]string{}, u.ReviewIDs...)}
		return nil
	})
	return out, err
}
