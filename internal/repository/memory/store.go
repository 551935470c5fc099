// Package memory is an in-process Store used for local development
// (STORE_DRIVER=memory) and as the backing store of service tests.
package memory

import (
	"context"
	"sync"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
)

type state struct {
	reviews    map[string]*domain.Review
	professors map[string]*domain.Professor
	courses    map[string]*domain.Course
	users      map[string]*domain.User
}

func newState() *state {
	return &state{
		reviews:    map[string]*domain.Review{},
		professors: map[string]*domain.Professor{},
		courses:    map[string]*domain.Course{},
		users:      map[string]*domain.User{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.reviews {
		c.reviews[k] = v.Clone()
	}
	for k, v := range s.professors {
		c.professors[k] = cloneProfessor(v)
	}
	for k, v := range s.courses {
		c.courses[k] = cloneCourse(v)
	}
	for k, v := range s.users {
		c.users[k] = &domain.User{ID: v.ID, ReviewIDs: append([]string(nil), v.ReviewIDs...)}
	}
	return c
}

// Store keeps all data in maps guarded by one mutex. A transaction holds the
// mutex for its whole duration and restores a snapshot on failure.
type Store struct {
	mu    sync.Mutex
	data  *state
	inTx  bool
	owner *Store
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

// with runs fn against the current data, locking unless inside a transaction.
func (s *Store) with(fn func(st *state) error) error {
	if s.inTx {
		return fn(s.owner.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Reviews() repository.ReviewRepository { return &reviewRepo{s: s} }
func (s *Store) Targets() repository.TargetRepository { return &targetRepo{s: s} }
func (s *Store) Professors() repository.ProfessorRepository { return &professorRepo{s: s} }
func (s *Store) Courses() repository.CourseRepository { return &courseRepo{s: s} }
func (s *Store) Users() repository.UserRepository { return &userRepo{s: s} }

// InTx runs fn with exclusive access to the store. Changes made by fn are
// discarded when it returns an error or panics.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	committed := false
	defer func() {
		if !committed {
			s.data = snapshot
		}
	}()

	if err := fn(&Store{inTx: true, owner: s}); err != nil {
		return err
	}
	committed = true
	return nil
}

func cloneProfessor(p *domain.Professor) *domain.Professor {
	c := *p
	c.Courses = append([]string(nil), p.Courses...)
	c.Tags = append([]string(nil), p.Tags...)
	c.ReviewIDs = append([]string(nil), p.ReviewIDs...)
	c.Ratings = cloneRatings(p.Ratings)
	return &c
}

func cloneCourse(co *domain.Course) *domain.Course {
	c := *co
	c.ProfessorIDs = append([]string(nil), co.ProfessorIDs...)
	c.Tags = append([]string(nil), co.Tags...)
	c.ReviewIDs = append([]string(nil), co.ReviewIDs...)
	c.Ratings = cloneRatings(co.Ratings)
	return &c
}

func cloneRatings(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func page[T any](items []T, pg, limit int) []T {
	if limit <= 0 {
		limit = 20
	}
	if pg < 1 {
		pg = 1
	}
	start := (pg - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
