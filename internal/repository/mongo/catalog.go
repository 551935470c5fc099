package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/pkg/database"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

// TargetRepository implements repository.TargetRepository over the
// professors and courses collections.
type TargetRepository struct {
	s *Store
}

// Exists reports whether an entity of kind with id exists.
func (r *TargetRepository) Exists(ctx context.Context, kind domain.EntityKind, id string) (_ bool, err error) {
	name, err := entityCollection(kind)
	if err != nil {
		return false, err
	}
	ctx, end := database.TraceCommand(r.s.bind(ctx), "targetExists", name)
	defer func() { end(err) }()

	found, err := exists(ctx, r.s.collection(name), id)
	if err != nil {
		return false, fmt.Errorf("check %s exists: %w", kind, err)
	}
	return found, nil
}

// AddReview adds reviewID to the entity's review references once.
func (r *TargetRepository) AddReview(ctx context.Context, kind domain.EntityKind, id, reviewID string) error {
	return r.update(ctx, kind, id, "addTargetReview", bson.M{
		"$addToSet": bson.M{"review_ids": reviewID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
}

// RemoveReview drops reviewID from the entity's review references.
func (r *TargetRepository) RemoveReview(ctx context.Context, kind domain.EntityKind, id, reviewID string) error {
	return r.update(ctx, kind, id, "removeTargetReview", bson.M{
		"$pull": bson.M{"review_ids": reviewID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// Lock writes to the entity document so that concurrent transactions touching
// it conflict and are retried by the driver.
func (r *TargetRepository) Lock(ctx context.Context, kind domain.EntityKind, id string) error {
	return r.update(ctx, kind, id, "lockTarget", bson.M{
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
}

// UpdateAggregate overwrites the derived rating fields in one update.
func (r *TargetRepository) UpdateAggregate(ctx context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error {
	return r.update(ctx, kind, id, "updateTargetAggregate", bson.M{
		"$set": bson.M{
			"overall_rating": agg.OverallRating,
			"total_reviews":  agg.TotalReviews,
			"ratings":        agg.Ratings,
			"updated_at":     time.Now().UTC(),
		},
	})
}

func (r *TargetRepository) update(ctx context.Context, kind domain.EntityKind, id, op string, update bson.M) (err error) {
	name, err := entityCollection(kind)
	if err != nil {
		return err
	}
	ctx, end := database.TraceCommand(r.s.bind(ctx), op, name)
	defer func() { end(err) }()

	res, err := r.s.collection(name).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound(kind.String(), id)
	}
	return nil
}

// entityFilter builds the query shared by the catalogue collections.
func entityFilter(f repository.EntityFilter, searchFields ...string) bson.M {
	filter := bson.M{}
	if f.Department != nil {
		filter["department"] = *f.Department
	}
	if f.Search != nil && strings.TrimSpace(*f.Search) != "" {
		or := bson.A{}
		for _, field := range searchFields {
			or = append(or, bson.M{field: searchRegex(strings.TrimSpace(*f.Search))})
		}
		filter["$or"] = or
	}
	if f.MinRating != nil {
		filter["overall_rating"] = bson.M{"$gte": *f.MinRating}
	}
	return filter
}

// ProfessorRepository implements repository.ProfessorRepository on the professors collection.
type ProfessorRepository struct {
	s *Store
}

func (r *ProfessorRepository) coll() *mongo.Collection {
	return r.s.collection(ProfessorsCollection)
}

// Create inserts a new professor.
func (r *ProfessorRepository) Create(ctx context.Context, p *domain.Professor) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "insertProfessor", ProfessorsCollection)
	defer func() { end(err) }()

	if _, err = r.coll().InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("professor", "email", p.Email)
		}
		return fmt.Errorf("insert professor: %w", err)
	}
	return nil
}

// GetByID retrieves a professor by its ID.
func (r *ProfessorRepository) GetByID(ctx context.Context, id string) (_ *domain.Professor, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "findProfessor", ProfessorsCollection)
	defer func() { end(err) }()

	var p domain.Professor
	if err = r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFoundOr(err, "professor", id, "find professor")
	}
	return normalizeProfessor(&p), nil
}

// List returns one page of professors matching the filter with the total count.
func (r *ProfessorRepository) List(ctx context.Context, f repository.EntityFilter) (_ []domain.Professor, _ int, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "listProfessors", ProfessorsCollection)
	defer func() { end(err) }()

	filter := entityFilter(f, "first_name", "last_name", "email", "department_name")
	total, err := r.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count professors: %w", err)
	}

	var sort bson.D
	switch f.SortBy {
	case domain.EntitySortName:
		sort = bson.D{{Key: "last_name", Value: 1}, {Key: "first_name", Value: 1}, {Key: "_id", Value: 1}}
	case domain.EntitySortReviews:
		sort = bson.D{{Key: "total_reviews", Value: -1}, {Key: "_id", Value: 1}}
	default:
		sort = bson.D{{Key: "overall_rating", Value: -1}, {Key: "_id", Value: 1}}
	}

	cursor, err := r.coll().Find(ctx, filter, findOptions(sort, f.Page, f.Limit))
	if err != nil {
		return nil, 0, fmt.Errorf("find professors: %w", err)
	}
	professors := []domain.Professor{}
	if err := cursor.All(ctx, &professors); err != nil {
		return nil, 0, fmt.Errorf("decode professors: %w", err)
	}
	for i := range professors {
		normalizeProfessor(&professors[i])
	}
	return professors, int(total), nil
}

// Search returns up to limit professors matching q.
func (r *ProfessorRepository) Search(ctx context.Context, q string, limit int) ([]domain.Professor, error) {
	items, _, err := r.List(ctx, repository.EntityFilter{Search: &q, Page: 1, Limit: limit})
	return items, err
}

// Update persists the display fields of a professor.
func (r *ProfessorRepository) Update(ctx context.Context, p *domain.Professor) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "updateProfessor", ProfessorsCollection)
	defer func() { end(err) }()

	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"first_name":      p.FirstName,
		"last_name":       p.LastName,
		"email":           p.Email,
		"title":           p.Title,
		"department":      p.Department,
		"department_name": p.DepartmentName,
		"courses":         p.Courses,
		"tags":            p.Tags,
		"updated_at":      p.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("professor", "email", p.Email)
		}
		return fmt.Errorf("update professor: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("professor", p.ID)
	}
	return nil
}

// Delete removes a professor by its ID.
func (r *ProfessorRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "deleteProfessor", ProfessorsCollection)
	defer func() { end(err) }()

	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete professor: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("professor", id)
	}
	return nil
}

func normalizeProfessor(p *domain.Professor) *domain.Professor {
	if p.Ratings == nil {
		p.Ratings = map[string]float64{}
	}
	if p.Courses == nil {
		p.Courses = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.ReviewIDs == nil {
		p.ReviewIDs = []string{}
	}
	return p
}

// CourseRepository implements repository.CourseRepository on the courses collection.
type CourseRepository struct {
	s *Store
}

func (r *CourseRepository) coll() *mongo.Collection {
	return r.s.collection(CoursesCollection)
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "insertCourse", CoursesCollection)
	defer func() { end(err) }()

	if _, err = r.coll().InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("course", "code", c.Code)
		}
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

// GetByID retrieves a course by its ID.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (_ *domain.Course, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "findCourse", CoursesCollection)
	defer func() { end(err) }()

	var c domain.Course
	if err = r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFoundOr(err, "course", id, "find course")
	}
	return normalizeCourse(&c), nil
}

// List returns one page of courses matching the filter with the total count.
func (r *CourseRepository) List(ctx context.Context, f repository.EntityFilter) (_ []domain.Course, _ int, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "listCourses", CoursesCollection)
	defer func() { end(err) }()

	filter := entityFilter(f, "code", "name", "department_name")
	total, err := r.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	var sort bson.D
	switch f.SortBy {
	case domain.EntitySortCode:
		sort = bson.D{{Key: "code", Value: 1}}
	case domain.EntitySortName:
		sort = bson.D{{Key: "name", Value: 1}, {Key: "code", Value: 1}}
	case domain.EntitySortReviews:
		sort = bson.D{{Key: "total_reviews", Value: -1}, {Key: "code", Value: 1}}
	default:
		sort = bson.D{{Key: "overall_rating", Value: -1}, {Key: "code", Value: 1}}
	}

	cursor, err := r.coll().Find(ctx, filter, findOptions(sort, f.Page, f.Limit))
	if err != nil {
		return nil, 0, fmt.Errorf("find courses: %w", err)
	}
	courses := []domain.Course{}
	if err := cursor.All(ctx, &courses); err != nil {
		return nil, 0, fmt.Errorf("decode courses: %w", err)
	}
	for i := range courses {
		normalizeCourse(&courses[i])
	}
	return courses, int(total), nil
}

// Search returns up to limit courses matching q.
func (r *CourseRepository) Search(ctx context.Context, q string, limit int) ([]domain.Course, error) {
	items, _, err := r.List(ctx, repository.EntityFilter{Search: &q, Page: 1, Limit: limit})
	return items, err
}

// Update persists the display fields of a course.
func (r *CourseRepository) Update(ctx context.Context, c *domain.Course) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "updateCourse", CoursesCollection)
	defer func() { end(err) }()

	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": c.ID}, bson.M{"$set": bson.M{
		"code":            c.Code,
		"name":            c.Name,
		"department":      c.Department,
		"department_name": c.DepartmentName,
		"credits":         c.Credits,
		"description":     c.Description,
		"professor_ids":   c.ProfessorIDs,
		"tags":            c.Tags,
		"updated_at":      c.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("course", "code", c.Code)
		}
		return fmt.Errorf("update course: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("course", c.ID)
	}
	return nil
}

// Delete removes a course by its ID.
func (r *CourseRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "deleteCourse", CoursesCollection)
	defer func() { end(err) }()

	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("course", id)
	}
	return nil
}

func normalizeCourse(c *domain.Course) *domain.Course {
	if c.Ratings == nil {
		c.Ratings = map[string]float64{}
	}
	if c.ProfessorIDs == nil {
		c.ProfessorIDs = []string{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.ReviewIDs == nil {
		c.ReviewIDs = []string{}
	}
	return c
}

// UserRepository implements repository.UserRepository on the users collection.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) coll() *mongo.Collection {
	return r.s.collection(UsersCollection)
}

// AddReview records reviewID for the author, creating the document on first use.
func (r *UserRepository) AddReview(ctx context.Context, userID, reviewID string) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "addUserReview", UsersCollection)
	defer func() { end(err) }()

	now := time.Now().UTC()
	_, err = r.coll().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet":    bson.M{"review_ids": reviewID},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("add user review: %w", err)
	}
	return nil
}

// RemoveReview drops reviewID from the author's references.
func (r *UserRepository) RemoveReview(ctx context.Context, userID, reviewID string) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "removeUserReview", UsersCollection)
	defer func() { end(err) }()

	_, err = r.coll().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"review_ids": reviewID}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("remove user review: %w", err)
	}
	return nil
}

// GetByID retrieves the author projection.
func (r *UserRepository) GetByID(ctx context.Context, id string) (_ *domain.User, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "findUser", UsersCollection)
	defer func() { end(err) }()

	var u domain.User
	if err = r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFoundOr(err, "user", id, "find user")
	}
	if u.ReviewIDs == nil {
		u.ReviewIDs = []string{}
	}
	return &u, nil
}
