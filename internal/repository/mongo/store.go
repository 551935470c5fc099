// Package mongo implements the repository interfaces on MongoDB. Documents
// use the UUID string ids of the domain types as _id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/pkg/database"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

// Collection names.
const (
	ReviewsCollection    = "reviews"
	ProfessorsCollection = "professors"
	CoursesCollection    = "courses"
	UsersCollection      = "users"
)

// Store implements repository.Store. When transactions are enabled InTx
// runs inside a session transaction, which needs a replica set; otherwise
// the writes of one operation are applied sequentially.
type Store struct {
	db           *mongo.Database
	transactions bool
	sess         mongo.Session
}

var _ repository.Store = (*Store)(nil)

// New creates a MongoDB-backed store on db.
func New(db *mongo.Database, transactions bool) *Store {
	return &Store{db: db, transactions: transactions}
}

func (s *Store) Reviews() repository.ReviewRepository { return &ReviewRepository{s: s} }
func (s *Store) Targets() repository.TargetRepository { return &TargetRepository{s: s} }
func (s *Store) Professors() repository.ProfessorRepository { return &ProfessorRepository{s: s} }
func (s *Store) Courses() repository.CourseRepository { return &CourseRepository{s: s} }
func (s *Store) Users() repository.UserRepository { return &UserRepository{s: s} }

// InTx runs fn in a session transaction when enabled. Nested calls and
// stores without transactions run fn directly. Losing the server while the
// transaction runs is reported as ErrServiceUnavail.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.sess != nil || !s.transactions {
		return fn(s)
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	tx := &Store{db: s.db, transactions: true, sess: sess}
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(tx)
	})
	var appErr *apperrors.AppError
	if err != nil && !errors.As(err, &appErr) && database.IsConnectionError(err) {
		return apperrors.Unavailable("the database is unavailable", err)
	}
	return err
}

// bind attaches the store's session, if any, to ctx.
func (s *Store) bind(ctx context.Context) context.Context {
	if s.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, s.sess)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes creates the indexes the repositories rely on, including the
// unique professor email and course code.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		ReviewsCollection: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "target_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		ProfessorsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "department", Value: 1}}},
			{Keys: bson.D{{Key: "overall_rating", Value: -1}}},
		},
		CoursesCollection: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "department", Value: 1}}},
			{Keys: bson.D{{Key: "overall_rating", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func entityCollection(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.KindProfessor:
		return ProfessorsCollection, nil
	case domain.KindCourse:
		return CoursesCollection, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

// exists reports whether a document with id is in coll.
func exists(ctx context.Context, coll *mongo.Collection, id string) (bool, error) {
	err := coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return false, nil
	default:
		return false, err
	}
}

func findOptions(sort bson.D, page, limit int) *options.FindOptions {
	if limit <= 0 {
		limit = 20
	}
	skip := 0
	if page > 1 {
		skip = (page - 1) * limit
	}
	return options.Find().SetSort(sort).SetSkip(int64(skip)).SetLimit(int64(limit))
}

func searchRegex(q string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
}

func notFoundOr(err error, resource, id, action string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.NotFound(resource, id)
	}
	return fmt.Errorf("%s: %w", action, err)
}
