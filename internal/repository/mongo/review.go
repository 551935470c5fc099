package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	"github.com/utafrali/proflens/pkg/database"
	apperrors "github.com/utafrali/proflens/pkg/errors"
)

// maxToggleAttempts bounds the add/remove retries of ToggleHelpful when
// concurrent toggles keep flipping the membership under it.
const maxToggleAttempts = 3

// ReviewRepository implements repository.ReviewRepository on the reviews collection.
type ReviewRepository struct {
	s *Store
}

func (r *ReviewRepository) coll() *mongo.Collection {
	return r.s.collection(ReviewsCollection)
}

// Create inserts a new review.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "insertReview", ReviewsCollection)
	defer func() { end(err) }()

	doc := review.Clone()
	if doc.HelpfulBy == nil {
		doc.HelpfulBy = []string{}
	}
	if _, err = r.coll().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("review", "id", review.ID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "findReview", ReviewsCollection)
	defer func() { end(err) }()

	var rv domain.Review
	if err = r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&rv); err != nil {
		return nil, notFoundOr(err, "review", id, "find review")
	}
	return normalizeReview(&rv), nil
}

// List returns one page of reviews matching the filter with the total count.
func (r *ReviewRepository) List(ctx context.Context, f repository.ReviewFilter) (_ []domain.Review, _ int, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "listReviews", ReviewsCollection)
	defer func() { end(err) }()

	filter := bson.M{}
	if f.Type != nil {
		filter["type"] = string(*f.Type)
	}
	if f.ProfessorID != nil {
		filter["type"] = string(domain.KindProfessor)
		filter["target_id"] = *f.ProfessorID
	}
	if f.CourseID != nil {
		if _, clash := filter["target_id"]; clash {
			return []domain.Review{}, 0, nil
		}
		filter["type"] = string(domain.KindCourse)
		filter["target_id"] = *f.CourseID
	}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}

	total, err := r.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	reviews, err := r.find(ctx, filter, findOptions(reviewSort(f.SortBy), f.Page, f.Limit))
	if err != nil {
		return nil, 0, err
	}
	return reviews, int(total), nil
}

func reviewSort(sortBy string) bson.D {
	recent := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	switch sortBy {
	case domain.ReviewSortRating:
		return append(bson.D{{Key: "rating", Value: -1}}, recent...)
	case domain.ReviewSortHelpful:
		return append(bson.D{{Key: "helpful", Value: -1}}, recent...)
	default:
		return recent
	}
}

// ListByTarget returns every review of one entity.
func (r *ReviewRepository) ListByTarget(ctx context.Context, kind domain.EntityKind, targetID string) (_ []domain.Review, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "listReviewsByTarget", ReviewsCollection)
	defer func() { end(err) }()

	return r.find(ctx, bson.M{"type": string(kind), "target_id": targetID}, options.Find())
}

// ListRecentByTarget returns up to limit reviews of one entity, newest first.
func (r *ReviewRepository) ListRecentByTarget(ctx context.Context, kind domain.EntityKind, targetID string, limit int) (_ []domain.Review, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "listRecentReviewsByTarget", ReviewsCollection)
	defer func() { end(err) }()

	return r.find(ctx, bson.M{"type": string(kind), "target_id": targetID}, findOptions(reviewSort(""), 1, limit))
}

func (r *ReviewRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Review, error) {
	cursor, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find reviews: %w", err)
	}
	reviews := []domain.Review{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	for i := range reviews {
		normalizeReview(&reviews[i])
	}
	return reviews, nil
}

// Update persists the client-editable fields of a review.
func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "updateReview", ReviewsCollection)
	defer func() { end(err) }()

	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": review.ID}, bson.M{"$set": bson.M{
		"rating":       review.Rating,
		"ratings":      review.Ratings,
		"comment":      review.Comment,
		"semester":     review.Semester,
		"course_taken": review.CourseTaken,
		"anonymous":    review.Anonymous,
		"updated_at":   review.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("review", review.ID)
	}
	return nil
}

// Delete removes a review by its ID.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "deleteReview", ReviewsCollection)
	defer func() { end(err) }()

	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// ToggleHelpful flips userID's helpful vote. Each branch is a conditional
// findAndModify that only matches when the vote is in the expected state,
// so a concurrent toggle makes it miss and the other branch is tried.
func (r *ReviewRepository) ToggleHelpful(ctx context.Context, id, userID string) (_ *domain.Review, _ bool, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "toggleReviewHelpful", ReviewsCollection)
	defer func() { end(err) }()

	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		now := time.Now().UTC()

		var rv domain.Review
		err = r.coll().FindOneAndUpdate(ctx,
			bson.M{"_id": id, "helpful_by": bson.M{"$ne": userID}},
			bson.M{
				"$addToSet": bson.M{"helpful_by": userID},
				"$inc":      bson.M{"helpful": 1},
				"$set":      bson.M{"updated_at": now},
			},
			after,
		).Decode(&rv)
		if err == nil {
			return normalizeReview(&rv), true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, fmt.Errorf("mark review helpful: %w", err)
		}

		err = r.coll().FindOneAndUpdate(ctx,
			bson.M{"_id": id, "helpful_by": userID},
			mongo.Pipeline{{{Key: "$set", Value: bson.M{
				"helpful_by": bson.M{"$filter": bson.M{
					"input": "$helpful_by",
					"cond":  bson.M{"$ne": bson.A{"$$this", userID}},
				}},
				"helpful":    bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$helpful", 1}}}},
				"updated_at": now,
			}}}},
			after,
		).Decode(&rv)
		if err == nil {
			return normalizeReview(&rv), false, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, fmt.Errorf("unmark review helpful: %w", err)
		}

		found, err := exists(ctx, r.coll(), id)
		if err != nil {
			return nil, false, fmt.Errorf("check review exists: %w", err)
		}
		if !found {
			return nil, false, apperrors.NotFound("review", id)
		}
	}
	return nil, false, apperrors.Conflict("helpful vote changed concurrently, retry")
}

// Report flags the review and increments its report counter.
func (r *ReviewRepository) Report(ctx context.Context, id string) (_ *domain.Review, err error) {
	ctx, end := database.TraceCommand(r.s.bind(ctx), "reportReview", ReviewsCollection)
	defer func() { end(err) }()

	var rv domain.Review
	err = r.coll().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"reported": true, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"report_count": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rv)
	if err != nil {
		return nil, notFoundOr(err, "review", id, "report review")
	}
	return normalizeReview(&rv), nil
}

func normalizeReview(rv *domain.Review) *domain.Review {
	if rv.Ratings == nil {
		rv.Ratings = map[string]int{}
	}
	if rv.HelpfulBy == nil {
		rv.HelpfulBy = []string{}
	}
	return rv
}
