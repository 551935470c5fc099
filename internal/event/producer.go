package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/proflens/internal/domain"
	pkgkafka "github.com/utafrali/proflens/pkg/kafka"
	"github.com/utafrali/proflens/pkg/logger"
)

// Kafka topic constants for ProfLens domain events.
const (
	TopicReviewCreated     = "proflens.review.created"
	TopicReviewUpdated     = "proflens.review.updated"
	TopicReviewDeleted     = "proflens.review.deleted"
	TopicRatingsRecomputed = "proflens.ratings.recomputed"
	TopicCatalogChanged    = "proflens.catalog.changed"
)

// Event type names carried in the envelope.
const (
	TypeReviewCreated     = "review.created"
	TypeReviewUpdated     = "review.updated"
	TypeReviewDeleted     = "review.deleted"
	TypeRatingsRecomputed = "ratings.recomputed"
	TypeCatalogChanged    = "catalog.changed"
)

// Catalogue change actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// SubjectKindReview is the subject kind of review events.
const SubjectKindReview = "review"

// Source identifier for events originating from this service.
const Source = "proflens"

// ReviewData is the payload of review.created and review.updated events.
type ReviewData struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	Type     string         `json:"type"`
	TargetID string         `json:"target_id"`
	Rating   int            `json:"rating"`
	Ratings  map[string]int `json:"ratings"`
	Semester string         `json:"semester"`
}

// ReviewDeletedData is the payload of a review.deleted event.
type ReviewDeletedData struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
}

// RatingsRecomputedData is the payload of a ratings.recomputed event.
type RatingsRecomputedData struct {
	Kind          string             `json:"kind"`
	ID            string             `json:"id"`
	OverallRating float64            `json:"overall_rating"`
	TotalReviews  int                `json:"total_reviews"`
	Ratings       map[string]float64 `json:"ratings"`
}

// CatalogChangedData is the payload of a catalog.changed event.
type CatalogChangedData struct {
	Action string `json:"action"`
	Kind   string `json:"kind"`
	ID     string `json:"id"`
}

// Publisher is the part of pkg/kafka.Producer the event producer uses.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes ProfLens domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishReviewCreated publishes a review.created event.
func (p *Producer) PublishReviewCreated(ctx context.Context, review *domain.Review) error {
	return p.publish(ctx, TopicReviewCreated, TypeReviewCreated, SubjectKindReview, review.ID, reviewData(review))
}

// PublishReviewUpdated publishes a review.updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, review *domain.Review) error {
	return p.publish(ctx, TopicReviewUpdated, TypeReviewUpdated, SubjectKindReview, review.ID, reviewData(review))
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, review *domain.Review) error {
	data := ReviewDeletedData{
		ID:       review.ID,
		Type:     review.Type.String(),
		TargetID: review.TargetID,
	}
	return p.publish(ctx, TopicReviewDeleted, TypeReviewDeleted, SubjectKindReview, review.ID, data)
}

// PublishRatingsRecomputed publishes the new aggregate of an entity.
func (p *Producer) PublishRatingsRecomputed(ctx context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error {
	data := RatingsRecomputedData{
		Kind:          kind.String(),
		ID:            id,
		OverallRating: agg.OverallRating,
		TotalReviews:  agg.TotalReviews,
		Ratings:       agg.Ratings,
	}
	return p.publish(ctx, TopicRatingsRecomputed, TypeRatingsRecomputed, kind.String(), id, data)
}

// PublishCatalogChanged publishes a catalog.changed event for a professor or course.
func (p *Producer) PublishCatalogChanged(ctx context.Context, action string, kind domain.EntityKind, id string) error {
	data := CatalogChangedData{Action: action, Kind: kind.String(), ID: id}
	return p.publish(ctx, TopicCatalogChanged, TypeCatalogChanged, kind.String(), id, data)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, subjectKind, subjectID string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, subjectKind, subjectID, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if userID := logger.UserIDFromContext(ctx); userID != "" {
		event.WithMetadata("actor", userID)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published "+eventType+" event",
		slog.String("subject_kind", subjectKind),
		slog.String("subject_id", subjectID),
	)
	return nil
}

func reviewData(r *domain.Review) ReviewData {
	return ReviewData{
		ID:       r.ID,
		UserID:   r.UserID,
		Type:     r.Type.String(),
		TargetID: r.TargetID,
		Rating:   r.Rating,
		Ratings:  r.Ratings,
		Semester: r.Semester,
	}
}
