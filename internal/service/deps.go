package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/proflens/internal/domain"
)

// EntityCache caches entity detail reads. Implementations must treat a
// missing key as a miss, not an error.
type EntityCache interface {
	Get(ctx context.Context, kind domain.EntityKind, id string, dst any) (bool, error)
	Set(ctx context.Context, kind domain.EntityKind, id string, v any) error
	Invalidate(ctx context.Context, kind domain.EntityKind, ids ...string) error
}

// EventPublisher publishes domain events after a change has committed.
type EventPublisher interface {
	PublishReviewCreated(ctx context.Context, review *domain.Review) error
	PublishReviewUpdated(ctx context.Context, review *domain.Review) error
	PublishReviewDeleted(ctx context.Context, review *domain.Review) error
	PublishRatingsRecomputed(ctx context.Context, kind domain.EntityKind, id string, agg domain.Aggregate) error
	PublishCatalogChanged(ctx context.Context, action string, kind domain.EntityKind, id string) error
}

type noCache struct{}

func (noCache) Get(context.Context, domain.EntityKind, string, any) (bool, error) { return false, nil }
func (noCache) Set(context.Context, domain.EntityKind, string, any) error { return nil }
func (noCache) Invalidate(context.Context, domain.EntityKind, ...string) error { return nil }

// sideEffects runs the post-commit work shared by every service. Failures
// are logged and never fail the request: the change is already durable.
type sideEffects struct {
	cache  EntityCache
	events EventPublisher
	logger *slog.Logger
}

func newSideEffects(cache EntityCache, events EventPublisher, logger *slog.Logger) sideEffects {
	if cache == nil {
		cache = noCache{}
	}
	return sideEffects{cache: cache, events: events, logger: logger}
}

func (s sideEffects) invalidate(ctx context.Context, kind domain.EntityKind, id string) {
	if err := s.cache.Invalidate(ctx, kind, id); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached entity",
			slog.String("kind", kind.String()),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s sideEffects) publish(ctx context.Context, eventType string, fn func(EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := fn(s.events); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (s sideEffects) ratingsChanged(ctx context.Context, kind domain.EntityKind, id string, agg *domain.Aggregate) {
	s.invalidate(ctx, kind, id)
	if agg == nil {
		return
	}
	s.publish(ctx, "ratings.recomputed", func(p EventPublisher) error {
		return p.PublishRatingsRecomputed(ctx, kind, id, *agg)
	})
}
