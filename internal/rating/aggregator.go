package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/repository"
	apperrors "github.com/utafrali/proflens/pkg/errors"
	"github.com/utafrali/proflens/pkg/tracing"
)

// Aggregator keeps an entity's aggregate fields equal to the averages of its
// current review set. Every recomputation reads the full set and overwrites
// the aggregate, so running it twice, or in any order relative to other
// recomputations, leaves the same result.
type Aggregator struct {
	store  repository.Store
	policy UnsetPolicy
	logger *slog.Logger
}

// NewAggregator creates an aggregator reading from and writing to store.
func NewAggregator(store repository.Store, policy UnsetPolicy, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, policy: policy, logger: logger}
}

// WithStore returns a copy bound to store, typically a transactional Store
// handed out by InTx.
func (a *Aggregator) WithStore(store repository.Store) *Aggregator {
	cpy := *a
	cpy.store = store
	return &cpy
}

// Policy returns the configured unset policy.
func (a *Aggregator) Policy() UnsetPolicy {
	return a.policy
}

// Recompute reloads every review of the entity, derives the aggregate and
// persists it in a single write. It returns ErrNotFound when the entity does
// not exist.
func (a *Aggregator) Recompute(ctx context.Context, kind domain.EntityKind, id string) (agg *domain.Aggregate, err error) {
	if !kind.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown entity kind %q", kind))
	}

	start := time.Now()
	ctx, span := tracing.Tracer("rating").Start(ctx, "rating.Recompute")
	span.SetAttributes(
		attribute.String("entity.kind", kind.String()),
		attribute.String("entity.id", id),
	)
	defer func() {
		outcome := "success"
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			outcome = "not_found"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		recomputationsTotal.WithLabelValues(kind.String(), outcome).Inc()
		recomputeDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		span.End()
	}()

	if err := a.store.Targets().Lock(ctx, kind, id); err != nil {
		return nil, fmt.Errorf("lock %s %s: %w", kind, id, err)
	}
	reviews, err := a.store.Reviews().ListByTarget(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("load reviews of %s %s: %w", kind, id, err)
	}

	result := Compute(kind, reviews, a.policy)
	if err := a.store.Targets().UpdateAggregate(ctx, kind, id, result); err != nil {
		return nil, fmt.Errorf("store aggregate of %s %s: %w", kind, id, err)
	}

	span.SetAttributes(
		attribute.Int("rating.total_reviews", result.TotalReviews),
		attribute.Float64("rating.overall", result.OverallRating),
	)
	a.logger.DebugContext(ctx, "ratings recomputed",
		slog.String("kind", kind.String()),
		slog.String("entity_id", id),
		slog.Int("total_reviews", result.TotalReviews),
		slog.Float64("overall_rating", result.OverallRating),
	)

	return &result, nil
}
