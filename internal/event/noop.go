package event

import (
	"context"

	pkgkafka "github.com/utafrali/proflens/pkg/kafka"
)

// Discard is a Publisher that drops every event. It backs the producer
// when no brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, *pkgkafka.Event) error { return nil }
