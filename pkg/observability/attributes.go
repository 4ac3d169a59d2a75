package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for engine spans.
var (
	AttrOperation = attribute.Key("coffeechain.operation")
	AttrProductID = attribute.Key("coffeechain.product.id")
	AttrActorID   = attribute.Key("coffeechain.actor.id")
	AttrAncestors = attribute.Key("coffeechain.ancestors")
	AttrProducers = attribute.Key("coffeechain.producers")
)

// ProductOperation creates attributes for a product-scoped operation.
func ProductOperation(productID string) []attribute.KeyValue {
	return []attribute.KeyValue{AttrProductID.String(productID)}
}

// ActorOperation creates attributes for an actor-scoped operation.
func ActorOperation(actorID string) []attribute.KeyValue {
	return []attribute.KeyValue{AttrActorID.String(actorID)}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
