package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var safeKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"payment.provider":        {},
	"payment.event_type":      {},
	"payment.order_id":        {},
	"payment.operation":       {},
	"donation.id":             {},
	"reconcile.result":        {},
}

// SafeAttributes drops anything not on the allowlist so donor details never reach a span.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := safeKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

var errRequestFailed = errors.New("request_failed")

// SafeError replaces error text, which may embed gateway responses, with a fixed value.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errRequestFailed
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}
