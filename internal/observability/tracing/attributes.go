package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Keys that may carry secrets or payer data never reach a span.
var blockedKeys = []string{"token", "secret", "authorization", "password", "qr", "payload"}

// SafeAttributes drops attributes whose key looks sensitive.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isBlocked(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

func isBlocked(key string) bool {
	key = strings.ToLower(key)
	for _, blocked := range blockedKeys {
		if strings.Contains(key, blocked) {
			return true
		}
	}
	return false
}

// SafeError keeps only the error text up to the first newline, capped, so
// response bodies embedded in wrapped errors are not exported.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return errors.New(msg)
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
