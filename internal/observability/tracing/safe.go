package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

// attribute keys that may carry sensitive payloads and must never be exported
var blockedAttributeKeys = map[attribute.Key]struct{}{
	"payment_proof": {},
	"signature":     {},
	"signing_key":   {},
	"shared_secret": {},
}

// SafeAttributes filters out attributes that could leak payment material.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError returns an error stripped to its message for span recording.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err.Error())
}
