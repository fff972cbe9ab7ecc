package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/checkout/create"),
		attribute.String("gateway.access_token", "abc"),
		attribute.String("invoice.qr_text", "0002010102"),
		attribute.String("Authorization", "Bearer x"),
	)

	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	err := SafeError(errors.New("gateway: status 500\n{\"secret\":\"x\"}"))
	assert.Equal(t, "gateway: status 500", err.Error())

	long := SafeError(errors.New(strings.Repeat("a", 400)))
	assert.Len(t, long.Error(), 256)

	assert.Nil(t, SafeError(nil))
}
