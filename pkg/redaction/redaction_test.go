package redaction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wayfarian/groupjourney/pkg/redaction"
)

func TestRedactBearerToken(t *testing.T) {
	r := redaction.New()
	got := r.Redact("invalid header: Bearer abc123.def456-ghi")
	assert.NotContains(t, got, "abc123")
	assert.Contains(t, got, "[redacted]")
}

func TestRedactEmail(t *testing.T) {
	r := redaction.New()
	got := r.Redact("user ada@example.com already a member")
	assert.NotContains(t, got, "ada@example.com")
	assert.Contains(t, got, "[redacted-email]")
}

func TestRedactUUID(t *testing.T) {
	r := redaction.New()
	got := r.Redact("journey 8f14e45f-ceea-467e-adc1-0000deadbeef not found")
	assert.NotContains(t, got, "8f14e45f-ceea-467e-adc1-0000deadbeef")
	assert.Contains(t, got, "[id]")
}

func TestRedactLeavesPlainTextAlone(t *testing.T) {
	r := redaction.New()
	assert.Equal(t, "group journey already started", r.Redact("group journey already started"))
}

func TestNilRedactorIsNoOp(t *testing.T) {
	var r *redaction.Redactor
	assert.Equal(t, "unchanged", r.Redact("unchanged"))
}
