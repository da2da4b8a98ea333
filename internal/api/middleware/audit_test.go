package middleware

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractResource_SimplePath(t *testing.T) {
	resType, resID := extractResource("/api/v1/servers")
	assert.NotNil(t, resType)
	assert.Equal(t, "servers", *resType)
	assert.Nil(t, resID)
}

func TestExtractResource_WithID(t *testing.T) {
	resType, resID := extractResource("/api/v1/servers/abc-123")
	assert.NotNil(t, resType)
	assert.Equal(t, "servers", *resType)
	assert.NotNil(t, resID)
	assert.Equal(t, "abc-123", *resID)
}

func TestExtractResource_Nested(t *testing.T) {
	resType, resID := extractResource("/api/v1/servers/abc/backups/def")
	assert.NotNil(t, resType)
	assert.Equal(t, "backups", *resType)
	assert.NotNil(t, resID)
	assert.Equal(t, "def", *resID)
}

func TestExtractResource_NestedNoID(t *testing.T) {
	resType, resID := extractResource("/api/v1/servers/abc/backups")
	assert.NotNil(t, resType)
	assert.Equal(t, "backups", *resType)
	assert.Nil(t, resID)
}

func TestSanitizeBody(t *testing.T) {
	body := []byte(`{"name":"test","rcon_password":"secret123","token":"cyd_abc"}`)
	sanitized := sanitizeBody(body)

	var result map[string]any
	json.Unmarshal(sanitized, &result)
	assert.Equal(t, "test", result["name"])
	assert.Equal(t, "[REDACTED]", result["rcon_password"])
	assert.Equal(t, "[REDACTED]", result["token"])
}

func TestSanitizeBody_NotJSON(t *testing.T) {
	body := []byte(`plain text`)
	assert.Equal(t, json.RawMessage(body), sanitizeBody(body))
}
