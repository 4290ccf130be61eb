package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FillsIDAndTimestamp(t *testing.T) {
	e, err := New("security.network.request", Actor{Type: "ai", ID: "copilot-1"}, true, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.NotNil(t, e.Details)
	assert.Equal(t, SchemaVersion, e.SchemaVersion)
}

func TestValidate_RejectsMissingFields(t *testing.T) {
	e := Event{SchemaVersion: SchemaVersion, ID: "x", Timestamp: time.Now(), Details: map[string]any{}}
	err := Validate(e)
	require.Error(t, err)
}

func TestDecodeStrict_RejectsLegacyFields(t *testing.T) {
	raw := []byte(`{"schemaVersion":1,"id":"x","timestamp":"2024-01-01T00:00:00Z","eventType":"e","actor":{"type":"ai","id":"1"},"success":true,"details":{},"ts":"legacy"}`)
	_, err := DecodeStrict(raw)
	require.Error(t, err)
}

func TestDecodeStrict_RejectsUnknownTopLevelKey(t *testing.T) {
	raw := []byte(`{"schemaVersion":1,"id":"x","timestamp":"2024-01-01T00:00:00Z","eventType":"e","actor":{"type":"ai","id":"1"},"success":true,"details":{},"extra":1}`)
	_, err := DecodeStrict(raw)
	require.Error(t, err)
}

func TestDecodeStrict_AcceptsWellFormedEvent(t *testing.T) {
	raw := []byte(`{"schemaVersion":1,"id":"x","timestamp":"2024-01-01T00:00:00Z","eventType":"e","actor":{"type":"ai","id":"1"},"success":true,"details":{"k":"v"}}`)
	e, err := DecodeStrict(raw)
	require.NoError(t, err)
	assert.Equal(t, "e", e.EventType)
}
