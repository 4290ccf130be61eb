package audit

import (
	"encoding/json"
	"fmt"
)

var legacyTopLevelKeys = map[string]bool{
	"ts":       true,
	"metadata": true,
}

var knownTopLevelKeys = map[string]bool{
	"schemaVersion": true,
	"id":            true,
	"timestamp":     true,
	"eventType":     true,
	"actor":         true,
	"context":       true,
	"resource":      true,
	"success":       true,
	"error":         true,
	"details":       true,
	"correlation":   true,
}

// DecodeStrict parses raw JSON into an Event, rejecting legacy fields
// (ts, metadata) and any other unrecognized top-level key, then runs
// Validate.
func DecodeStrict(raw []byte) (Event, error) {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return Event{}, fmt.Errorf("audit: malformed event json: %w", err)
	}
	for key := range loose {
		if legacyTopLevelKeys[key] {
			return Event{}, fmt.Errorf("audit: legacy field %q is not accepted", key)
		}
		if !knownTopLevelKeys[key] {
			return Event{}, fmt.Errorf("audit: unrecognized field %q", key)
		}
	}

	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("audit: malformed event json: %w", err)
	}
	if err := Validate(e); err != nil {
		return Event{}, err
	}
	return e, nil
}
