// Package audit implements the canonical security audit event: its
// validator, redactor, and JSON/CEF/LEEF serializers. This is the wire
// format the Durable Audit Pipeline persists and forwards; it is
// deliberately distinct from the general-purpose operational logger in
// pkg/obslog.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is pinned to 1 for every event this package produces.
const SchemaVersion = 1

// Actor identifies who performed the audited action.
type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Context carries optional request/session provenance.
type Context struct {
	OrgID     string `json:"orgId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Resource identifies the object the action was performed on.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Error carries failure detail for an unsuccessful event.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Correlation links an event back to the request/trace that caused it.
type Correlation struct {
	RequestID string `json:"requestId,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
}

// Event is the canonical audit record. Identity is ID; redaction may
// rewrite any other field.
type Event struct {
	SchemaVersion int          `json:"schemaVersion"`
	ID            string       `json:"id"`
	Timestamp     time.Time    `json:"timestamp"`
	EventType     string       `json:"eventType"`
	Actor         Actor        `json:"actor"`
	Context       *Context     `json:"context,omitempty"`
	Resource      *Resource    `json:"resource,omitempty"`
	Success       bool         `json:"success"`
	Error         *Error       `json:"error,omitempty"`
	Details       map[string]any `json:"details"`
	Correlation   *Correlation `json:"correlation,omitempty"`
}

// New constructs a canonical event, filling ID and Timestamp when
// absent, then validating the result.
func New(eventType string, actor Actor, success bool, details map[string]any) (Event, error) {
	if details == nil {
		details = map[string]any{}
	}
	e := Event{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		Actor:         actor,
		Success:       success,
		Details:       details,
	}
	if err := Validate(e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate rejects events missing required fields or carrying an
// unrecognized schema version. The legacy `ts`/`metadata` field names
// only ever exist on the wire, not on this struct, so rejecting them is
// enforced at the decode boundary (DecodeStrict), not here.
func Validate(e Event) error {
	if e.SchemaVersion != SchemaVersion {
		return fmt.Errorf("audit: unsupported schemaVersion %d", e.SchemaVersion)
	}
	if e.ID == "" {
		return fmt.Errorf("audit: event id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("audit: event timestamp is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("audit: eventType is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("audit: actor type and id are required")
	}
	if e.Details == nil {
		return fmt.Errorf("audit: details must be present, even if empty")
	}
	return nil
}
