package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to every topic. Subject identifies the
// entity the event is about and doubles as the partition key, so all events
// for one review or one professor stay ordered.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	SubjectID     string            `json:"subject_id"`
	SubjectKind   string            `json:"subject_kind"`
	Version       int               `json:"version"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an event with a fresh id and the current UTC time.
func NewEvent(eventType, subjectKind, subjectID, source string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		SubjectID:   subjectID,
		SubjectKind: subjectKind,
		Version:     1,
		OccurredAt:  time.Now().UTC(),
		Source:      source,
		Payload:     raw,
	}, nil
}

// WithCorrelationID sets the correlation ID and returns e for chaining.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a metadata entry and returns e for chaining.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Marshal encodes the event as JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the payload into target.
func (e *Event) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}
