package events

import (
	"time"

	"github.com/spec-kit/incident-gateway/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSubmissionReceived EventType = "submission_received"
	EventSubmissionApproved EventType = "submission_approved"
	EventSubmissionRejected EventType = "submission_rejected"
	EventIncidentCreated    EventType = "incident_created"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID    string      `json:"id"`
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role"`
}

// Event represents a domain event emitted by services. It is the audit
// trail of the approval workflow: who touched which submission, when.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	SubmissionID string      `json:"submission_id"`
	Actor        Actor       `json:"actor"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload,omitempty"`
}

// SubmissionReceivedPayload payload.
type SubmissionReceivedPayload struct {
	ShortDescription string `json:"short_description"`
	Priority         string `json:"priority,omitempty"`
}

// SubmissionApprovedPayload payload.
type SubmissionApprovedPayload struct {
	ExternalID    string `json:"external_id,omitempty"`
	UpstreamError string `json:"upstream_error,omitempty"`
}

// SubmissionRejectedPayload payload.
type SubmissionRejectedPayload struct {
	Reason string `json:"reason"`
}

// IncidentCreatedPayload payload.
type IncidentCreatedPayload struct {
	SysID  string `json:"sys_id"`
	Number string `json:"number"`
}
