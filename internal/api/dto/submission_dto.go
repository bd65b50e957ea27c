package dto

import (
	"time"

	"github.com/spec-kit/incident-gateway/internal/domain"
)

// SubmissionRequest payload for POST /submissions.
type SubmissionRequest struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	Impact           string `json:"impact,omitempty"`
	Category         string `json:"category,omitempty"`
	CallerID         string `json:"caller_id,omitempty"`
}

// RejectRequest payload for POST /submissions/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// SubmissionResponse is the public view of a pending submission.
type SubmissionResponse struct {
	ID               string                  `json:"id"`
	OwnerID          string                  `json:"owner_id"`
	OwnerEmail       string                  `json:"owner_email"`
	ShortDescription string                  `json:"short_description"`
	Description      string                  `json:"description"`
	Priority         string                  `json:"priority,omitempty"`
	Urgency          string                  `json:"urgency,omitempty"`
	Impact           string                  `json:"impact,omitempty"`
	Category         string                  `json:"category,omitempty"`
	CallerID         string                  `json:"caller_id,omitempty"`
	Status           domain.SubmissionStatus `json:"status"`
	RejectReason     *string                 `json:"reject_reason,omitempty"`
	ExternalID       *string                 `json:"external_id,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NewSubmissionResponse maps the domain model.
func NewSubmissionResponse(s *domain.PendingSubmission) SubmissionResponse {
	return SubmissionResponse{
		ID:               s.ID,
		OwnerID:          s.OwnerID,
		OwnerEmail:       s.OwnerEmail,
		ShortDescription: s.ShortDescription,
		Description:      s.Description,
		Priority:         s.Priority,
		Urgency:          s.Urgency,
		Impact:           s.Impact,
		Category:         s.Category,
		CallerID:         s.CallerID,
		Status:           s.Status,
		RejectReason:     s.RejectReason,
		ExternalID:       s.ExternalID,
		CreatedAt:        s.CreatedAt,
	}
}
