package domain

import "time"

// SubmissionStatus enumerates lifecycle states for pending submissions.
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// PendingSubmission is a user-originated incident request awaiting admin
// approval. Status moves pending->approved or pending->rejected exactly
// once; after a terminal state the record is immutable except for
// RejectReason on rejection and ExternalID when the approved incident is
// materialized upstream. ExternalID stays nil when the upstream create
// fails after approval; recovery is a manual operator retry.
type PendingSubmission struct {
	ID               string
	OwnerID          string
	OwnerEmail       string
	ShortDescription string
	Description      string
	Priority         string
	Urgency          string
	Impact           string
	Category         string
	CallerID         string
	Status           SubmissionStatus
	RejectReason     *string
	ExternalID       *string
	CreatedAt        time.Time
}

// Fields projects the submission into the incident schema handed to the
// bridge client on approval. The caller falls back to the owner's email
// when no caller id was supplied, matching the submission form behavior.
func (s *PendingSubmission) Fields() IncidentFields {
	callerID := s.CallerID
	if callerID == "" {
		callerID = s.OwnerEmail
	}
	return IncidentFields{
		ShortDescription: s.ShortDescription,
		Description:      s.Description,
		Priority:         s.Priority,
		Urgency:          s.Urgency,
		Impact:           s.Impact,
		Category:         s.Category,
		CallerID:         callerID,
	}
}
