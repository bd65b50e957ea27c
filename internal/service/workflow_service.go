package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/events"
	"github.com/spec-kit/incident-gateway/internal/repository"
	apperrors "github.com/spec-kit/incident-gateway/pkg/util"
)

// SubmissionInput carries the fields of a user-submitted incident request.
type SubmissionInput struct {
	ShortDescription string
	Description      string
	Priority         string
	Urgency          string
	Impact           string
	Category         string
	CallerID         string
}

// ApprovalResult reports the outcome of an approval. The local transition
// succeeded in every case; Incident is nil and UpstreamError non-empty
// when the upstream create failed afterwards. That submission stays
// approved with no external id. Recovery is a manual create, never a
// rollback to pending, which would re-open the approval race.
type ApprovalResult struct {
	Submission    *domain.PendingSubmission
	Incident      *domain.IncidentRecord
	UpstreamError string
}

// WorkflowService owns the pending-submission state machine.
type WorkflowService struct {
	submissions repository.SubmissionRepository
	bridge      TicketBridge
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// NewWorkflowService builds the service.
func NewWorkflowService(submissions repository.SubmissionRepository, bridge TicketBridge, dispatcher events.Dispatcher, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{
		submissions: submissions,
		bridge:      bridge,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Submit records a new pending submission owned by the caller.
func (s *WorkflowService) Submit(ctx context.Context, owner events.Actor, input SubmissionInput) (*domain.PendingSubmission, error) {
	if strings.TrimSpace(input.ShortDescription) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, apperrors.NewValidationError("short_description and description required", nil)
	}
	fields := domain.IncidentFields{
		ShortDescription: input.ShortDescription,
		Description:      input.Description,
		Priority:         input.Priority,
		Urgency:          input.Urgency,
		Impact:           input.Impact,
	}
	if problems := fields.ValidateForUpdate(); problems != nil {
		return nil, apperrors.NewValidationError("invalid submission fields", problems)
	}

	submission := &domain.PendingSubmission{
		OwnerID:          owner.ID,
		OwnerEmail:       owner.Email,
		ShortDescription: input.ShortDescription,
		Description:      input.Description,
		Priority:         input.Priority,
		Urgency:          input.Urgency,
		Impact:           input.Impact,
		Category:         input.Category,
		CallerID:         input.CallerID,
		Status:           domain.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSubmissionReceived, submission.ID, owner, events.SubmissionReceivedPayload{
		ShortDescription: submission.ShortDescription,
		Priority:         submission.Priority,
	})
	return submission, nil
}

// Approve moves a submission pending->approved exactly once, then hands
// its snapshot to the bridge for incident creation. The transition is a
// conditional update: of two concurrent approvals, one gets the row and
// one gets Conflict.
func (s *WorkflowService) Approve(ctx context.Context, actor events.Actor, submissionID string) (*ApprovalResult, error) {
	won, err := s.submissions.TransitionStatus(ctx, submissionID, domain.SubmissionStatusApproved, nil)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.transitionConflict(ctx, submissionID)
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	incident, createErr := s.bridge.Create(ctx, submission.Fields())
	if createErr != nil {
		s.logger.Error("incident creation failed after approval; submission stays approved without external id",
			zap.String("submission_id", submissionID),
			zap.Error(createErr))
		s.publish(ctx, events.EventSubmissionApproved, submissionID, actor, events.SubmissionApprovedPayload{
			UpstreamError: createErr.Error(),
		})
		return &ApprovalResult{Submission: submission, UpstreamError: createErr.Error()}, nil
	}

	if err := s.submissions.SetExternalID(ctx, submissionID, incident.SysID); err != nil {
		s.logger.Error("recording external id failed",
			zap.String("submission_id", submissionID),
			zap.String("sys_id", incident.SysID),
			zap.Error(err))
	} else {
		submission.ExternalID = &incident.SysID
	}

	s.publish(ctx, events.EventSubmissionApproved, submissionID, actor, events.SubmissionApprovedPayload{
		ExternalID: incident.SysID,
	})
	s.publish(ctx, events.EventIncidentCreated, submissionID, actor, events.IncidentCreatedPayload{
		SysID:  incident.SysID,
		Number: incident.Number,
	})
	return &ApprovalResult{Submission: submission, Incident: incident}, nil
}

// Reject moves a submission pending->rejected exactly once, recording
// the reason.
func (s *WorkflowService) Reject(ctx context.Context, actor events.Actor, submissionID, reason string) (*domain.PendingSubmission, error) {
	won, err := s.submissions.TransitionStatus(ctx, submissionID, domain.SubmissionStatusRejected, &reason)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.transitionConflict(ctx, submissionID)
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSubmissionRejected, submissionID, actor, events.SubmissionRejectedPayload{
		Reason: reason,
	})
	return submission, nil
}

// ListPending returns all submissions awaiting review, newest first.
func (s *WorkflowService) ListPending(ctx context.Context) ([]domain.PendingSubmission, error) {
	return s.submissions.ListPending(ctx)
}

// ListForOwner returns the caller's submissions, newest first.
func (s *WorkflowService) ListForOwner(ctx context.Context, ownerID string) ([]domain.PendingSubmission, error) {
	return s.submissions.ListForOwner(ctx, ownerID)
}

// Stats returns submission counts by status.
func (s *WorkflowService) Stats(ctx context.Context) (map[domain.SubmissionStatus]int, error) {
	return s.submissions.CountByStatus(ctx)
}

// transitionConflict distinguishes a lost race from a missing row after
// a conditional update affected nothing.
func (s *WorkflowService) transitionConflict(ctx context.Context, submissionID string) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("submission", map[string]any{"id": submissionID})
		}
		return err
	}
	return apperrors.NewConflict("submission already processed", map[string]any{
		"id":     submissionID,
		"status": submission.Status,
	})
}

func (s *WorkflowService) publish(ctx context.Context, eventType events.EventType, submissionID string, actor events.Actor, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		SubmissionID: submissionID,
		Actor:        actor,
		Timestamp:    time.Now().UTC(),
		Payload:      payload,
	})
}
