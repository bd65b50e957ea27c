package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-gateway/internal/api/dto"
	"github.com/spec-kit/incident-gateway/internal/auth"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/events"
	"github.com/spec-kit/incident-gateway/internal/service"
	apperrors "github.com/spec-kit/incident-gateway/pkg/util"
)

// SubmissionsHandler exposes the approval workflow.
type SubmissionsHandler struct {
	workflow *service.WorkflowService
}

// NewSubmissionsHandler constructs handler.
func NewSubmissionsHandler(workflow *service.WorkflowService) *SubmissionsHandler {
	return &SubmissionsHandler{workflow: workflow}
}

// Submit POST /submissions.
func (h *SubmissionsHandler) Submit(c *fiber.Ctx) error {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SubmissionRequest
	if err := dto.Strict(c.Body(), &req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}

	submission, err := h.workflow.Submit(c.Context(), actorFromSession(session), service.SubmissionInput{
		ShortDescription: req.ShortDescription,
		Description:      req.Description,
		Priority:         req.Priority,
		Urgency:          req.Urgency,
		Impact:           req.Impact,
		Category:         req.Category,
		CallerID:         req.CallerID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NewSubmissionResponse(submission),
	})
}

// Mine GET /submissions/mine.
func (h *SubmissionsHandler) Mine(c *fiber.Ctx) error {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	submissions, err := h.workflow.ListForOwner(c.Context(), session.SubjectID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": submissionList(submissions)})
}

// Pending GET /submissions/pending.
func (h *SubmissionsHandler) Pending(c *fiber.Ctx) error {
	submissions, err := h.workflow.ListPending(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": submissionList(submissions)})
}

// Stats GET /submissions/stats.
func (h *SubmissionsHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.workflow.Stats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"pending":  counts[domain.SubmissionStatusPending],
		"approved": counts[domain.SubmissionStatusApproved],
		"rejected": counts[domain.SubmissionStatusRejected],
	}})
}

// Approve POST /submissions/:id/approve.
func (h *SubmissionsHandler) Approve(c *fiber.Ctx) error {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	result, err := h.workflow.Approve(c.Context(), actorFromSession(session), c.Params("id"))
	if err != nil {
		return err
	}

	payload := fiber.Map{"submission": dto.NewSubmissionResponse(result.Submission)}
	if result.Incident != nil {
		payload["incident"] = result.Incident
	}
	if result.UpstreamError != "" {
		payload["upstream_error"] = result.UpstreamError
	}
	return c.JSON(fiber.Map{"data": payload})
}

// Reject POST /submissions/:id/reject.
func (h *SubmissionsHandler) Reject(c *fiber.Ctx) error {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.RejectRequest
	if len(c.Body()) > 0 {
		if err := dto.Strict(c.Body(), &req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	submission, err := h.workflow.Reject(c.Context(), actorFromSession(session), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSubmissionResponse(submission)})
}

func actorFromSession(session *auth.Session) events.Actor {
	return events.Actor{ID: session.SubjectID, Email: session.Email, Role: session.Role}
}

func submissionList(submissions []domain.PendingSubmission) []dto.SubmissionResponse {
	items := make([]dto.SubmissionResponse, 0, len(submissions))
	for i := range submissions {
		items = append(items, dto.NewSubmissionResponse(&submissions[i]))
	}
	return items
}
