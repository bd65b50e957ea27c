package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incident-gateway/internal/domain"
)

// SubmissionRepository encapsulates pending-submission persistence.
//
// TransitionStatus is the approval race's single point of truth: it is a
// conditional update (WHERE status='pending') whose rows-affected count
// decides between success and conflict, so two concurrent approvals of
// the same id cannot both win.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *domain.PendingSubmission) error
	GetByID(ctx context.Context, id string) (*domain.PendingSubmission, error)
	TransitionStatus(ctx context.Context, id string, to domain.SubmissionStatus, rejectReason *string) (bool, error)
	SetExternalID(ctx context.Context, id, externalID string) error
	ListPending(ctx context.Context) ([]domain.PendingSubmission, error)
	ListForOwner(ctx context.Context, ownerID string) ([]domain.PendingSubmission, error)
	CountByStatus(ctx context.Context) (map[domain.SubmissionStatus]int, error)
}

type submissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepository{pool: pool}
}

const submissionColumns = `
        id, owner_id, owner_email, short_description, description,
        priority, urgency, impact, category, caller_id,
        status, reject_reason, external_id, created_at`

func (r *submissionRepository) Create(ctx context.Context, submission *domain.PendingSubmission) error {
	const query = `
        INSERT INTO pending_submissions
            (owner_id, owner_email, short_description, description,
             priority, urgency, impact, category, caller_id, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		submission.OwnerID,
		submission.OwnerEmail,
		submission.ShortDescription,
		submission.Description,
		submission.Priority,
		submission.Urgency,
		submission.Impact,
		submission.Category,
		submission.CallerID,
		submission.Status,
	).Scan(&submission.ID, &submission.CreatedAt)
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*domain.PendingSubmission, error) {
	const query = `SELECT` + submissionColumns + ` FROM pending_submissions WHERE id=$1`

	var submission domain.PendingSubmission
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&submission.ID,
		&submission.OwnerID,
		&submission.OwnerEmail,
		&submission.ShortDescription,
		&submission.Description,
		&submission.Priority,
		&submission.Urgency,
		&submission.Impact,
		&submission.Category,
		&submission.CallerID,
		&submission.Status,
		&submission.RejectReason,
		&submission.ExternalID,
		&submission.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) TransitionStatus(ctx context.Context, id string, to domain.SubmissionStatus, rejectReason *string) (bool, error) {
	const query = `
        UPDATE pending_submissions
        SET status=$1, reject_reason=$2
        WHERE id=$3 AND status=$4`

	cmd, err := r.pool.Exec(ctx, query, to, rejectReason, id, domain.SubmissionStatusPending)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *submissionRepository) SetExternalID(ctx context.Context, id, externalID string) error {
	const query = `UPDATE pending_submissions SET external_id=$1 WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, externalID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *submissionRepository) ListPending(ctx context.Context) ([]domain.PendingSubmission, error) {
	const query = `SELECT` + submissionColumns + `
        FROM pending_submissions WHERE status=$1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, domain.SubmissionStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (r *submissionRepository) ListForOwner(ctx context.Context, ownerID string) ([]domain.PendingSubmission, error) {
	const query = `SELECT` + submissionColumns + `
        FROM pending_submissions WHERE owner_id=$1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (r *submissionRepository) CountByStatus(ctx context.Context) (map[domain.SubmissionStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM pending_submissions GROUP BY status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.SubmissionStatus]int)
	for rows.Next() {
		var status domain.SubmissionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanSubmissions(rows pgx.Rows) ([]domain.PendingSubmission, error) {
	var result []domain.PendingSubmission
	for rows.Next() {
		var submission domain.PendingSubmission
		if err := rows.Scan(
			&submission.ID,
			&submission.OwnerID,
			&submission.OwnerEmail,
			&submission.ShortDescription,
			&submission.Description,
			&submission.Priority,
			&submission.Urgency,
			&submission.Impact,
			&submission.Category,
			&submission.CallerID,
			&submission.Status,
			&submission.RejectReason,
			&submission.ExternalID,
			&submission.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, submission)
	}
	return result, rows.Err()
}
