package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/events"
	"github.com/spec-kit/incident-gateway/pkg/util"
)

// fakeSubmissionRepo mirrors the conditional-update semantics of the
// real repository: TransitionStatus only succeeds if the row is still
// pending at the moment of the update.
type fakeSubmissionRepo struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*domain.PendingSubmission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{rows: map[string]*domain.PendingSubmission{}}
}

func (f *fakeSubmissionRepo) Create(_ context.Context, submission *domain.PendingSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	submission.ID = fmt.Sprintf("sub-%d", f.seq)
	submission.CreatedAt = time.Now().UTC()
	clone := *submission
	f.rows[submission.ID] = &clone
	return nil
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, id string) (*domain.PendingSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (f *fakeSubmissionRepo) TransitionStatus(_ context.Context, id string, to domain.SubmissionStatus, rejectReason *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Status != domain.SubmissionStatusPending {
		return false, nil
	}
	row.Status = to
	row.RejectReason = rejectReason
	return true, nil
}

func (f *fakeSubmissionRepo) SetExternalID(_ context.Context, id, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	row.ExternalID = &externalID
	return nil
}

func (f *fakeSubmissionRepo) ListPending(_ context.Context) ([]domain.PendingSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.PendingSubmission
	for _, row := range f.rows {
		if row.Status == domain.SubmissionStatusPending {
			result = append(result, *row)
		}
	}
	return result, nil
}

func (f *fakeSubmissionRepo) ListForOwner(_ context.Context, ownerID string) ([]domain.PendingSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.PendingSubmission
	for _, row := range f.rows {
		if row.OwnerID == ownerID {
			result = append(result, *row)
		}
	}
	return result, nil
}

func (f *fakeSubmissionRepo) CountByStatus(_ context.Context) (map[domain.SubmissionStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[domain.SubmissionStatus]int{}
	for _, row := range f.rows {
		counts[row.Status]++
	}
	return counts, nil
}

// fakeBridge scripts Create outcomes and records what it received.
type fakeBridge struct {
	mu        sync.Mutex
	createErr error
	created   []domain.IncidentFields
}

func (f *fakeBridge) Create(_ context.Context, fields domain.IncidentFields) (*domain.IncidentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, fields)
	return &domain.IncidentRecord{
		SysID:            fmt.Sprintf("sys-%d", len(f.created)),
		Number:           fmt.Sprintf("INC%07d", len(f.created)),
		ShortDescription: fields.ShortDescription,
	}, nil
}

func (f *fakeBridge) Fetch(context.Context, int, string) ([]domain.IncidentRecord, error) {
	return nil, nil
}
func (f *fakeBridge) Get(context.Context, string) (*domain.IncidentRecord, error) {
	return nil, util.NewNotFound("incident", nil)
}
func (f *fakeBridge) Update(context.Context, string, domain.IncidentFields) (*domain.IncidentRecord, error) {
	return nil, nil
}
func (f *fakeBridge) Delete(context.Context, string) error { return nil }
func (f *fakeBridge) Assign(context.Context, string, string) (*domain.IncidentRecord, error) {
	return nil, nil
}
func (f *fakeBridge) Resolve(context.Context, string, string) (*domain.IncidentRecord, error) {
	return nil, nil
}

func testActor(role domain.Role) events.Actor {
	return events.Actor{ID: "p-1", Email: "someone@example.test", Role: role}
}

func newWorkflowFixture() (*WorkflowService, *fakeSubmissionRepo, *fakeBridge) {
	repo := newFakeSubmissionRepo()
	bridge := &fakeBridge{}
	svc := NewWorkflowService(repo, bridge, events.NewInMemoryDispatcher(), zap.NewNop())
	return svc, repo, bridge
}

func submitValid(t *testing.T, svc *WorkflowService) *domain.PendingSubmission {
	t.Helper()
	submission, err := svc.Submit(context.Background(), testActor(domain.RoleUser), SubmissionInput{
		ShortDescription: "laptop will not boot",
		Description:      "black screen since this morning",
		Priority:         "2",
	})
	require.NoError(t, err)
	return submission
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newWorkflowFixture()

	_, err := svc.Submit(context.Background(), testActor(domain.RoleUser), SubmissionInput{
		ShortDescription: "   ",
		Description:      "details",
	})
	assert.True(t, util.IsCode(err, "VALIDATION_FAILED"))

	_, err = svc.Submit(context.Background(), testActor(domain.RoleUser), SubmissionInput{
		ShortDescription: "summary",
		Description:      "details",
		Priority:         "7",
	})
	assert.True(t, util.IsCode(err, "VALIDATION_FAILED"))
}

func TestSubmitCreatesPending(t *testing.T) {
	svc, repo, _ := newWorkflowFixture()

	submission := submitValid(t, svc)
	assert.NotEmpty(t, submission.ID)
	assert.Equal(t, domain.SubmissionStatusPending, submission.Status)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, "p-1", stored.OwnerID)
}

func TestApproveCreatesIncident(t *testing.T) {
	svc, repo, bridge := newWorkflowFixture()
	submission := submitValid(t, svc)

	result, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Incident)
	assert.Empty(t, result.UpstreamError)
	assert.Equal(t, domain.SubmissionStatusApproved, result.Submission.Status)
	require.NotNil(t, result.Submission.ExternalID)
	assert.Equal(t, result.Incident.SysID, *result.Submission.ExternalID)

	// Caller falls back to the owner's email when none was supplied.
	require.Len(t, bridge.created, 1)
	assert.Equal(t, "someone@example.test", bridge.created[0].CallerID)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExternalID)
}

func TestApproveTwiceConflicts(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	submission := submitValid(t, svc)

	_, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
	require.Error(t, err)
	assert.True(t, util.IsCode(err, "CONFLICT"))
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	svc, _, bridge := newWorkflowFixture()
	submission := submitValid(t, svc)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case util.IsCode(err, "CONFLICT"):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)
	assert.Len(t, bridge.created, 1, "exactly one incident per submission")
}

func TestApproveUpstreamFailureKeepsApproval(t *testing.T) {
	svc, repo, bridge := newWorkflowFixture()
	bridge.createErr = util.NewUpstreamError(503, "maintenance window")
	submission := submitValid(t, svc)

	result, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Incident)
	assert.Contains(t, result.UpstreamError, "upstream returned 503")

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusApproved, stored.Status)
	assert.Nil(t, stored.ExternalID)
}

func TestRejectRecordsReason(t *testing.T) {
	svc, repo, bridge := newWorkflowFixture()
	submission := submitValid(t, svc)

	rejected, err := svc.Reject(context.Background(), testActor(domain.RoleAdmin), submission.ID, "duplicate of INC0010001")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "duplicate of INC0010001", *rejected.RejectReason)
	assert.Empty(t, bridge.created)

	_, err = repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
}

func TestRejectAfterApproveConflicts(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	submission := submitValid(t, svc)

	_, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), testActor(domain.RoleAdmin), submission.ID, "nope")
	assert.True(t, util.IsCode(err, "CONFLICT"))
}

func TestApproveUnknownSubmission(t *testing.T) {
	svc, _, _ := newWorkflowFixture()

	_, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), "missing")
	assert.True(t, util.IsCode(err, "NOT_FOUND"))
}

func TestWorkflowEventsPublished(t *testing.T) {
	repo := newFakeSubmissionRepo()
	bridge := &fakeBridge{}
	dispatcher := events.NewInMemoryDispatcher()

	var mu sync.Mutex
	var seen []events.EventType
	record := func(_ context.Context, event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Type)
		return nil
	}
	dispatcher.Subscribe(events.EventSubmissionReceived, record)
	dispatcher.Subscribe(events.EventSubmissionApproved, record)
	dispatcher.Subscribe(events.EventIncidentCreated, record)

	svc := NewWorkflowService(repo, bridge, dispatcher, zap.NewNop())
	submission := submitValid(t, svc)
	_, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), submission.ID)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{
		events.EventSubmissionReceived,
		events.EventSubmissionApproved,
		events.EventIncidentCreated,
	}, seen)
}

func TestStats(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	first := submitValid(t, svc)
	submitValid(t, svc)

	_, err := svc.Approve(context.Background(), testActor(domain.RoleAdmin), first.ID)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.SubmissionStatusApproved])
	assert.Equal(t, 1, stats[domain.SubmissionStatusPending])
}
