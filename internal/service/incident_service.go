package service

import (
	"context"

	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/servicenow"
)

// TicketBridge is the incident backend as consumed by the services. The
// servicenow.Client satisfies it; tests substitute fakes.
type TicketBridge interface {
	Fetch(ctx context.Context, limit int, query string) ([]domain.IncidentRecord, error)
	Get(ctx context.Context, idOrNumber string) (*domain.IncidentRecord, error)
	Create(ctx context.Context, fields domain.IncidentFields) (*domain.IncidentRecord, error)
	Update(ctx context.Context, idOrNumber string, fields domain.IncidentFields) (*domain.IncidentRecord, error)
	Delete(ctx context.Context, idOrNumber string) error
	Assign(ctx context.Context, idOrNumber, assignee string) (*domain.IncidentRecord, error)
	Resolve(ctx context.Context, idOrNumber, notes string) (*domain.IncidentRecord, error)
}

// IncidentService is the single backend shared by both transport
// facades. The REST handlers and the protocol tools are thin adapters
// over these methods, so validation and error mapping cannot diverge
// between them.
type IncidentService struct {
	bridge TicketBridge
}

// NewIncidentService builds the service.
func NewIncidentService(bridge TicketBridge) *IncidentService {
	return &IncidentService{bridge: bridge}
}

// List fetches incidents, conjoining the free-form query with an
// optional priority constraint.
func (s *IncidentService) List(ctx context.Context, limit int, query, priority string) ([]domain.IncidentRecord, error) {
	return s.bridge.Fetch(ctx, limit, servicenow.ComposeQuery(query, priority))
}

// Get resolves an incident by sys id or number.
func (s *IncidentService) Get(ctx context.Context, idOrNumber string) (*domain.IncidentRecord, error) {
	return s.bridge.Get(ctx, idOrNumber)
}

// Create opens a new incident.
func (s *IncidentService) Create(ctx context.Context, fields domain.IncidentFields) (*domain.IncidentRecord, error) {
	return s.bridge.Create(ctx, fields)
}

// Update patches an incident.
func (s *IncidentService) Update(ctx context.Context, idOrNumber string, fields domain.IncidentFields) (*domain.IncidentRecord, error) {
	return s.bridge.Update(ctx, idOrNumber, fields)
}

// Delete removes an incident.
func (s *IncidentService) Delete(ctx context.Context, idOrNumber string) error {
	return s.bridge.Delete(ctx, idOrNumber)
}

// Assign routes an incident to an assignee.
func (s *IncidentService) Assign(ctx context.Context, idOrNumber, assignee string) (*domain.IncidentRecord, error) {
	return s.bridge.Assign(ctx, idOrNumber, assignee)
}

// Resolve closes out an incident with notes.
func (s *IncidentService) Resolve(ctx context.Context, idOrNumber, notes string) (*domain.IncidentRecord, error) {
	return s.bridge.Resolve(ctx, idOrNumber, notes)
}
