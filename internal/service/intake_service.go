package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// IntakeService handles the system-boundary operations around the dispatch
// workflow: ticket submission, the external assignment action, and push
// token registration. The workflow itself never goes through this service;
// it reacts to the document changes these operations produce.
type IntakeService struct {
	store docstore.Store
	now   func() time.Time
}

// NewIntakeService creates the service.
func NewIntakeService(store docstore.Store) *IntakeService {
	return &IntakeService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// TicketCreateInput describes a submitted maintenance request.
type TicketCreateInput struct {
	PropertyID  string
	UnitNumber  string
	Description string
}

// CreateTicket validates the submission and writes the initial ticket
// document; the resulting change event starts the workflow.
func (s *IntakeService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.PropertyID) == "" {
		return nil, apperrors.NewValidationError("property_id required", nil)
	}
	if _, err := s.store.Get(ctx, domain.CollectionProperties, input.PropertyID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFound("property", map[string]any{"property_id": input.PropertyID})
		}
		return nil, apperrors.MapError(err)
	}

	doc, err := s.store.Create(ctx, domain.CollectionTickets, "", map[string]any{
		"propertyId":  input.PropertyID,
		"unitNumber":  input.UnitNumber,
		"description": input.Description,
		"status":      string(domain.StatusPendingClassification),
		"createdAt":   s.now(),
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket, err := domain.TicketFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetTicket returns the current workflow state of a ticket.
func (s *IntakeService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	doc, err := s.store.Get(ctx, domain.CollectionTickets, ticketID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	ticket, err := domain.TicketFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// AssignTicket applies the external assignment action: it guards the ticket
// is assignable, then sets assignedTo and moves status to assigned. The
// workflow observes the change and notifies the contractor.
func (s *IntakeService) AssignTicket(ctx context.Context, ticketID, contractorID string) (*domain.Ticket, error) {
	if strings.TrimSpace(contractorID) == "" {
		return nil, apperrors.NewValidationError("contractor_id required", nil)
	}
	if _, err := s.store.Get(ctx, domain.CollectionContractors, contractorID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFound("contractor", map[string]any{"contractor_id": contractorID})
		}
		return nil, apperrors.MapError(err)
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.Assignable() {
		return nil, apperrors.NewConflict("ticket not assignable", map[string]any{
			"ticket_id": ticketID,
			"status":    string(ticket.Status),
		})
	}

	doc, err := s.store.Update(ctx, domain.CollectionTickets, ticketID, map[string]any{
		"assignedTo": contractorID,
		"status":     string(domain.StatusAssigned),
		"assignedAt": s.now(),
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	updated, err := domain.TicketFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return updated, nil
}

// RegisterFcmToken stores one push device token for a contractor. Repeated
// registration of the same token is deduplicated by the token value.
func (s *IntakeService) RegisterFcmToken(ctx context.Context, contractorID, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.NewValidationError("token required", nil)
	}

	existing, err := s.store.Query(ctx, domain.CollectionFcmTokens, docstore.Query{
		FieldEquals: map[string]any{"userId": contractorID, "token": token},
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if len(existing) > 0 {
		return nil
	}

	registration := &domain.FcmToken{
		UserID:    contractorID,
		Token:     token,
		CreatedAt: s.now(),
	}
	if _, err := s.store.Create(ctx, domain.CollectionFcmTokens, "", registration.ToFields()); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}
