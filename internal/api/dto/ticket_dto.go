package dto

import (
	"time"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// CreateTicketRequest is the intake payload submitted when a tenant or
// landlord reports a maintenance issue.
type CreateTicketRequest struct {
	PropertyID  string `json:"property_id"`
	UnitNumber  string `json:"unit_number"`
	Description string `json:"description"`
}

// AssignTicketRequest is the external assignment action payload.
type AssignTicketRequest struct {
	ContractorID string `json:"contractor_id"`
}

// RegisterTokenRequest registers one push device token for a contractor.
type RegisterTokenRequest struct {
	Token string `json:"token"`
}

// TicketResponse is the workflow-state view of a ticket.
type TicketResponse struct {
	ID                     string              `json:"id"`
	PropertyID             string              `json:"property_id"`
	UnitNumber             string              `json:"unit_number,omitempty"`
	Description            string              `json:"description"`
	Category               *string             `json:"category,omitempty"`
	Urgency                *int                `json:"urgency,omitempty"`
	Status                 domain.TicketStatus `json:"status"`
	AssignedTo             *string             `json:"assigned_to,omitempty"`
	RecommendedContractors []string            `json:"recommended_contractors,omitempty"`
	ClassificationError    *string             `json:"classification_error,omitempty"`
	MatchingError          *string             `json:"matching_error,omitempty"`
	ClassifiedAt           *time.Time          `json:"classified_at,omitempty"`
	MatchedAt              *time.Time          `json:"matched_at,omitempty"`
	AssignedAt             *time.Time          `json:"assigned_at,omitempty"`
	CreatedAt              time.Time           `json:"created_at"`
}

// FromTicket maps the domain ticket onto the response shape.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                     ticket.ID,
		PropertyID:             ticket.PropertyID,
		UnitNumber:             ticket.UnitNumber,
		Description:            ticket.Description,
		Category:               ticket.Category,
		Urgency:                ticket.Urgency,
		Status:                 ticket.Status,
		AssignedTo:             ticket.AssignedTo,
		RecommendedContractors: ticket.RecommendedContractors,
		ClassificationError:    ticket.ClassificationError,
		MatchingError:          ticket.MatchingError,
		ClassifiedAt:           ticket.ClassifiedAt,
		MatchedAt:              ticket.MatchedAt,
		AssignedAt:             ticket.AssignedAt,
		CreatedAt:              ticket.CreatedAt,
	}
}
