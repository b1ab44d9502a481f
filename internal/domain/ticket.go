package domain

import "time"

// Collection names in the document store.
const (
	CollectionTickets       = "tickets"
	CollectionProperties    = "properties"
	CollectionLandlords     = "landlordProfiles"
	CollectionContractors   = "contractorProfiles"
	CollectionNotifications = "notifications"
	CollectionFcmTokens     = "fcmTokens"
)

// TicketStatus enumerates lifecycle states for maintenance tickets.
type TicketStatus string

const (
	StatusPendingClassification TicketStatus = "pending_classification"
	StatusReadyToDispatch       TicketStatus = "ready_to_dispatch"
	StatusReadyToAssign         TicketStatus = "ready_to_assign"
	StatusNeedsManualAssignment TicketStatus = "needs_manual_assignment"
	StatusAssigned              TicketStatus = "assigned"
	StatusClassificationFailed  TicketStatus = "classification_failed"
	StatusMatchingFailed        TicketStatus = "matching_failed"
)

// Assignable reports whether an external assignment action may move the
// ticket to assigned.
func (s TicketStatus) Assignable() bool {
	return s == StatusReadyToAssign || s == StatusNeedsManualAssignment
}

// Terminal reports whether the workflow owns no further transition.
func (s TicketStatus) Terminal() bool {
	return s == StatusAssigned || s == StatusClassificationFailed || s == StatusMatchingFailed
}

// Ticket is the aggregate for maintenance requests. It is the only document
// the workflow mutates.
type Ticket struct {
	ID                     string
	PropertyID             string
	UnitNumber             string
	Description            string
	Category               *string
	Urgency                *int
	Status                 TicketStatus
	AssignedTo             *string
	RecommendedContractors []string
	ClassificationError    *string
	MatchingError          *string
	MatchingAttempted      bool
	ClassifiedAt           *time.Time
	MatchedAt              *time.Time
	AssignedAt             *time.Time
	CreatedAt              time.Time
}

// TicketFromFields decodes and validates a raw ticket document.
func TicketFromFields(id string, fields map[string]any) (*Ticket, error) {
	if fields == nil {
		return nil, missingField("status")
	}
	ticket := &Ticket{ID: id}

	var err error
	if ticket.PropertyID, err = fieldString(fields, "propertyId"); err != nil {
		return nil, err
	}
	statusStr, err := fieldString(fields, "status")
	if err != nil {
		return nil, err
	}
	ticket.Status = TicketStatus(statusStr)

	unit, err := fieldOptString(fields, "unitNumber")
	if err != nil {
		return nil, err
	}
	if unit != nil {
		ticket.UnitNumber = *unit
	}
	desc, err := fieldOptString(fields, "description")
	if err != nil {
		return nil, err
	}
	if desc != nil {
		ticket.Description = *desc
	}
	if ticket.Category, err = fieldOptString(fields, "category"); err != nil {
		return nil, err
	}
	if ticket.Urgency, err = fieldOptInt(fields, "urgency"); err != nil {
		return nil, err
	}
	if ticket.AssignedTo, err = fieldOptString(fields, "assignedTo"); err != nil {
		return nil, err
	}
	if ticket.RecommendedContractors, err = fieldStringSlice(fields, "recommendedContractors"); err != nil {
		return nil, err
	}
	if ticket.ClassificationError, err = fieldOptString(fields, "classificationError"); err != nil {
		return nil, err
	}
	if ticket.MatchingError, err = fieldOptString(fields, "matchingError"); err != nil {
		return nil, err
	}
	if ticket.MatchingAttempted, err = fieldBool(fields, "matchingAttempted", false); err != nil {
		return nil, err
	}
	if ticket.ClassifiedAt, err = fieldOptTime(fields, "classifiedAt"); err != nil {
		return nil, err
	}
	if ticket.MatchedAt, err = fieldOptTime(fields, "matchedAt"); err != nil {
		return nil, err
	}
	if ticket.AssignedAt, err = fieldOptTime(fields, "assignedAt"); err != nil {
		return nil, err
	}
	createdAt, err := fieldOptTime(fields, "createdAt")
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		ticket.CreatedAt = *createdAt
	}
	return ticket, nil
}
