package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/classifier"
	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/notify"
	"github.com/spec-kit/maintenance-dispatch/internal/observability"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

const noDescriptionError = "No description provided"

// ContractorMatcher ranks up to three candidate contractors for a
// classified ticket.
type ContractorMatcher interface {
	Match(ctx context.Context, category, landlordID, propertyID string, urgency int) ([]string, error)
}

// AssignmentNotifier delivers the assignment notification, best-effort.
type AssignmentNotifier interface {
	DispatchAssignment(ctx context.Context, contractor *domain.ContractorProfile, payload notify.AssignmentPayload)
}

// Controller is the ticket dispatch state machine. It reacts to document
// change events on the tickets collection and applies guarded transitions:
// every stage re-reads the live ticket and re-validates its precondition
// before writing, so at-least-once, out-of-order event delivery cannot
// advance a ticket twice.
type Controller struct {
	store      docstore.Store
	classifier classifier.Classifier
	matcher    ContractorMatcher
	notifier   AssignmentNotifier
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// Dependencies bundles collaborators for the controller.
type Dependencies struct {
	Store      docstore.Store
	Classifier classifier.Classifier
	Matcher    ContractorMatcher
	Notifier   AssignmentNotifier
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// NewController creates the controller.
func NewController(deps Dependencies) *Controller {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:      deps.Store,
		classifier: deps.Classifier,
		matcher:    deps.Matcher,
		notifier:   deps.Notifier,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        now,
	}
}

// Handler adapts the controller to the change-event bus.
func (c *Controller) Handler() events.Handler {
	return c.HandleChange
}

// Trigger adapts the controller to a store's trigger registry.
func (c *Controller) Trigger() docstore.TriggerFunc {
	return func(ctx context.Context, before, after *docstore.Document, id string) error {
		return c.HandleChange(ctx, events.FromSnapshots(before, after, id))
	}
}

// HandleChange routes one ticket change event to the stage whose trigger
// condition it satisfies. A retryable error asks the transport to redeliver;
// any other outcome acknowledges the event.
func (c *Controller) HandleChange(ctx context.Context, event events.ChangeEvent) error {
	if event.Collection != "" && event.Collection != domain.CollectionTickets {
		return nil
	}
	after, err := domain.TicketFromFields(event.DocID, event.After)
	if err != nil {
		c.logger.Error("undecodable ticket snapshot, dropping event",
			zap.String("ticket_id", event.DocID), zap.Error(err))
		return nil
	}

	var before *domain.Ticket
	if event.Before != nil {
		before, err = domain.TicketFromFields(event.DocID, event.Before)
		if err != nil {
			c.logger.Error("undecodable before snapshot, dropping event",
				zap.String("ticket_id", event.DocID), zap.Error(err))
			return nil
		}
	}

	switch {
	case before == nil && after.Status == domain.StatusPendingClassification:
		return c.classifyStage(ctx, after)
	case before != nil && before.Status != after.Status && after.Status == domain.StatusReadyToDispatch:
		return c.matchStage(ctx, after)
	case after.Status == domain.StatusAssigned && after.AssignedTo != nil && assignmentChanged(before, after):
		return c.assignmentStage(ctx, after)
	default:
		return nil
	}
}

// assignmentChanged reports whether this event represents a new assignment
// rather than an unrelated write to an already-assigned ticket.
func assignmentChanged(before, after *domain.Ticket) bool {
	if before == nil {
		return true
	}
	if before.Status != domain.StatusAssigned {
		return true
	}
	return before.AssignedTo == nil || *before.AssignedTo != *after.AssignedTo
}

// classifyStage moves a newly submitted ticket through classification.
func (c *Controller) classifyStage(ctx context.Context, snapshot *domain.Ticket) error {
	live, err := c.reload(ctx, snapshot.ID)
	if err != nil {
		return err
	}
	if live.Status != domain.StatusPendingClassification {
		// already advanced by an earlier delivery of this event
		c.metrics.RecordStage(observability.StageSkipped)
		return nil
	}

	if strings.TrimSpace(live.Description) == "" {
		c.logger.Info("ticket has no description",
			zap.String("ticket_id", live.ID))
		return c.failTicket(ctx, live.ID, domain.StatusClassificationFailed, "classificationError", noDescriptionError)
	}

	result, err := c.classifier.Classify(ctx, live.Description)
	if err != nil {
		// absorbed: the ticket must land in a terminal, inspectable
		// state instead of looping on a permanently failing call
		c.logger.Warn("classification failed",
			zap.String("ticket_id", live.ID), zap.Error(err))
		return c.failTicket(ctx, live.ID, domain.StatusClassificationFailed, "classificationError", err.Error())
	}

	if _, err := c.store.Update(ctx, domain.CollectionTickets, live.ID, map[string]any{
		"category":     result.Category,
		"urgency":      result.Urgency,
		"status":       string(domain.StatusReadyToDispatch),
		"classifiedAt": c.now(),
	}); err != nil {
		return apperrors.NewRetryable("write classification result", err)
	}
	c.metrics.RecordStage(observability.StageClassified)
	c.logger.Info("ticket classified",
		zap.String("ticket_id", live.ID),
		zap.String("category", result.Category),
		zap.Int("urgency", result.Urgency))
	return nil
}

// matchStage runs contractor matching for a freshly classified ticket.
func (c *Controller) matchStage(ctx context.Context, snapshot *domain.Ticket) error {
	live, err := c.reload(ctx, snapshot.ID)
	if err != nil {
		return err
	}
	if live.Status != domain.StatusReadyToDispatch {
		c.metrics.RecordStage(observability.StageSkipped)
		return nil
	}

	if live.Category == nil || *live.Category == "" {
		return c.failTicket(ctx, live.ID, domain.StatusMatchingFailed, "matchingError", "Ticket has no category")
	}
	urgency := 0
	if live.Urgency != nil {
		urgency = *live.Urgency
	}

	property, err := c.loadProperty(ctx, live.PropertyID)
	if err != nil {
		return err
	}

	matches, err := c.matcher.Match(ctx, *live.Category, property.LandlordID, live.PropertyID, urgency)
	if err != nil {
		c.logger.Warn("matching failed",
			zap.String("ticket_id", live.ID), zap.Error(err))
		return c.failTicket(ctx, live.ID, domain.StatusMatchingFailed, "matchingError", err.Error())
	}

	if len(matches) == 0 {
		if _, err := c.store.Update(ctx, domain.CollectionTickets, live.ID, map[string]any{
			"status":            string(domain.StatusNeedsManualAssignment),
			"matchingAttempted": true,
			"matchedAt":         c.now(),
		}); err != nil {
			return apperrors.NewRetryable("write matching result", err)
		}
		c.metrics.RecordStage(observability.StageManualAssignment)
		c.logger.Info("no contractors matched",
			zap.String("ticket_id", live.ID), zap.String("category", *live.Category))
		return nil
	}

	if _, err := c.store.Update(ctx, domain.CollectionTickets, live.ID, map[string]any{
		"recommendedContractors": matches,
		"status":                 string(domain.StatusReadyToAssign),
		"matchedAt":              c.now(),
	}); err != nil {
		return apperrors.NewRetryable("write matching result", err)
	}
	c.metrics.RecordStage(observability.StageMatched)
	c.logger.Info("contractors matched",
		zap.String("ticket_id", live.ID),
		zap.Strings("contractors", matches))
	return nil
}

// assignmentStage notifies the contractor a ticket was assigned to. The
// ticket's state is already authoritative; nothing here may roll it back.
func (c *Controller) assignmentStage(ctx context.Context, snapshot *domain.Ticket) error {
	live, err := c.reload(ctx, snapshot.ID)
	if err != nil {
		return err
	}
	if live.Status != domain.StatusAssigned || live.AssignedTo == nil || *live.AssignedTo != *snapshot.AssignedTo {
		c.metrics.RecordStage(observability.StageSkipped)
		return nil
	}

	contractorDoc, err := c.store.Get(ctx, domain.CollectionContractors, *live.AssignedTo)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperrors.NewNotFound("contractor", map[string]any{"contractor_id": *live.AssignedTo})
		}
		return apperrors.NewRetryable("load contractor", err)
	}
	contractor, err := domain.ContractorFromFields(contractorDoc.ID, contractorDoc.Fields)
	if err != nil {
		return apperrors.NewRetryable("decode contractor", err)
	}

	property, err := c.loadProperty(ctx, live.PropertyID)
	if err != nil {
		return err
	}

	category := ""
	if live.Category != nil {
		category = *live.Category
	}
	urgency := 0
	if live.Urgency != nil {
		urgency = *live.Urgency
	}
	payload := notify.AssignmentPayload{
		TicketID:     live.ID,
		Category:     category,
		Urgency:      urgency,
		Description:  live.Description,
		UnitNumber:   live.UnitNumber,
		PropertyID:   property.ID,
		PropertyName: property.PropertyName,
		Address:      formatAddress(property.Address),
	}

	c.notifier.DispatchAssignment(ctx, contractor, payload)
	c.metrics.RecordStage(observability.StageAssigned)
	c.logger.Info("assignment notified",
		zap.String("ticket_id", live.ID),
		zap.String("contractor_id", contractor.ID))
	return nil
}

// reload fetches the current ticket document so stage guards run against
// live state rather than the possibly stale event snapshot.
func (c *Controller) reload(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	doc, err := c.store.Get(ctx, domain.CollectionTickets, ticketID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewRetryable("load ticket", err)
	}
	ticket, err := domain.TicketFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, apperrors.NewRetryable("decode ticket", err)
	}
	return ticket, nil
}

func (c *Controller) loadProperty(ctx context.Context, propertyID string) (*domain.Property, error) {
	doc, err := c.store.Get(ctx, domain.CollectionProperties, propertyID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFound("property", map[string]any{"property_id": propertyID})
		}
		return nil, apperrors.NewRetryable("load property", err)
	}
	property, err := domain.PropertyFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, apperrors.NewRetryable("decode property", err)
	}
	return property, nil
}

// failTicket records a terminal failure status and its human-readable cause
// on the ticket, the sole error-reporting surface of the workflow.
func (c *Controller) failTicket(ctx context.Context, ticketID string, status domain.TicketStatus, errorField, message string) error {
	if _, err := c.store.Update(ctx, domain.CollectionTickets, ticketID, map[string]any{
		"status":   string(status),
		errorField: message,
	}); err != nil {
		return apperrors.NewRetryable("write failure status", err)
	}
	switch status {
	case domain.StatusClassificationFailed:
		c.metrics.RecordStage(observability.StageClassificationFailed)
	case domain.StatusMatchingFailed:
		c.metrics.RecordStage(observability.StageMatchingFailed)
	}
	return nil
}

func formatAddress(a domain.Address) string {
	return fmt.Sprintf("%s, %s, %s %s", a.Street, a.City, a.State, a.Zip)
}
