package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/observability"
)

// AssignmentPayload is the denormalized ticket+property snapshot an
// assignment notification carries.
type AssignmentPayload struct {
	TicketID     string
	Category     string
	Urgency      int
	Description  string
	UnitNumber   string
	PropertyID   string
	PropertyName string
	Address      string
}

func (p AssignmentPayload) data() map[string]any {
	return map[string]any{
		"ticketId":     p.TicketID,
		"category":     p.Category,
		"urgency":      p.Urgency,
		"description":  p.Description,
		"unitNumber":   p.UnitNumber,
		"propertyId":   p.PropertyID,
		"propertyName": p.PropertyName,
		"address":      p.Address,
	}
}

// Dispatcher resolves a contractor's delivery channels and emits outbound
// notifications. Best-effort: failures are logged and never reach the
// ticket's state path.
type Dispatcher struct {
	store   docstore.Store
	email   EmailSender
	push    Pusher
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Dependencies bundles collaborators for the dispatcher.
type Dependencies struct {
	Store   docstore.Store
	Email   EmailSender
	Push    Pusher
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewDispatcher creates the dispatcher. Email and Push may be nil, which
// disables those channels.
func NewDispatcher(deps Dependencies) *Dispatcher {
	return &Dispatcher{
		store:   deps.Store,
		email:   deps.Email,
		push:    deps.Push,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
}

// DispatchAssignment writes the in-app notification and attempts email and
// push delivery to the assigned contractor.
func (d *Dispatcher) DispatchAssignment(ctx context.Context, contractor *domain.ContractorProfile, payload AssignmentPayload) {
	if d.writeFeedEntry(ctx, contractor.ID, payload) {
		d.sendEmail(ctx, contractor, payload)
		d.sendPush(ctx, contractor.ID, payload)
		d.metrics.RecordStage(observability.StageNotified)
	}
}

// writeFeedEntry creates the Notification document under a deterministic id
// so a redelivered assignment event cannot produce a second feed entry.
// Returns false when the entry already exists.
func (d *Dispatcher) writeFeedEntry(ctx context.Context, contractorID string, payload AssignmentPayload) bool {
	notificationID := fmt.Sprintf("assignment-%s-%s", payload.TicketID, contractorID)

	if _, err := d.store.Get(ctx, domain.CollectionNotifications, notificationID); err == nil {
		d.logger.Info("assignment notification already delivered",
			zap.String("ticket_id", payload.TicketID),
			zap.String("contractor_id", contractorID))
		return false
	} else if !errors.Is(err, docstore.ErrNotFound) {
		d.logger.Warn("notification lookup failed", zap.String("ticket_id", payload.TicketID), zap.Error(err))
	}

	notification := &domain.Notification{
		UserID:    contractorID,
		UserRole:  "contractor",
		Type:      domain.NotificationAssignment,
		Data:      payload.data(),
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := d.store.Create(ctx, domain.CollectionNotifications, notificationID, notification.ToFields()); err != nil {
		d.logger.Error("notification write failed",
			zap.String("ticket_id", payload.TicketID),
			zap.String("contractor_id", contractorID),
			zap.Error(err))
	}
	return true
}

func (d *Dispatcher) sendEmail(ctx context.Context, contractor *domain.ContractorProfile, payload AssignmentPayload) {
	if d.email == nil || contractor.Email == "" {
		return
	}
	subject := fmt.Sprintf("New %s job assigned: %s", payload.Category, payload.PropertyName)
	body := fmt.Sprintf(
		"You have been assigned a maintenance job.\n\nCategory: %s\nUrgency: %d/5\nProperty: %s, unit %s\nAddress: %s\n\n%s\n",
		payload.Category, payload.Urgency, payload.PropertyName, payload.UnitNumber, payload.Address, payload.Description)
	if err := d.email.Send(ctx, contractor.Email, subject, body); err != nil {
		d.logger.Warn("email delivery failed",
			zap.String("ticket_id", payload.TicketID),
			zap.String("contractor_id", contractor.ID),
			zap.Error(err))
	}
}

// sendPush builds one multi-token message from the contractor's registered
// tokens and prunes tokens the provider reports as unregistered.
func (d *Dispatcher) sendPush(ctx context.Context, contractorID string, payload AssignmentPayload) {
	if d.push == nil {
		return
	}

	docs, err := d.store.Query(ctx, domain.CollectionFcmTokens, docstore.Query{
		FieldEquals: map[string]any{"userId": contractorID},
	})
	if err != nil {
		d.logger.Warn("token lookup failed", zap.String("contractor_id", contractorID), zap.Error(err))
		return
	}
	if len(docs) == 0 {
		return
	}

	tokens := make([]string, 0, len(docs))
	docByToken := make(map[string]string, len(docs))
	for i := range docs {
		registration, err := domain.FcmTokenFromFields(docs[i].ID, docs[i].Fields)
		if err != nil {
			continue
		}
		tokens = append(tokens, registration.Token)
		docByToken[registration.Token] = registration.ID
	}
	if len(tokens) == 0 {
		return
	}

	message := PushMessage{
		Title: payload.Category,
		Body:  fmt.Sprintf("Urgency %d/5 %s job at %s", payload.Urgency, payload.Category, payload.PropertyName),
		Data: map[string]string{
			"ticketId": payload.TicketID,
			"type":     string(domain.NotificationAssignment),
		},
	}
	for _, result := range d.push.Send(ctx, tokens, message) {
		if result.Err == nil {
			continue
		}
		d.logger.Warn("push delivery failed",
			zap.String("contractor_id", contractorID),
			zap.Bool("unregistered", result.Unregistered),
			zap.Error(result.Err))
		if result.Unregistered {
			if docID, ok := docByToken[result.Token]; ok {
				if err := d.store.Delete(ctx, domain.CollectionFcmTokens, docID); err != nil {
					d.logger.Warn("token prune failed", zap.String("doc_id", docID), zap.Error(err))
				}
			}
		}
	}
}
