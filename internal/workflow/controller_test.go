package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/classifier"
	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/matcher"
	"github.com/spec-kit/maintenance-dispatch/internal/notify"
	"github.com/spec-kit/maintenance-dispatch/internal/observability"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

type stubClassifier struct {
	result classifier.Result
	err    error
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, description string) (classifier.Result, error) {
	s.calls++
	if s.err != nil {
		return classifier.Result{}, s.err
	}
	return s.result, nil
}

type stubMatcher struct {
	matches []string
	err     error
	calls   int
}

func (s *stubMatcher) Match(ctx context.Context, category, landlordID, propertyID string, urgency int) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

type stubNotifier struct {
	payloads []notify.AssignmentPayload
}

func (s *stubNotifier) DispatchAssignment(ctx context.Context, contractor *domain.ContractorProfile, payload notify.AssignmentPayload) {
	s.payloads = append(s.payloads, payload)
}

type fixture struct {
	store      *docstore.MemoryStore
	classifier *stubClassifier
	matcher    *stubMatcher
	notifier   *stubNotifier
	controller *Controller
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      docstore.NewMemoryStore(nil),
		classifier: &stubClassifier{result: classifier.Result{Category: "plumbing", Urgency: 3}},
		matcher:    &stubMatcher{matches: []string{"c1"}},
		notifier:   &stubNotifier{},
		now:        time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	f.controller = NewController(Dependencies{
		Store:      f.store,
		Classifier: f.classifier,
		Matcher:    f.matcher,
		Notifier:   f.notifier,
		Logger:     zap.NewNop(),
		Metrics:    observability.NewMetrics(),
		Now:        func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) seedProperty(t *testing.T) {
	t.Helper()
	_, err := f.store.Create(context.Background(), domain.CollectionProperties, "p1", map[string]any{
		"landlordId":   "l1",
		"propertyName": "Maple Court",
		"address": map[string]any{
			"street": "12 Maple St", "city": "Springfield", "state": "IL", "zip": "62704",
		},
	})
	require.NoError(t, err)
}

func (f *fixture) seedContractor(t *testing.T, id string) {
	t.Helper()
	_, err := f.store.Create(context.Background(), domain.CollectionContractors, id, map[string]any{
		"name":         "Ace Plumbing",
		"email":        "ace@example.com",
		"skills":       []any{"plumbing"},
		"availability": true,
		"rating":       4.5,
	})
	require.NoError(t, err)
}

func (f *fixture) seedTicket(t *testing.T, id string, fields map[string]any) map[string]any {
	t.Helper()
	doc, err := f.store.Create(context.Background(), domain.CollectionTickets, id, fields)
	require.NoError(t, err)
	return doc.Fields
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	doc, err := f.store.Get(context.Background(), domain.CollectionTickets, id)
	require.NoError(t, err)
	ticket, err := domain.TicketFromFields(doc.ID, doc.Fields)
	require.NoError(t, err)
	return ticket
}

func createEvent(id string, after map[string]any) events.ChangeEvent {
	return events.ChangeEvent{
		ID:         "evt-1",
		Collection: domain.CollectionTickets,
		DocID:      id,
		After:      after,
		OccurredAt: time.Now().UTC(),
	}
}

func updateEvent(id string, before, after map[string]any) events.ChangeEvent {
	event := createEvent(id, after)
	event.Before = before
	return event
}

func TestClassifyStage(t *testing.T) {
	ctx := context.Background()

	t.Run("success sets category urgency and advances", func(t *testing.T) {
		f := newFixture(t)
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId":  "p1",
			"description": "Faucet leaking in unit 4B",
			"status":      string(domain.StatusPendingClassification),
		})

		require.NoError(t, f.controller.HandleChange(ctx, createEvent("t1", after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusReadyToDispatch, ticket.Status)
		require.NotNil(t, ticket.Category)
		assert.Equal(t, "plumbing", *ticket.Category)
		require.NotNil(t, ticket.Urgency)
		assert.Equal(t, 3, *ticket.Urgency)
		require.NotNil(t, ticket.ClassifiedAt)
		assert.True(t, ticket.ClassifiedAt.Equal(f.now))
		assert.Equal(t, 1, f.classifier.calls)
	})

	t.Run("empty description fails without AI call", func(t *testing.T) {
		f := newFixture(t)
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId":  "p1",
			"description": "   ",
			"status":      string(domain.StatusPendingClassification),
		})

		require.NoError(t, f.controller.HandleChange(ctx, createEvent("t1", after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusClassificationFailed, ticket.Status)
		require.NotNil(t, ticket.ClassificationError)
		assert.Equal(t, "No description provided", *ticket.ClassificationError)
		assert.Nil(t, ticket.Category)
		assert.Nil(t, ticket.Urgency)
		assert.Zero(t, f.classifier.calls)
	})

	t.Run("classifier error absorbed into terminal state", func(t *testing.T) {
		f := newFixture(t)
		f.classifier.err = &classifier.ClassificationError{Reason: "urgency out of range"}
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId":  "p1",
			"description": "broken heater",
			"status":      string(domain.StatusPendingClassification),
		})

		require.NoError(t, f.controller.HandleChange(ctx, createEvent("t1", after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusClassificationFailed, ticket.Status)
		require.NotNil(t, ticket.ClassificationError)
		assert.Contains(t, *ticket.ClassificationError, "urgency out of range")
	})

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		f := newFixture(t)
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId":  "p1",
			"description": "clogged drain",
			"status":      string(domain.StatusPendingClassification),
		})
		event := createEvent("t1", after)

		require.NoError(t, f.controller.HandleChange(ctx, event))
		first := f.ticket(t, "t1")
		require.NoError(t, f.controller.HandleChange(ctx, event))
		second := f.ticket(t, "t1")

		assert.Equal(t, 1, f.classifier.calls)
		assert.Equal(t, first, second)
	})

	t.Run("stale snapshot yields silent no-op", func(t *testing.T) {
		f := newFixture(t)
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId":  "p1",
			"description": "leak",
			"status":      string(domain.StatusPendingClassification),
		})
		_, err := f.store.Update(ctx, domain.CollectionTickets, "t1", map[string]any{
			"status": string(domain.StatusReadyToAssign),
		})
		require.NoError(t, err)

		require.NoError(t, f.controller.HandleChange(ctx, createEvent("t1", after)))
		assert.Zero(t, f.classifier.calls)
		assert.Equal(t, domain.StatusReadyToAssign, f.ticket(t, "t1").Status)
	})

	t.Run("missing ticket surfaces retryable error", func(t *testing.T) {
		f := newFixture(t)
		err := f.controller.HandleChange(ctx, createEvent("ghost", map[string]any{
			"propertyId": "p1",
			"status":     string(domain.StatusPendingClassification),
		}))
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestMatchStage(t *testing.T) {
	ctx := context.Background()

	newClassifiedTicket := func(f *fixture, t *testing.T) (map[string]any, map[string]any) {
		before := map[string]any{
			"propertyId":  "p1",
			"description": "leak",
			"status":      string(domain.StatusPendingClassification),
		}
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId":  "p1",
			"description": "leak",
			"category":    "plumbing",
			"urgency":     3,
			"status":      string(domain.StatusReadyToDispatch),
		})
		return before, after
	}

	t.Run("matches advance to ready_to_assign", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		f.matcher.matches = []string{"c1", "c2"}
		before, after := newClassifiedTicket(f, t)

		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", before, after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusReadyToAssign, ticket.Status)
		assert.Equal(t, []string{"c1", "c2"}, ticket.RecommendedContractors)
		require.NotNil(t, ticket.MatchedAt)
	})

	t.Run("zero matches means manual assignment", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		f.matcher.matches = nil
		before, after := newClassifiedTicket(f, t)

		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", before, after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusNeedsManualAssignment, ticket.Status)
		assert.True(t, ticket.MatchingAttempted)
		require.NotNil(t, ticket.MatchedAt)
		assert.Empty(t, ticket.RecommendedContractors)
	})

	t.Run("matcher error absorbed into matching_failed", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		f.matcher.err = errors.New("store exploded")
		before, after := newClassifiedTicket(f, t)

		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", before, after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusMatchingFailed, ticket.Status)
		require.NotNil(t, ticket.MatchingError)
		assert.Contains(t, *ticket.MatchingError, "store exploded")
	})

	t.Run("missing category fails matching", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		before := map[string]any{
			"propertyId": "p1",
			"status":     string(domain.StatusPendingClassification),
		}
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId": "p1",
			"status":     string(domain.StatusReadyToDispatch),
		})

		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", before, after)))

		ticket := f.ticket(t, "t1")
		assert.Equal(t, domain.StatusMatchingFailed, ticket.Status)
		require.NotNil(t, ticket.MatchingError)
		assert.Zero(t, f.matcher.calls)
	})

	t.Run("missing property is retryable", func(t *testing.T) {
		f := newFixture(t)
		before, after := newClassifiedTicket(f, t)

		err := f.controller.HandleChange(ctx, updateEvent("t1", before, after))
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
		// ticket untouched, retry can still run
		assert.Equal(t, domain.StatusReadyToDispatch, f.ticket(t, "t1").Status)
	})

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		before, after := newClassifiedTicket(f, t)
		event := updateEvent("t1", before, after)

		require.NoError(t, f.controller.HandleChange(ctx, event))
		require.NoError(t, f.controller.HandleChange(ctx, event))
		assert.Equal(t, 1, f.matcher.calls)
	})
}

func TestAssignmentStage(t *testing.T) {
	ctx := context.Background()

	seedAssigned := func(f *fixture, t *testing.T) (map[string]any, map[string]any) {
		before := map[string]any{
			"propertyId": "p1",
			"category":   "plumbing",
			"urgency":    4,
			"status":     string(domain.StatusReadyToAssign),
		}
		after := f.seedTicket(t, "t1", map[string]any{
			"propertyId": "p1",
			"category":   "plumbing",
			"urgency":    4,
			"unitNumber": "4B",
			"status":     string(domain.StatusAssigned),
			"assignedTo": "c1",
		})
		return before, after
	}

	t.Run("notifies assigned contractor", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		f.seedContractor(t, "c1")
		before, after := seedAssigned(f, t)

		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", before, after)))

		require.Len(t, f.notifier.payloads, 1)
		payload := f.notifier.payloads[0]
		assert.Equal(t, "t1", payload.TicketID)
		assert.Equal(t, "plumbing", payload.Category)
		assert.Equal(t, 4, payload.Urgency)
		assert.Equal(t, "Maple Court", payload.PropertyName)
		assert.Equal(t, "4B", payload.UnitNumber)
		assert.Contains(t, payload.Address, "Springfield")
	})

	t.Run("ticket status never leaves assigned", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		f.seedContractor(t, "c1")
		before, after := seedAssigned(f, t)

		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", before, after)))
		assert.Equal(t, domain.StatusAssigned, f.ticket(t, "t1").Status)
	})

	t.Run("missing contractor is retryable", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		before, after := seedAssigned(f, t)

		err := f.controller.HandleChange(ctx, updateEvent("t1", before, after))
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
		assert.Empty(t, f.notifier.payloads)
	})

	t.Run("unrelated write to assigned ticket does not re-notify", func(t *testing.T) {
		f := newFixture(t)
		f.seedProperty(t)
		f.seedContractor(t, "c1")
		_, after := seedAssigned(f, t)

		// before already assigned to the same contractor
		require.NoError(t, f.controller.HandleChange(ctx, updateEvent("t1", after, after)))
		assert.Empty(t, f.notifier.payloads)
	})
}

// TestWorkflowEndToEnd drives the full cascade through the memory store's
// synchronous triggers: submission -> classification -> matching ->
// assignment action -> notification document.
func TestWorkflowEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	stub := &stubClassifier{result: classifier.Result{Category: "plumbing", Urgency: 3}}

	notifier := notify.NewDispatcher(notify.Dependencies{
		Store:  store,
		Logger: zap.NewNop(),
	})
	controller := NewController(Dependencies{
		Store:      store,
		Classifier: stub,
		Matcher:    matcher.New(store),
		Notifier:   notifier,
		Logger:     zap.NewNop(),
		Metrics:    observability.NewMetrics(),
	})
	store.RegisterTrigger(domain.CollectionTickets, controller.Trigger())

	_, err := store.Create(ctx, domain.CollectionProperties, "p1", map[string]any{
		"landlordId":   "l1",
		"propertyName": "Maple Court",
		"address":      map[string]any{"street": "12 Maple St", "city": "Springfield", "state": "IL", "zip": "62704"},
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.CollectionLandlords, "l1", map[string]any{
		"contractors": []any{"c1"},
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.CollectionContractors, "c1", map[string]any{
		"name":         "Ace Plumbing",
		"email":        "ace@example.com",
		"skills":       []any{"plumbing"},
		"availability": true,
		"rating":       4.2,
	})
	require.NoError(t, err)

	created, err := store.Create(ctx, domain.CollectionTickets, "", map[string]any{
		"propertyId":  "p1",
		"unitNumber":  "4B",
		"description": "Faucet leaking in unit 4B",
		"status":      string(domain.StatusPendingClassification),
		"createdAt":   time.Now().UTC(),
	})
	require.NoError(t, err)

	// the create trigger cascades classification then matching
	doc, err := store.Get(ctx, domain.CollectionTickets, created.ID)
	require.NoError(t, err)
	ticket, err := domain.TicketFromFields(doc.ID, doc.Fields)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReadyToAssign, ticket.Status)
	assert.Equal(t, []string{"c1"}, ticket.RecommendedContractors)

	// external assignment action
	_, err = store.Update(ctx, domain.CollectionTickets, created.ID, map[string]any{
		"assignedTo": "c1",
		"status":     string(domain.StatusAssigned),
		"assignedAt": time.Now().UTC(),
	})
	require.NoError(t, err)

	notifications, err := store.Query(ctx, domain.CollectionNotifications, docstore.Query{
		FieldEquals: map[string]any{"userId": "c1"},
	})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "assignment", notifications[0].Fields["type"])
	assert.Equal(t, false, notifications[0].Fields["read"])
}
