package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, body string) error {
	f.sent = append(f.sent, to)
	return f.err
}

type fakePusher struct {
	results map[string]PushResult
	sent    [][]string
}

func (f *fakePusher) Send(ctx context.Context, tokens []string, msg PushMessage) []PushResult {
	f.sent = append(f.sent, tokens)
	out := make([]PushResult, 0, len(tokens))
	for _, token := range tokens {
		if result, ok := f.results[token]; ok {
			out = append(out, result)
			continue
		}
		out = append(out, PushResult{Token: token})
	}
	return out
}

func testContractor() *domain.ContractorProfile {
	return &domain.ContractorProfile{
		ID:    "c1",
		Name:  "Ace Plumbing",
		Email: "ace@example.com",
	}
}

func testPayload() AssignmentPayload {
	return AssignmentPayload{
		TicketID:     "t1",
		Category:     "plumbing",
		Urgency:      4,
		Description:  "Faucet leaking",
		UnitNumber:   "4B",
		PropertyID:   "p1",
		PropertyName: "Maple Court",
		Address:      "12 Maple St, Springfield, IL 62704",
	}
}

func registerToken(t *testing.T, store docstore.Store, userID, token string) {
	t.Helper()
	registration := &domain.FcmToken{UserID: userID, Token: token, CreatedAt: time.Now().UTC()}
	_, err := store.Create(context.Background(), domain.CollectionFcmTokens, "", registration.ToFields())
	require.NoError(t, err)
}

func TestDispatchAssignmentWritesFeedEntry(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	email := &fakeEmail{}
	dispatcher := NewDispatcher(Dependencies{Store: store, Email: email, Logger: zap.NewNop()})

	dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())

	doc, err := store.Get(ctx, domain.CollectionNotifications, "assignment-t1-c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", doc.Fields["userId"])
	assert.Equal(t, "contractor", doc.Fields["userRole"])
	assert.Equal(t, string(domain.NotificationAssignment), doc.Fields["type"])
	assert.Equal(t, false, doc.Fields["read"])

	data, ok := doc.Fields["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", data["ticketId"])
	assert.Equal(t, "plumbing", data["category"])

	require.Len(t, email.sent, 1)
	assert.Equal(t, "ace@example.com", email.sent[0])
}

func TestDispatchAssignmentDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	email := &fakeEmail{}
	pusher := &fakePusher{}
	dispatcher := NewDispatcher(Dependencies{Store: store, Email: email, Push: pusher, Logger: zap.NewNop()})
	registerToken(t, store, "c1", "tok-1")

	dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())
	dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())

	docs, err := store.Query(ctx, domain.CollectionNotifications, docstore.Query{
		FieldEquals: map[string]any{"userId": "c1"},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	// duplicate delivery skips the outbound channels too
	assert.Len(t, email.sent, 1)
	assert.Len(t, pusher.sent, 1)
}

func TestDispatchAssignmentPush(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to every registered token", func(t *testing.T) {
		store := docstore.NewMemoryStore(nil)
		pusher := &fakePusher{}
		dispatcher := NewDispatcher(Dependencies{Store: store, Push: pusher, Logger: zap.NewNop()})
		registerToken(t, store, "c1", "tok-1")
		registerToken(t, store, "c1", "tok-2")
		registerToken(t, store, "other", "tok-3")

		dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())

		require.Len(t, pusher.sent, 1)
		assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, pusher.sent[0])
	})

	t.Run("prunes unregistered tokens only", func(t *testing.T) {
		store := docstore.NewMemoryStore(nil)
		pusher := &fakePusher{results: map[string]PushResult{
			"tok-dead":  {Token: "tok-dead", Unregistered: true, Err: errors.New("UNREGISTERED")},
			"tok-flaky": {Token: "tok-flaky", Err: errors.New("UNAVAILABLE")},
		}}
		dispatcher := NewDispatcher(Dependencies{Store: store, Push: pusher, Logger: zap.NewNop()})
		registerToken(t, store, "c1", "tok-live")
		registerToken(t, store, "c1", "tok-dead")
		registerToken(t, store, "c1", "tok-flaky")

		dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())

		docs, err := store.Query(ctx, domain.CollectionFcmTokens, docstore.Query{
			FieldEquals: map[string]any{"userId": "c1"},
		})
		require.NoError(t, err)
		remaining := make([]string, 0, len(docs))
		for _, doc := range docs {
			remaining = append(remaining, doc.Fields["token"].(string))
		}
		assert.ElementsMatch(t, []string{"tok-live", "tok-flaky"}, remaining)
	})

	t.Run("no tokens means no push call", func(t *testing.T) {
		store := docstore.NewMemoryStore(nil)
		pusher := &fakePusher{}
		dispatcher := NewDispatcher(Dependencies{Store: store, Push: pusher, Logger: zap.NewNop()})

		dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())
		assert.Empty(t, pusher.sent)
	})
}

func TestDispatchAssignmentEmailFailureIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	email := &fakeEmail{err: errors.New("smtp refused")}
	dispatcher := NewDispatcher(Dependencies{Store: store, Email: email, Logger: zap.NewNop()})

	// must not panic or surface the error; the feed entry still lands
	dispatcher.DispatchAssignment(ctx, testContractor(), testPayload())

	_, err := store.Get(ctx, domain.CollectionNotifications, "assignment-t1-c1")
	require.NoError(t, err)
}
