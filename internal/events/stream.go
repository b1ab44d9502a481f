package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/config"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// StreamTransport delivers change events through a Redis Stream consumer
// group. Entries are acknowledged only after the handler returns without a
// retryable error, so abandoned or failed deliveries are re-claimed and
// retried: delivery is at-least-once.
type StreamTransport struct {
	client *redis.Client
	cfg    config.StreamConfig
	logger *zap.Logger
}

// NewStreamTransport creates the transport.
func NewStreamTransport(client *redis.Client, cfg config.StreamConfig, logger *zap.Logger) *StreamTransport {
	return &StreamTransport{client: client, cfg: cfg, logger: logger}
}

// Publish appends the event to the stream.
func (t *StreamTransport) Publish(ctx context.Context, event ChangeEvent) error {
	blob, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.cfg.Key,
		Values: map[string]any{"event": string(blob)},
	}).Err()
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (t *StreamTransport) EnsureGroup(ctx context.Context) error {
	err := t.client.XGroupCreateMkStream(ctx, t.cfg.Key, t.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Consume reads events until ctx is cancelled, invoking handler for each.
// Handler errors classified retryable leave the entry pending; everything
// else is acknowledged.
func (t *StreamTransport) Consume(ctx context.Context, handler Handler) error {
	if err := t.EnsureGroup(ctx); err != nil {
		return err
	}

	block := time.Duration(t.cfg.BlockSeconds) * time.Second
	if block <= 0 {
		block = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t.claimStale(ctx, handler)

		streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    t.cfg.Group,
			Consumer: t.cfg.Consumer,
			Streams:  []string{t.cfg.Key, ">"},
			Count:    16,
			Block:    block,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("stream read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				t.deliver(ctx, handler, message)
			}
		}
	}
}

func (t *StreamTransport) deliver(ctx context.Context, handler Handler, message redis.XMessage) {
	raw, ok := message.Values["event"].(string)
	if !ok {
		t.logger.Warn("stream entry missing event payload", zap.String("entry_id", message.ID))
		t.ack(ctx, message.ID)
		return
	}
	var event ChangeEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.logger.Warn("stream entry undecodable", zap.String("entry_id", message.ID), zap.Error(err))
		t.ack(ctx, message.ID)
		return
	}

	if err := handler(ctx, event); err != nil {
		if apperrors.IsRetryable(err) {
			// left unacked: the pending entry is re-claimed and retried
			t.logger.Warn("handler failed, will redeliver",
				zap.String("entry_id", message.ID),
				zap.String("doc_id", event.DocID),
				zap.Error(err))
			return
		}
		t.logger.Error("handler failed, dropping delivery",
			zap.String("entry_id", message.ID),
			zap.String("doc_id", event.DocID),
			zap.Error(err))
	}
	t.ack(ctx, message.ID)
}

// claimStale re-claims entries another consumer left pending past the idle
// threshold, covering deadline-abandoned invocations.
func (t *StreamTransport) claimStale(ctx context.Context, handler Handler) {
	idle := time.Duration(t.cfg.ClaimIdleSecs) * time.Second
	if idle <= 0 {
		return
	}
	messages, _, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   t.cfg.Key,
		Group:    t.cfg.Group,
		Consumer: t.cfg.Consumer,
		MinIdle:  idle,
		Start:    "0-0",
		Count:    16,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			t.logger.Warn("autoclaim failed", zap.Error(err))
		}
		return
	}
	for _, message := range messages {
		t.deliver(ctx, handler, message)
	}
}

func (t *StreamTransport) ack(ctx context.Context, entryID string) {
	if err := t.client.XAck(ctx, t.cfg.Key, t.cfg.Group, entryID).Err(); err != nil && ctx.Err() == nil {
		t.logger.Warn("ack failed", zap.String("entry_id", entryID), zap.Error(err))
	}
}
