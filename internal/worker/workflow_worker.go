package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/workflow"
)

// StartWorkflowConsumer runs the change-event consume loop feeding the
// workflow controller. It returns immediately; the loop stops when ctx is
// cancelled.
func StartWorkflowConsumer(ctx context.Context, transport *events.StreamTransport, controller *workflow.Controller, logger *zap.Logger) {
	if transport == nil || controller == nil {
		return
	}
	go func() {
		if err := transport.Consume(ctx, controller.Handler()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("workflow consumer stopped", zap.Error(err))
		}
	}()
}
