package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/inventory-ledger/internal/posting"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentEvent carries a committed document change.
	TaskDocumentEvent = "ledger:document-event"
)

// NewDocumentEventTask wraps evt into a task whose id is the event id, so an
// event is enqueued at most once.
func NewDocumentEventTask(evt posting.Event) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentEvent, data, asynq.TaskID(evt.ID), asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// DocumentEventHandler consumes document events.
type DocumentEventHandler struct {
	logger *slog.Logger
}

// NewDocumentEventHandler constructs the handler.
func NewDocumentEventHandler(logger *slog.Logger) *DocumentEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentEventHandler{logger: logger}
}

// Handle processes TaskDocumentEvent tasks.
func (h *DocumentEventHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var evt posting.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	h.logger.InfoContext(ctx, "document event",
		slog.String("event_id", evt.ID),
		slog.String("kind", evt.Kind),
		slog.String("action", evt.Action),
		slog.String("number", evt.Number),
		slog.Int("movements", evt.Movements),
	)
	return nil
}
