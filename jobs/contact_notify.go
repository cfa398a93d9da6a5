package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ContactNotifyJob records contact form messages for the team.
type ContactNotifyJob struct {
	Logger *slog.Logger
}

// Handle processes contact:notify tasks.
func (j *ContactNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ContactPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	var l *slog.Logger
	if j != nil {
		l = j.Logger
	}
	logger(l, TaskContactNotify).InfoContext(ctx, "contact message received",
		slog.String("name", payload.Name),
		slog.String("email", payload.Email),
		slog.String("phone", payload.Phone),
		slog.String("message", payload.Message),
	)
	return nil
}
