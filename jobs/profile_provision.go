package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/learnexa/learnexa/internal/jobs"
)

// Provisioner creates the profile row of a user if it does not exist.
type Provisioner interface {
	Provision(ctx context.Context, userID, fullName, phone string) error
}

// ProfileProvisionJob creates profiles for new accounts.
type ProfileProvisionJob struct {
	Profiles Provisioner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewProfileProvisionJob wires dependencies for the profile:provision handler.
func NewProfileProvisionJob(profiles Provisioner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProfileProvisionJob {
	return &ProfileProvisionJob{Profiles: profiles, Logger: logger, Metrics: metrics}
}

// Handle processes profile:provision tasks. Provisioning is idempotent so
// retries are safe.
func (j *ProfileProvisionJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Profiles == nil {
		return errors.New("profile provision: handler not configured")
	}
	var payload ProfileProvisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.UserID == "" {
		return asynq.SkipRetry
	}

	tracker := metrics(j.Metrics).Track(TaskProfileProvision)
	defer func() { err = tracker.End(err) }()

	log := logger(j.Logger, TaskProfileProvision).With(slog.String("user_id", payload.UserID))
	if err = j.Profiles.Provision(ctx, payload.UserID, payload.FullName, payload.Phone); err != nil {
		log.Error("provision profile", slog.Any("error", err))
		return err
	}
	log.Info("profile provisioned")
	return nil
}
