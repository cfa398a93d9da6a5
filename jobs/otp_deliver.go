package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/learnexa/learnexa/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SMSSender delivers a text message.
type SMSSender interface {
	Send(ctx context.Context, from, to, body string) error
}

// LogSender writes messages to the log instead of a gateway. It is the
// default sender for development.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements SMSSender.
func (s LogSender) Send(ctx context.Context, from, to, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sms", slog.String("from", from), slog.String("to", to), slog.String("body", body))
	return nil
}

// OTPDeliveryJob hands one-time codes to the SMS sender.
type OTPDeliveryJob struct {
	Sender  SMSSender
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOTPDeliveryJob wires dependencies for the otp:deliver handler.
func NewOTPDeliveryJob(sender SMSSender, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *OTPDeliveryJob {
	return &OTPDeliveryJob{Sender: sender, From: from, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle processes otp:deliver tasks.
func (j *OTPDeliveryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("otp delivery: handler not configured")
	}
	var payload OTPDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Phone == "" || payload.Code == "" {
		return asynq.SkipRetry
	}
	log := logger(j.Logger, TaskOTPDeliver).With(slog.String("phone", payload.Phone))
	if !payload.ExpiresAt.IsZero() && !j.now().Before(payload.ExpiresAt) {
		log.Warn("otp expired before delivery")
		return nil
	}

	tracker := metrics(j.Metrics).Track(TaskOTPDeliver)
	defer func() { err = tracker.End(err) }()

	body := fmt.Sprintf("%s is your LEARNEXA verification code", payload.Code)
	if err = j.Sender.Send(ctx, j.From, payload.Phone, body); err != nil {
		log.Error("send otp", slog.Any("error", err))
		return err
	}
	log.Info("otp delivered")
	return nil
}

func (j *OTPDeliveryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

func logger(l *slog.Logger, job string) *slog.Logger {
	if l != nil {
		return l.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func metrics(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
