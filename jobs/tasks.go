package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries time-sensitive tasks such as OTP delivery.
	QueueCritical = "critical"

	// TaskOTPDeliver sends a one-time sign-in code by SMS.
	TaskOTPDeliver = "otp:deliver"
	// TaskProfileProvision creates the profile row of a new account.
	TaskProfileProvision = "profile:provision"
	// TaskContactNotify forwards a contact form message to the team.
	TaskContactNotify = "contact:notify"
)

// OTPDeliveryPayload describes one code to send.
type OTPDeliveryPayload struct {
	Phone     string    `json:"phone"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileProvisionPayload carries the sign-up metadata of a new user.
type ProfileProvisionPayload struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

// ContactPayload is a submitted contact form.
type ContactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
}

// NewOTPDeliveryTask builds an otp:deliver task. Codes are useless once
// expired, so the task is dropped rather than retried past ExpiresAt.
func NewOTPDeliveryTask(payload OTPDeliveryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(3)}
	if !payload.ExpiresAt.IsZero() {
		opts = append(opts, asynq.Deadline(payload.ExpiresAt))
	}
	return asynq.NewTask(TaskOTPDeliver, body, opts...), nil
}

// NewProfileProvisionTask builds a profile:provision task.
func NewProfileProvisionTask(payload ProfileProvisionPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProfileProvision, body, asynq.Queue(QueueDefault), asynq.MaxRetry(10)), nil
}

// NewContactTask builds a contact:notify task.
func NewContactTask(payload ContactPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskContactNotify, body, asynq.Queue(QueueDefault)), nil
}
