package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"communitydms/api/internal/email"
)

// Task type names
const (
	TypeEmailDeliver        = "email:deliver"
	TypeNotificationCleanup = "notifications:cleanup"
)

// EmailDeliverPayload is a rendered message waiting for SMTP delivery.
type EmailDeliverPayload struct {
	Message email.Message `json:"message"`
}

func NewEmailDeliverTask(msg email.Message) (*asynq.Task, error) {
	data, err := json.Marshal(EmailDeliverPayload{Message: msg})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailDeliver, data, asynq.MaxRetry(5)), nil
}

// NotificationCleanupPayload is empty; the worker applies its configured
// retention window.
type NotificationCleanupPayload struct{}

func NewNotificationCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeNotificationCleanup, nil, asynq.MaxRetry(1))
}
