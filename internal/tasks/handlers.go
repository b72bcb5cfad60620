package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"communitydms/api/internal/email"
)

type Sender interface {
	Send(ctx context.Context, msg email.Message) error
}

type NotificationPurger interface {
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Handler struct {
	mailer    Sender
	purger    NotificationPurger
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(mailer Sender, purger NotificationPurger, retention time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		mailer:    mailer,
		purger:    purger,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEmailDeliver, h.HandleEmailDeliver)
	mux.HandleFunc(TypeNotificationCleanup, h.HandleNotificationCleanup)
}

func (h *Handler) HandleEmailDeliver(ctx context.Context, t *asynq.Task) error {
	var payload EmailDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	err := h.mailer.Send(ctx, payload.Message)
	if errors.Is(err, email.ErrNotConfigured) {
		h.logger.Warn("dropping email, smtp not configured", "subject", payload.Message.Subject)
		return nil
	}
	if err != nil {
		h.logger.Error("email delivery failed", "subject", payload.Message.Subject, "recipients", len(payload.Message.To), "error", err)
		return err
	}
	h.logger.Info("email delivered", "subject", payload.Message.Subject, "recipients", len(payload.Message.To))
	return nil
}

func (h *Handler) HandleNotificationCleanup(ctx context.Context, _ *asynq.Task) error {
	cutoff := h.now().UTC().Add(-h.retention)
	deleted, err := h.purger.DeleteReadNotificationsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete read notifications: %w", err)
	}
	h.logger.Info("notification cleanup finished", "deleted", deleted, "cutoff", cutoff)
	return nil
}
