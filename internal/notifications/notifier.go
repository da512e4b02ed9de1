package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

// Notifier hands lifecycle events to the user-notification collaborator.
// Calls are fire-and-forget from the engine's point of view: a failed
// delivery is logged and audited, never propagated into the state transition
// that produced it.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any)
}

// Envelope is the message shape published for the notification service.
type Envelope struct {
	UserID  uuid.UUID        `json:"user_id"`
	Kind    string           `json:"kind"`
	Payload map[string]any   `json:"payload,omitempty"`
	SentAt  time.Time        `json:"sent_at"`
}

// PubSubNotifier publishes envelopes on the notifications topic and writes a
// delivery audit row per attempt.
type PubSubNotifier struct {
	publisher *pubsub.Publisher
	audit     Repository
	logger    *logger.Logger
}

// NewPubSubNotifier wires the publisher-backed notifier.
func NewPubSubNotifier(publisher *pubsub.Publisher, audit Repository, logg *logger.Logger) (*PubSubNotifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notifications publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("notifications logger required")
	}
	return &PubSubNotifier{publisher: publisher, audit: audit, logger: logg}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any) {
	ctx = n.logger.WithFields(ctx, map[string]any{
		"user_id":           userID.String(),
		"notification_kind": kind.String(),
	})

	envelope := Envelope{
		UserID:  userID,
		Kind:    kind.String(),
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		n.logger.Error(ctx, "encoding notification envelope", err)
		return
	}

	var deliveredAt *time.Time
	result := n.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": kind.String()},
	})
	if _, err := result.Get(ctx); err != nil {
		n.logger.Error(ctx, "publishing notification", err)
	} else {
		now := time.Now().UTC()
		deliveredAt = &now
	}

	n.recordAudit(ctx, userID, kind, data, deliveredAt)
}

func (n *PubSubNotifier) recordAudit(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload []byte, deliveredAt *time.Time) {
	if n.audit == nil {
		return
	}
	if err := n.audit.Record(ctx, userID, kind, payload, deliveredAt); err != nil {
		n.logger.Error(ctx, "recording notification audit", err)
	}
}

// LogNotifier is the notifier used when no broker is configured (local dev,
// tests). It only logs and audits.
type LogNotifier struct {
	audit  Repository
	logger *logger.Logger
}

// NewLogNotifier wires the log-only notifier.
func NewLogNotifier(audit Repository, logg *logger.Logger) *LogNotifier {
	return &LogNotifier{audit: audit, logger: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any) {
	if n.logger != nil {
		ctx = n.logger.WithFields(ctx, map[string]any{
			"user_id":           userID.String(),
			"notification_kind": kind.String(),
		})
		n.logger.Info(ctx, "notification (log only)")
	}
	if n.audit == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	now := time.Now().UTC()
	if err := n.audit.Record(ctx, userID, kind, data, &now); err != nil && n.logger != nil {
		n.logger.Error(ctx, "recording notification audit", err)
	}
}
