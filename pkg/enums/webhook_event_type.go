package enums

import "fmt"

// WebhookEventType is the closed set of gateway events the engine handles.
// Dispatch switches over this type exhaustively; an event outside the set is
// recorded and acknowledged without side effects.
type WebhookEventType string

const (
	WebhookEventPaymentAuthorized         WebhookEventType = "payment.authorized"
	WebhookEventPaymentCaptured           WebhookEventType = "payment.captured"
	WebhookEventPaymentFailed             WebhookEventType = "payment.failed"
	WebhookEventSubscriptionAuthenticated WebhookEventType = "subscription.authenticated"
	WebhookEventSubscriptionActivated     WebhookEventType = "subscription.activated"
	WebhookEventSubscriptionCharged       WebhookEventType = "subscription.charged"
	WebhookEventSubscriptionCompleted     WebhookEventType = "subscription.completed"
	WebhookEventSubscriptionUpdated       WebhookEventType = "subscription.updated"
	WebhookEventSubscriptionPending       WebhookEventType = "subscription.pending"
	WebhookEventSubscriptionHalted        WebhookEventType = "subscription.halted"
	WebhookEventSubscriptionCancelled     WebhookEventType = "subscription.cancelled"
	WebhookEventSubscriptionPaused        WebhookEventType = "subscription.paused"
	WebhookEventSubscriptionResumed       WebhookEventType = "subscription.resumed"
)

var validWebhookEventTypes = []WebhookEventType{
	WebhookEventPaymentAuthorized,
	WebhookEventPaymentCaptured,
	WebhookEventPaymentFailed,
	WebhookEventSubscriptionAuthenticated,
	WebhookEventSubscriptionActivated,
	WebhookEventSubscriptionCharged,
	WebhookEventSubscriptionCompleted,
	WebhookEventSubscriptionUpdated,
	WebhookEventSubscriptionPending,
	WebhookEventSubscriptionHalted,
	WebhookEventSubscriptionCancelled,
	WebhookEventSubscriptionPaused,
	WebhookEventSubscriptionResumed,
}

// String implements fmt.Stringer.
func (t WebhookEventType) String() string {
	return string(t)
}

// IsValid reports whether the event type is part of the handled set.
func (t WebhookEventType) IsValid() bool {
	for _, candidate := range validWebhookEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWebhookEventType converts a raw event name into a WebhookEventType.
func ParseWebhookEventType(value string) (WebhookEventType, error) {
	for _, candidate := range validWebhookEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unhandled webhook event type %q", value)
}
