package enums

import "fmt"

// NotificationKind labels user-facing lifecycle notifications.
type NotificationKind string

const (
	NotificationKindRenewal       NotificationKind = "subscription.renewed"
	NotificationKindGraceEntered  NotificationKind = "subscription.grace_entered"
	NotificationKindExpired       NotificationKind = "subscription.expired"
	NotificationKindCancelled     NotificationKind = "subscription.cancelled"
	NotificationKindPaymentFailed NotificationKind = "payment.failed"
	NotificationKindPlanChanged   NotificationKind = "subscription.plan_changed"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindRenewal,
	NotificationKindGraceEntered,
	NotificationKindExpired,
	NotificationKindCancelled,
	NotificationKindPaymentFailed,
	NotificationKindPlanChanged,
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is known.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
