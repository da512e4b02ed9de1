package enums

import "fmt"

// SubscriptionStatus is the canonical local state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusCreated       SubscriptionStatus = "CREATED"
	SubscriptionStatusAuthenticated SubscriptionStatus = "AUTHENTICATED"
	SubscriptionStatusActive        SubscriptionStatus = "ACTIVE"
	SubscriptionStatusGracePeriod   SubscriptionStatus = "GRACE_PERIOD"
	SubscriptionStatusExpired       SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCancelled     SubscriptionStatus = "CANCELLED"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusCreated,
	SubscriptionStatusAuthenticated,
	SubscriptionStatusActive,
	SubscriptionStatusGracePeriod,
	SubscriptionStatusExpired,
	SubscriptionStatusCancelled,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusExpired || s == SubscriptionStatusCancelled
}

// IsEntitled reports whether the subscriber currently has access.
// At most one subscription per user may hold an entitled status.
func (s SubscriptionStatus) IsEntitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusGracePeriod
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
