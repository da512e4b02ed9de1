package enums

import "fmt"

// Gateway names the billing provider a subscription is anchored to.
// GatewayNone marks zero-cost subscriptions that never touch a provider.
type Gateway string

const (
	GatewayRazorpay Gateway = "razorpay"
	GatewayNone     Gateway = "none"
)

var validGateways = []Gateway{
	GatewayRazorpay,
	GatewayNone,
}

// String implements fmt.Stringer.
func (g Gateway) String() string {
	return string(g)
}

// IsValid reports whether the gateway is recognized.
func (g Gateway) IsValid() bool {
	for _, candidate := range validGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGateway converts raw input into a Gateway.
func ParseGateway(value string) (Gateway, error) {
	for _, candidate := range validGateways {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway %q", value)
}
