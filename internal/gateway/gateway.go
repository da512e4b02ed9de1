package gateway

import (
	"context"

	"github.com/nikhilbhat/subwise-backend/pkg/config"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/metrics"
	"github.com/nikhilbhat/subwise-backend/pkg/razorpay"
)

// New constructs the configured adapter and its availability. This runs once
// at boot; config validation has already rejected a disabled gateway in prod.
func New(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger, m *metrics.GatewayMetrics) (Adapter, Availability, error) {
	if cfg.Disabled {
		if logg != nil {
			logg.Warn(ctx, "billing gateway disabled, using stub adapter")
		}
		return NewDisabledAdapter(logg, m), Unavailable("gateway disabled by configuration"), nil
	}

	client, err := razorpay.NewClient(ctx, cfg, logg)
	if err != nil {
		return nil, Unavailable(err.Error()), err
	}

	adapter, err := NewRazorpayAdapter(client, m)
	if err != nil {
		return nil, Unavailable(err.Error()), err
	}
	return adapter, Ready(), nil
}
