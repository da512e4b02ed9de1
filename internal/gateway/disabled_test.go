package gateway

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/metrics"
)

func TestDisabledAdapterReturnsStubHandles(t *testing.T) {
	reg := prometheus.NewRegistry()
	adapter := NewDisabledAdapter(
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		metrics.NewGatewayMetrics(reg),
	)
	ctx := context.Background()

	payerID, err := adapter.EnsurePayer(ctx, EnsurePayerInput{UserID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payerID, "stub_cust_"))

	ref, err := adapter.CreateSubscription(ctx, CreateSubscriptionInput{UserID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref.ExternalID, "stub_sub_"))

	// stub traffic lands on the dedicated counter
	mfs, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "gateway_stub_requests" {
			found = true
			assert.NotEmpty(t, mf.GetMetric())
		}
	}
	assert.True(t, found)
}
