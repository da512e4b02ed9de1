package webhooks

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhat/subwise-backend/api/responses"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	webhooksvc "github.com/nikhilbhat/subwise-backend/internal/webhooks"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"

	// Gateway payloads are small; anything larger is hostile.
	maxBodyBytes = 1 << 20
)

// GatewayWebhook receives provider deliveries, authenticates them against the
// webhook secret, and hands them to the ingest pipeline. Every accepted
// outcome answers 2xx; only retryable failures answer 5xx so the provider
// redelivers.
func GatewayWebhook(svc webhooksvc.Service, adapter gateway.Adapter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if adapter == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway adapter unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !adapter.VerifyWebhookSignature(body, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature invalid"))
			return
		}

		result, err := svc.Ingest(ctx, webhooksvc.IngestInput{
			Gateway: enums.GatewayRazorpay,
			EventID: strings.TrimSpace(r.Header.Get(eventIDHeader)),
			Body:    body,
			Now:     time.Now().UTC(),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := "processed"
		switch {
		case result.Duplicate:
			status = "duplicate"
		case result.Unhandled:
			status = "ignored"
		}

		responses.WriteSuccess(w, map[string]string{
			"status": status,
			"event":  result.EventType,
		})
	}
}
