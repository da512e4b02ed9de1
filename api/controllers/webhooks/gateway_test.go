package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	webhooksvc "github.com/nikhilbhat/subwise-backend/internal/webhooks"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/types"
)

type stubIngest struct {
	input  webhooksvc.IngestInput
	result *webhooksvc.IngestResult
	err    error
}

func (s *stubIngest) Ingest(_ context.Context, input webhooksvc.IngestInput) (*webhooksvc.IngestResult, error) {
	s.input = input
	return s.result, s.err
}

type stubAdapter struct {
	gateway.Adapter
	valid bool
}

func (s *stubAdapter) VerifyWebhookSignature([]byte, string) bool { return s.valid }

func postWebhook(t *testing.T, handler http.HandlerFunc, body, signature, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	if eventID != "" {
		req.Header.Set("X-Razorpay-Event-Id", eventID)
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	return resp
}

func TestGatewayWebhookRejectsMissingSignature(t *testing.T) {
	svc := &stubIngest{result: &webhooksvc.IngestResult{}}
	handler := GatewayWebhook(svc, &stubAdapter{valid: true}, nil)

	resp := postWebhook(t, handler, `{"event":"subscription.charged"}`, "", "evt_1")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", resp.Code)
	}
	if svc.input.EventID != "" {
		t.Fatal("ingest must not run for unauthenticated deliveries")
	}
}

func TestGatewayWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubIngest{result: &webhooksvc.IngestResult{}}
	handler := GatewayWebhook(svc, &stubAdapter{valid: false}, nil)

	resp := postWebhook(t, handler, `{"event":"subscription.charged"}`, "deadbeef", "evt_1")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", resp.Code)
	}
}

func TestGatewayWebhookAcknowledgesProcessedEvent(t *testing.T) {
	svc := &stubIngest{result: &webhooksvc.IngestResult{EventType: "subscription.charged", Applied: true}}
	handler := GatewayWebhook(svc, &stubAdapter{valid: true}, nil)

	resp := postWebhook(t, handler, `{"event":"subscription.charged"}`, "sig", "evt_42")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if svc.input.EventID != "evt_42" {
		t.Fatalf("expected delivery header to become the event id, got %q", svc.input.EventID)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := body.Data.(map[string]any)
	if data["status"] != "processed" {
		t.Fatalf("unexpected status %v", data["status"])
	}
	if data["event"] != "subscription.charged" {
		t.Fatalf("unexpected event %v", data["event"])
	}
}

func TestGatewayWebhookReportsDuplicates(t *testing.T) {
	svc := &stubIngest{result: &webhooksvc.IngestResult{EventType: "subscription.charged", Duplicate: true}}
	handler := GatewayWebhook(svc, &stubAdapter{valid: true}, nil)

	resp := postWebhook(t, handler, `{"event":"subscription.charged"}`, "sig", "evt_42")
	if resp.Code != http.StatusOK {
		t.Fatalf("duplicates must still acknowledge with 200, got %d", resp.Code)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.(map[string]any)["status"] != "duplicate" {
		t.Fatal("expected duplicate status")
	}
}

func TestGatewayWebhookSurfacesRetryableFailures(t *testing.T) {
	svc := &stubIngest{err: pkgerrors.New(pkgerrors.CodeInternal, "apply event")}
	handler := GatewayWebhook(svc, &stubAdapter{valid: true}, nil)

	resp := postWebhook(t, handler, `{"event":"subscription.charged"}`, "sig", "evt_42")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("retryable failures must answer 5xx so the gateway redelivers, got %d", resp.Code)
	}
}
