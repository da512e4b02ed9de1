package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nikhilbhat/subwise-backend/pkg/config"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

var (
	errKeyIDRequired         = errors.New("razorpay key id is required")
	errKeySecretRequired     = errors.New("razorpay key secret is required")
	errWebhookSecretRequired = errors.New("razorpay webhook secret is required")
	errLoggerRequired        = errors.New("razorpay logger is required")
)

// Client is a thin REST wrapper over the Razorpay API with centralized auth,
// logging, timeouts, and error mapping. Amounts cross this boundary in minor
// units (paise/cents); callers convert from decimals before reaching here.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *logger.Logger
}

// NewClient validates the credentials and builds the wrapper.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		logger:        logg,
	}

	logg.Info(ctx, "razorpay client initialized")
	return c, nil
}

// apiError is the error envelope Razorpay returns on non-2xx responses.
type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding gateway request")
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gateway request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log(ctx, "request", method+" "+path, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", method+" "+path, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "gateway request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "reading gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapAPIError(ctx, method+" "+path, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway response")
		}
	}

	c.log(ctx, "response", method+" "+path, map[string]any{"status": resp.StatusCode})
	return nil
}

func (c *Client) mapAPIError(ctx context.Context, op string, status int, payload []byte) error {
	var envelope apiError
	_ = json.Unmarshal(payload, &envelope)

	description := envelope.Error.Description
	if description == "" {
		description = fmt.Sprintf("gateway returned status %d", status)
	}

	c.log(ctx, "error", op, map[string]any{
		"status":      status,
		"code":        envelope.Error.Code,
		"description": description,
	})

	switch {
	case status == http.StatusBadRequest:
		return pkgerrors.New(pkgerrors.CodeValidation, description)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeDependency, "gateway rejected credentials")
	case status == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, description)
	case status >= 500:
		return pkgerrors.New(pkgerrors.CodeGatewayUnavailable, description)
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, description)
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	meta := map[string]any{"gateway_op": op, "phase": phase}
	for k, v := range fields {
		meta[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, meta), "razorpay "+phase)
}
