package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// HTTPGateway talks to the payment provider's REST API. It is the only
// component allowed to leave the process during a billing transaction.
type HTTPGateway struct {
	baseURL        string
	secretKey      string
	minChargeMinor int64
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewHTTPGateway(baseURL, secretKey string, minChargeMinor int64, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL:        strings.TrimRight(baseURL, "/"),
		secretKey:      secretKey,
		minChargeMinor: minChargeMinor,
		httpClient:     http.DefaultClient,
		logger:         logger,
	}
}

type holdResponse struct {
	HoldRef       string `json:"hold_ref"`
	ChargeRef     string `json:"charge_ref"`
	CapturedMinor int64  `json:"captured_amount_minor"`
	Status        string `json:"status"`
	Error         string `json:"error"`
}

func (g *HTTPGateway) Authorize(ctx context.Context, input AuthorizeInput) (*AuthorizeResult, error) {
	payload := map[string]any{
		"customer_ref": input.CustomerRef,
		"amount_minor": input.AmountMinor,
		"currency":     input.Currency,
		"metadata":     input.Metadata,
	}
	var resp holdResponse
	if err := g.post(ctx, "/v1/holds", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != StatusRequiresCapture {
		return nil, fmt.Errorf("authorize hold: unexpected status %q: %s", resp.Status, resp.Error)
	}
	g.logger.Info("payment hold authorized",
		zap.String("hold_ref", resp.HoldRef),
		zap.Int64("amount_minor", input.AmountMinor),
		zap.String("currency", input.Currency),
	)
	return &AuthorizeResult{HoldRef: resp.HoldRef, Status: resp.Status}, nil
}

func (g *HTTPGateway) Capture(ctx context.Context, holdRef string, amountMinor int64) (*CaptureResult, error) {
	payload := map[string]any{"amount_minor": amountMinor}
	var resp holdResponse
	if err := g.post(ctx, "/v1/holds/"+holdRef+"/capture", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != StatusSucceeded {
		return nil, fmt.Errorf("capture hold %s: status %q: %s", holdRef, resp.Status, resp.Error)
	}
	g.logger.Info("payment hold captured",
		zap.String("hold_ref", holdRef),
		zap.String("charge_ref", resp.ChargeRef),
		zap.Int64("captured_minor", resp.CapturedMinor),
	)
	return &CaptureResult{
		ChargeRef:     resp.ChargeRef,
		CapturedMinor: resp.CapturedMinor,
		Status:        resp.Status,
	}, nil
}

func (g *HTTPGateway) Release(ctx context.Context, holdRef string) error {
	var resp holdResponse
	if err := g.post(ctx, "/v1/holds/"+holdRef+"/release", map[string]any{}, &resp); err != nil {
		return err
	}
	if resp.Status != StatusCanceled {
		return fmt.Errorf("release hold %s: status %q: %s", holdRef, resp.Status, resp.Error)
	}
	g.logger.Info("payment hold released", zap.String("hold_ref", holdRef))
	return nil
}

func (g *HTTPGateway) Inspect(ctx context.Context, holdRef string) (*HoldStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/holds/"+holdRef, nil)
	if err != nil {
		return nil, fmt.Errorf("build inspect request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inspect hold: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("inspect hold: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded holdResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode inspect response: %w", err)
	}
	return &HoldStatus{Status: decoded.Status}, nil
}

func (g *HTTPGateway) MinimumChargeMinor(string) int64 {
	return g.minChargeMinor
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any, out *holdResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gateway call %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
