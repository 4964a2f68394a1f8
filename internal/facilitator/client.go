package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/paygate/internal/config"
	"go.uber.org/zap"
)

// ErrUnavailable marks transport-level failures talking to the facilitator.
// The validator fails closed on it; the health surface reports it as offline.
var ErrUnavailable = errors.New("facilitator_unavailable")

// HealthStatus is the facilitator's operational advisory.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Network   string    `json:"network,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ValidateRequest carries a payment proof plus the meter pricing context.
type ValidateRequest struct {
	Proof   string `json:"proof"`
	MeterID string `json:"meterId"`
	Price   string `json:"price"`
	Asset   string `json:"asset"`
	Chain   string `json:"chain"`
}

// ValidateResponse mirrors the facilitator's validation verdict unchanged.
type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Payer   string `json:"payer,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// SettleRequest submits a verified proof for settlement (agent protocol).
type SettleRequest struct {
	Proof   string `json:"proof"`
	MeterID string `json:"meterId"`
	Price   string `json:"price"`
	Asset   string `json:"asset"`
	Chain   string `json:"chain"`
}

// SettleResponse is the facilitator's settlement result.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Client talks to the external payment verification and settlement service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Facilitator.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.Facilitator.URL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("facilitator.client"),
	}
}

// CheckHealth probes the facilitator. Failures here never block the 402 path;
// they only degrade the online/offline advisory.
func (c *Client) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HealthStatus{Healthy: false}, nil
	}

	var body struct {
		Status    string `json:"status"`
		Network   string `json:"network,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode health: %v", ErrUnavailable, err)
	}

	status := &HealthStatus{
		Healthy: body.Status == "ok" || body.Status == "healthy",
		Network: body.Network,
	}
	if body.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, body.Timestamp); err == nil {
			status.Timestamp = ts
		}
	}
	return status, nil
}

// Validate asks the facilitator whether the proof authorizes the meter.
func (c *Client) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	var resp ValidateResponse
	if err := c.post(ctx, "/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle submits a verified proof for on-chain settlement.
func (c *Client) Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error) {
	var resp SettleResponse
	if err := c.post(ctx, "/settle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("facilitator request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
