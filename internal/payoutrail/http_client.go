package payoutrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smallbiznis/paygate/internal/config"
	"go.uber.org/zap"
)

// HTTPClient talks to the real payout rail API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPClient(cfg config.Config, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.Rail.URL,
		apiKey:     cfg.Rail.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Named("payoutrail.client"),
	}
}

func (c *HTTPClient) InitiateWithdrawal(ctx context.Context, amount int64, currency, recipient string) (*Withdrawal, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"amount":    amount,
		"currency":  currency,
		"recipient": recipient,
	})
	if err != nil {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "bad_request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/withdrawals", bytes.NewReader(payload))
	if err != nil {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "bad_request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("withdrawal initiation failed", zap.Error(err))
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: fmt.Sprintf("status_%d", resp.StatusCode)}
	}

	var w Withdrawal
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "bad_response", Err: err}
	}
	if w.ID == "" {
		return nil, &RailFailure{Op: "initiate_withdrawal", Reason: "missing_withdrawal_id"}
	}
	if w.Status == "" {
		w.Status = StatusProcessing
	}
	return &w, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, withdrawalID string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/withdrawals/"+withdrawalID, nil)
	if err != nil {
		return "", &RailFailure{Op: "get_status", Reason: "bad_request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RailFailure{Op: "get_status", Reason: "unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &RailFailure{Op: "get_status", Reason: "withdrawal_not_found"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RailFailure{Op: "get_status", Reason: fmt.Sprintf("status_%d", resp.StatusCode)}
	}

	var w Withdrawal
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return "", &RailFailure{Op: "get_status", Reason: "bad_response", Err: err}
	}
	return w.Status, nil
}
