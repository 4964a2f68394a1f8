package treasury

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

// HTTPClient talks to the treasury gateway service, which holds the signer
// and submits transactions on our behalf. Each call carries its own deadline
// so a stuck receipt wait fails the step instead of pinning the request.
type HTTPClient struct {
	baseURL         string
	contractAddress string
	network         string
	timeout         time.Duration
	httpClient      *http.Client
	log             *zap.Logger
}

func NewHTTPClient(cfg config.Config, log *zap.Logger) *HTTPClient {
	timeout := cfg.Treasury.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:         cfg.Treasury.URL,
		contractAddress: cfg.Treasury.ContractAddress,
		network:         cfg.Treasury.Network,
		timeout:         timeout,
		httpClient:      &http.Client{},
		log:             log.Named("treasury.client"),
	}
}

type txRequest struct {
	Contract string `json:"contract"`
	Network  string `json:"network"`
	Payer    string `json:"payer,omitempty"`
	Payee    string `json:"payee"`
	Amount   int64  `json:"amount"`
	Token    string `json:"token"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

func (c *HTTPClient) RequestPayment(ctx context.Context, payee string, amount int64, token string) (string, error) {
	return c.submit(ctx, "request_payment", txRequest{
		Contract: c.contractAddress,
		Network:  c.network,
		Payee:    payee,
		Amount:   amount,
		Token:    token,
	})
}

func (c *HTTPClient) ExecutePayment(ctx context.Context, payer, payee string, amount int64, token string) (string, error) {
	return c.submit(ctx, "execute_payment", txRequest{
		Contract: c.contractAddress,
		Network:  c.network,
		Payer:    payer,
		Payee:    payee,
		Amount:   amount,
		Token:    token,
	})
}

func (c *HTTPClient) GetBalance(ctx context.Context, token string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/balance?contract=%s&network=%s&token=%s", c.baseURL, c.contractAddress, c.network, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &OnchainFailure{Op: "get_balance", Reason: "bad_request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, c.transportFailure("get_balance", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &OnchainFailure{Op: "get_balance", Reason: fmt.Sprintf("status_%d", resp.StatusCode)}
	}

	var body struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &OnchainFailure{Op: "get_balance", Reason: "bad_response", Err: err}
	}
	return body.Balance, nil
}

// submit posts a transaction and waits for the gateway to return the receipt
// hash. The gateway itself blocks on confirmation, so the deadline here bounds
// the full submit-and-confirm wait.
func (c *HTTPClient) submit(ctx context.Context, op string, in txRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		return "", &OnchainFailure{Op: op, Reason: "bad_request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return "", &OnchainFailure{Op: op, Reason: "bad_request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.transportFailure(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &OnchainFailure{Op: op, Reason: "bad_response", Err: err}
	}

	var body txResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &OnchainFailure{Op: op, Reason: "bad_response", Err: err}
	}

	if resp.StatusCode != http.StatusOK || body.Error != "" {
		reason := body.Error
		if reason == "" {
			reason = fmt.Sprintf("status_%d", resp.StatusCode)
		}
		c.log.Warn("treasury call reverted", zap.String("op", op), zap.String("reason", reason))
		return "", &OnchainFailure{Op: op, Reason: reason}
	}
	if body.TxHash == "" {
		return "", &OnchainFailure{Op: op, Reason: "missing_tx_hash"}
	}
	return body.TxHash, nil
}

func (c *HTTPClient) transportFailure(op string, err error) error {
	reason := "unreachable"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	c.log.Warn("treasury call failed", zap.String("op", op), zap.String("reason", reason), zap.Error(err))
	return &OnchainFailure{Op: op, Reason: reason, Err: err}
}
