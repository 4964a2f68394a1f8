package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/paygate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url string) *Client {
	cfg := config.Config{}
	cfg.Facilitator.URL = url
	cfg.Facilitator.Timeout = 2 * time.Second
	return New(cfg, zap.NewNop())
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"network":   "avalanche",
			"timestamp": "2026-01-02T15:04:05Z",
		})
	}))
	defer srv.Close()

	status, err := newTestClient(srv.URL).CheckHealth(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, "avalanche", status.Network)
	assert.False(t, status.Timestamp.IsZero())
}

func TestCheckHealth_Unreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")

	_, err := client.CheckHealth(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestValidate_MapsResponseThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/validate", r.URL.Path)

		var req ValidateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "payroll_execute", req.MeterID)
		assert.Equal(t, "1", req.Price)
		assert.Equal(t, "USDC", req.Asset)
		assert.Equal(t, "avalanche", req.Chain)

		json.NewEncoder(w).Encode(ValidateResponse{
			Valid:  true,
			Payer:  "0xabc",
			Amount: "1",
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Validate(context.Background(), ValidateRequest{
		Proof:   "proof-blob",
		MeterID: "payroll_execute",
		Price:   "1",
		Asset:   "USDC",
		Chain:   "avalanche",
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "0xabc", resp.Payer)
	assert.Equal(t, "1", resp.Amount)
}

func TestValidate_InvalidVerdictIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ValidateResponse{Valid: false, Error: "expired_authorization"})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Validate(context.Background(), ValidateRequest{Proof: "p", MeterID: "m"})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, "expired_authorization", resp.Error)
}

func TestValidate_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Validate(context.Background(), ValidateRequest{Proof: "p", MeterID: "m"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSettle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settle", r.URL.Path)
		json.NewEncoder(w).Encode(SettleResponse{
			Success:     true,
			Transaction: "0xdeadbeef",
			Network:     "avalanche",
			Payer:       "0xabc",
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Settle(context.Background(), SettleRequest{Proof: "p", MeterID: "m"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xdeadbeef", resp.Transaction)
}
