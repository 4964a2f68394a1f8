package payoutrail

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

func TestMock_ProcessesThenCompletes(t *testing.T) {
	m := NewMock(20 * time.Millisecond)

	w, err := m.InitiateWithdrawal(context.Background(), 1000, "USD", "acct_123")
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)
	assert.Equal(t, StatusProcessing, w.Status)

	status, err := m.GetStatus(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status)

	require.Eventually(t, func() bool {
		status, err := m.GetStatus(context.Background(), w.ID)
		return err == nil && status == StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestMock_InvalidInputs(t *testing.T) {
	m := NewMock(time.Millisecond)

	_, err := m.InitiateWithdrawal(context.Background(), 0, "USD", "acct_123")
	var failure *RailFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "invalid_amount", failure.Reason)

	_, err = m.InitiateWithdrawal(context.Background(), 100, "USD", "")
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "missing_recipient", failure.Reason)
}

func TestMock_UnknownWithdrawal(t *testing.T) {
	m := NewMock(time.Millisecond)

	_, err := m.GetStatus(context.Background(), "no-such-id")
	var failure *RailFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "withdrawal_not_found", failure.Reason)
}

func TestHTTPClient_InitiateWithdrawal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/withdrawals", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1000), body["amount"])
		assert.Equal(t, "USD", body["currency"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Withdrawal{ID: "wd_1", Status: StatusProcessing})
	}))
	defer srv.Close()

	cfg := config.Config{}
	cfg.Rail.URL = srv.URL
	cfg.Rail.APIKey = "secret"
	client := NewHTTPClient(cfg, zap.NewNop())

	w, err := client.InitiateWithdrawal(context.Background(), 1000, "USD", "acct_123")
	require.NoError(t, err)
	assert.Equal(t, "wd_1", w.ID)
	assert.Equal(t, StatusProcessing, w.Status)
}

func TestHTTPClient_StatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := config.Config{}
	cfg.Rail.URL = srv.URL
	client := NewHTTPClient(cfg, zap.NewNop())

	_, err := client.GetStatus(context.Background(), "wd_missing")
	var failure *RailFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "withdrawal_not_found", failure.Reason)
}

func TestNewClient_SelectsMockByDefault(t *testing.T) {
	cfg := config.Config{}
	cfg.Rail.Mock = true

	client := NewClient(cfg, zap.NewNop())
	_, ok := client.(*Mock)
	assert.True(t, ok)
}
