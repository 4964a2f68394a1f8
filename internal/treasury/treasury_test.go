package treasury

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/paygate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHTTPClient(url string, timeout time.Duration) *HTTPClient {
	cfg := config.Config{}
	cfg.Treasury.URL = url
	cfg.Treasury.ContractAddress = "0x00000000000000000000000000000000000000aa"
	cfg.Treasury.Network = "avalanche"
	cfg.Treasury.Timeout = timeout
	return NewHTTPClient(cfg, zap.NewNop())
}

func TestHTTPClient_RequestPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/request_payment", r.URL.Path)

		var req txRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xpayee", req.Payee)
		assert.Equal(t, int64(100), req.Amount)
		assert.Equal(t, "USDC", req.Token)

		json.NewEncoder(w).Encode(txResponse{TxHash: "0xfeed"})
	}))
	defer srv.Close()

	hash, err := newHTTPClient(srv.URL, 2*time.Second).RequestPayment(context.Background(), "0xpayee", 100, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", hash)
}

func TestHTTPClient_RevertIsOnchainFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(txResponse{Error: "execution_reverted"})
	}))
	defer srv.Close()

	_, err := newHTTPClient(srv.URL, 2*time.Second).ExecutePayment(context.Background(), "0xa", "0xb", 100, "USDC")
	require.Error(t, err)

	var failure *OnchainFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "execute_payment", failure.Op)
	assert.Equal(t, "execution_reverted", failure.Reason)
}

func TestHTTPClient_TimeoutIsOnchainFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := newHTTPClient(srv.URL, 20*time.Millisecond).RequestPayment(context.Background(), "0xpayee", 100, "USDC")
	require.Error(t, err)

	var failure *OnchainFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "timeout", failure.Reason)
}

func TestHTTPClient_GetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/balance", r.URL.Path)
		assert.Equal(t, "USDC", r.URL.Query().Get("token"))
		json.NewEncoder(w).Encode(map[string]int64{"balance": 5000})
	}))
	defer srv.Close()

	balance, err := newHTTPClient(srv.URL, 2*time.Second).GetBalance(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
}

func TestMock_DeterministicButDistinctHashes(t *testing.T) {
	m := NewMock(1000)

	h1, err := m.RequestPayment(context.Background(), "0xpayee", 100, "USDC")
	require.NoError(t, err)
	h2, err := m.ExecutePayment(context.Background(), "0xa", "0xpayee", 100, "USDC")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", h1)
}

func TestMock_InsufficientBalance(t *testing.T) {
	m := NewMock(50)

	_, err := m.ExecutePayment(context.Background(), "0xa", "0xb", 100, "USDC")
	var failure *OnchainFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "insufficient_balance", failure.Reason)
}

type fakeSource struct {
	mu     sync.Mutex
	events []ConfirmationEvent
}

func (s *fakeSource) Poll(ctx context.Context) ([]ConfirmationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out, nil
}

func TestListener_DeliversEvents(t *testing.T) {
	source := &fakeSource{events: []ConfirmationEvent{
		{PaymentIntentID: "pi_1", TxHash: "0x1", Token: "USDC", Amount: 100},
		{PaymentIntentID: "pi_2", TxHash: "0x2", Token: "USDC", Amount: 200},
	}}

	received := make(chan ConfirmationEvent, 2)
	handler := func(ctx context.Context, ev ConfirmationEvent) error {
		received <- ev
		return nil
	}

	l := NewListener(source, handler, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	var got []ConfirmationEvent
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-received:
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, "pi_1", got[0].PaymentIntentID)
	assert.Equal(t, "pi_2", got[1].PaymentIntentID)
}

func TestListener_StopIsIdempotent(t *testing.T) {
	l := NewListener(&fakeSource{}, func(ctx context.Context, ev ConfirmationEvent) error { return nil }, 10*time.Millisecond, zap.NewNop())

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Stop(context.Background()))
	require.NoError(t, l.Stop(context.Background()))
}
