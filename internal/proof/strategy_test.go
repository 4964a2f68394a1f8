package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	"github.com/smallbiznis/paygate/internal/facilitator"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testMeter = meterdomain.Meter{
	Resource: "payroll_execute",
	Price:    "1",
	Asset:    "USDC",
	Chain:    "avalanche",
}

func newFacilitatorClient(url string) *facilitator.Client {
	cfg := config.Config{}
	cfg.Facilitator.URL = url
	cfg.Facilitator.Timeout = 2 * time.Second
	return facilitator.New(cfg, zap.NewNop())
}

func facilitatorStub(t *testing.T, resp facilitator.ValidateResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/validate", r.URL.Path)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestFacilitatorStrategy_ValidProof(t *testing.T) {
	srv := facilitatorStub(t, facilitator.ValidateResponse{Valid: true, Payer: "0xabc", Amount: "1"})
	defer srv.Close()

	s := NewFacilitatorStrategy(newFacilitatorClient(srv.URL), clock.NewSystemClock(), zap.NewNop())

	res, err := s.Validate(context.Background(), "opaque-proof", testMeter)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "0xabc", res.Payer)
	assert.Equal(t, "1", res.Amount)
}

func TestFacilitatorStrategy_MissingProof(t *testing.T) {
	s := NewFacilitatorStrategy(newFacilitatorClient("http://127.0.0.1:0"), clock.NewSystemClock(), zap.NewNop())

	res, err := s.Validate(context.Background(), "   ", testMeter)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "missing_proof", res.Reason)
}

func TestFacilitatorStrategy_UnreachableFailsClosed(t *testing.T) {
	s := NewFacilitatorStrategy(newFacilitatorClient("http://127.0.0.1:0"), clock.NewSystemClock(), zap.NewNop())

	res, err := s.Validate(context.Background(), "opaque-proof", testMeter)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "facilitator_unreachable", res.Reason)
}

func TestFacilitatorStrategy_InvalidVerdictMapped(t *testing.T) {
	srv := facilitatorStub(t, facilitator.ValidateResponse{Valid: false, Error: "insufficient_value"})
	defer srv.Close()

	s := NewFacilitatorStrategy(newFacilitatorClient(srv.URL), clock.NewSystemClock(), zap.NewNop())

	res, err := s.Validate(context.Background(), "opaque-proof", testMeter)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "insufficient_value", res.Reason)
}

func TestFacilitatorStrategy_ExpiredAuthorizationRejectedLocally(t *testing.T) {
	srv := facilitatorStub(t, facilitator.ValidateResponse{Valid: true, Payer: "0xabc"})
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	s := NewFacilitatorStrategy(newFacilitatorClient(srv.URL), clk, zap.NewNop())

	authJSON := fmt.Sprintf(`{
		"from": "0x1111111111111111111111111111111111111111",
		"to": "0x2222222222222222222222222222222222222222",
		"value": "1000000",
		"validAfter": %d,
		"validBefore": %d,
		"nonce": "0x01",
		"signature": "0xsig"
	}`, now.Add(-time.Hour).Unix(), now.Add(-time.Minute).Unix())

	res, err := s.Validate(context.Background(), authJSON, testMeter)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "expired_authorization", res.Reason)
}

func TestSandboxBypass_LiteralAccepted(t *testing.T) {
	// The wrapped strategy must never be reached for the literal.
	s := NewSandboxBypassStrategy(
		NewFacilitatorStrategy(newFacilitatorClient("http://127.0.0.1:0"), clock.NewSystemClock(), zap.NewNop()),
		zap.NewNop(),
	)

	res, err := s.Validate(context.Background(), BypassProof, testMeter)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, SandboxPayer, res.Payer)
	assert.Equal(t, testMeter.Price, res.Amount)
}

func TestSandboxBypass_OtherProofsDelegated(t *testing.T) {
	srv := facilitatorStub(t, facilitator.ValidateResponse{Valid: false, Error: "invalid_signature"})
	defer srv.Close()

	s := NewSandboxBypassStrategy(
		NewFacilitatorStrategy(newFacilitatorClient(srv.URL), clock.NewSystemClock(), zap.NewNop()),
		zap.NewNop(),
	)

	res, err := s.Validate(context.Background(), "not-the-literal", testMeter)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "invalid_signature", res.Reason)
}

func TestNew_BypassLiteralRejectedOutsideSandbox(t *testing.T) {
	srv := facilitatorStub(t, facilitator.ValidateResponse{Valid: false, Error: "invalid_proof"})
	defer srv.Close()

	cfg := config.Config{Environment: "production"}
	cfg.Facilitator.URL = srv.URL
	cfg.Facilitator.Sandbox = true
	cfg.Facilitator.Timeout = 2 * time.Second
	require.False(t, cfg.BypassEnabled())

	s := New(cfg, facilitator.New(cfg, zap.NewNop()), clock.NewSystemClock(), zap.NewNop())

	res, err := s.Validate(context.Background(), BypassProof, testMeter)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestNew_SandboxSelectsBypass(t *testing.T) {
	cfg := config.Config{Environment: "development"}
	cfg.Facilitator.Sandbox = true
	require.True(t, cfg.BypassEnabled())

	s := New(cfg, facilitator.New(cfg, zap.NewNop()), clock.NewSystemClock(), zap.NewNop())

	_, ok := s.(*SandboxBypassStrategy)
	assert.True(t, ok)
}
