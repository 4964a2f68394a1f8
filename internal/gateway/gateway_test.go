package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paygate/internal/config"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	meterservice "github.com/smallbiznis/paygate/internal/meter/service"
	"github.com/smallbiznis/paygate/internal/proof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStrategy struct {
	result proof.Result
	err    error
	calls  int
}

func (s *stubStrategy) Validate(ctx context.Context, proofValue string, m meterdomain.Meter) (proof.Result, error) {
	s.calls++
	return s.result, s.err
}

func newTestRouter(t *testing.T, strategy proof.Strategy) (*gin.Engine, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	holder, err := config.NewMeterCatalogHolder()
	require.NoError(t, err)
	meters := meterservice.New(meterservice.Params{Log: zap.NewNop(), Catalog: holder})

	interceptor := New(Params{
		Log:       zap.NewNop(),
		Meters:    meters,
		Validator: strategy,
	})

	invoked := 0
	r := gin.New()
	r.POST("/v1/payrolls", interceptor.RequirePayment("payroll_execute"), func(c *gin.Context) {
		invoked++
		c.JSON(http.StatusOK, gin.H{
			"payer":  PayerFromContext(c),
			"amount": AmountFromContext(c),
		})
	})
	return r, &invoked
}

func TestRequirePayment_NoProofChallenges(t *testing.T) {
	r, invoked := newTestRouter(t, &stubStrategy{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payrolls", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var challenge Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challenge))
	assert.Equal(t, "PAYMENT_REQUIRED", challenge.Error)
	assert.Equal(t, "payroll_execute", challenge.MeterID)
	assert.Equal(t, "1", challenge.Metering.Price)
	assert.Equal(t, "USDC", challenge.Metering.Asset)
	assert.Equal(t, "avalanche", challenge.Metering.Chain)

	assert.Zero(t, *invoked, "downstream handler must not run without a proof")
}

func TestRequirePayment_InvalidProofChallengesWithReason(t *testing.T) {
	strategy := &stubStrategy{result: proof.Result{Valid: false, Reason: "expired_authorization"}}
	r, invoked := newTestRouter(t, strategy)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payrolls", nil)
	req.Header.Set(PaymentHeader, "stale-proof")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var challenge Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challenge))
	assert.Equal(t, "expired_authorization", challenge.Reason)
	assert.Zero(t, *invoked)
	assert.Equal(t, 1, strategy.calls)
}

func TestRequirePayment_ValidProofForwardsWithContext(t *testing.T) {
	strategy := &stubStrategy{result: proof.Result{Valid: true, Payer: "0xabc", Amount: "1"}}
	r, invoked := newTestRouter(t, strategy)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payrolls", nil)
	req.Header.Set(PaymentHeader, "good-proof")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, *invoked)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0xabc", body["payer"])
	assert.Equal(t, "1", body["amount"])
}

func TestRequirePayment_UnknownMeter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	holder, err := config.NewMeterCatalogHolder()
	require.NoError(t, err)
	meters := meterservice.New(meterservice.Params{Log: zap.NewNop(), Catalog: holder})
	interceptor := New(Params{Log: zap.NewNop(), Meters: meters, Validator: &stubStrategy{}})

	r := gin.New()
	r.POST("/v1/other", interceptor.RequirePayment("no_such_meter"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/other", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
