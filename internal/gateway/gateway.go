// Package gateway enforces payment on metered operations. A route registered
// behind RequirePayment never reaches its handler without a validated proof;
// callers without one receive a priced 402 challenge instead.
package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"github.com/smallbiznis/paygate/internal/observability/metrics"
	"github.com/smallbiznis/paygate/internal/proof"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PaymentHeader carries the proof value on metered requests.
const PaymentHeader = "X-Payment"

const (
	ctxKeyPayer  = "gateway.payer"
	ctxKeyAmount = "gateway.amount"
)

// Challenge is the payment-required response body.
type Challenge struct {
	Error    string            `json:"error"`
	MeterID  string            `json:"meterId"`
	Metering meterdomain.Meter `json:"metering"`
	Reason   string            `json:"reason,omitempty"`
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Meters    meterdomain.Service
	Validator proof.Strategy
	Metrics   *metrics.Metrics `optional:"true"`
}

// Interceptor gates handlers behind payment proofs.
type Interceptor struct {
	log       *zap.Logger
	meters    meterdomain.Service
	validator proof.Strategy
	metrics   *metrics.Metrics
}

func New(p Params) *Interceptor {
	return &Interceptor{
		log:       p.Log.Named("gateway"),
		meters:    p.Meters,
		validator: p.Validator,
		metrics:   p.Metrics,
	}
}

// RequirePayment returns middleware gating the route behind the named meter.
// Without a valid proof the downstream handler is never invoked and nothing
// is mutated.
func (i *Interceptor) RequirePayment(meterID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Set("meter_id", meterID)

		m, err := i.meters.GetByResource(ctx, meterID)
		if err != nil {
			if errors.Is(err, meterdomain.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "METER_NOT_FOUND", "meterId": meterID})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
			return
		}

		proofValue := strings.TrimSpace(c.GetHeader(PaymentHeader))
		if proofValue == "" {
			i.metrics.RecordChallenge(ctx, meterID)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, Challenge{
				Error:    "PAYMENT_REQUIRED",
				MeterID:  meterID,
				Metering: *m,
			})
			return
		}

		res, err := i.validator.Validate(ctx, proofValue, *m)
		if err != nil {
			i.log.Error("proof validation failed", zap.String("meter_id", meterID), zap.Error(err))
			i.metrics.RecordProofValidation(ctx, meterID, "error")
			c.AbortWithStatusJSON(http.StatusPaymentRequired, Challenge{
				Error:    "PAYMENT_REQUIRED",
				MeterID:  meterID,
				Metering: *m,
				Reason:   "validation_error",
			})
			return
		}
		if !res.Valid {
			i.metrics.RecordProofValidation(ctx, meterID, "invalid")
			c.AbortWithStatusJSON(http.StatusPaymentRequired, Challenge{
				Error:    "PAYMENT_REQUIRED",
				MeterID:  meterID,
				Metering: *m,
				Reason:   res.Reason,
			})
			return
		}

		i.metrics.RecordProofValidation(ctx, meterID, "valid")
		c.Set(ctxKeyPayer, res.Payer)
		c.Set(ctxKeyAmount, res.Amount)
		c.Next()
	}
}

// PayerFromContext returns the validated payer attached by RequirePayment.
func PayerFromContext(c *gin.Context) string {
	return c.GetString(ctxKeyPayer)
}

// AmountFromContext returns the validated payment amount.
func AmountFromContext(c *gin.Context) string {
	return c.GetString(ctxKeyAmount)
}
