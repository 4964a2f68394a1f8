package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paygate/internal/facilitator"
	"github.com/smallbiznis/paygate/internal/gateway"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"github.com/smallbiznis/paygate/internal/proof"
	"go.uber.org/zap"
)

// Agent-protocol metadata keys and statuses.
const (
	metaPaymentPayload = "x402.payment.payload"
	metaPaymentStatus  = "x402.payment.status"
	metaPaymentMeter   = "x402.payment.meterId"

	paymentStatusSubmitted = "payment-submitted"
	paymentStatusVerified  = "payment-verified"
	paymentStatusRejected  = "payment-rejected"
	paymentStatusRequired  = "payment-required"

	defaultAgentMeter = "payroll_execute"
)

type agentMessageRequest struct {
	MessageID string            `json:"messageId"`
	Metadata  map[string]string `json:"metadata"`
}

type settlementBody struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// HandleAgentMessage is the agent-protocol variant of the gateway: the proof
// travels in message metadata instead of a header, and a verified proof is
// settled immediately with the facilitator.
func (s *Server) HandleAgentMessage(c *gin.Context) {
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if status := req.Metadata[metaPaymentStatus]; status != "" && status != paymentStatusSubmitted {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	meterID := req.Metadata[metaPaymentMeter]
	if meterID == "" {
		meterID = defaultAgentMeter
	}

	m, err := s.meterSvc.GetByResource(c.Request.Context(), meterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payload := req.Metadata[metaPaymentPayload]
	if payload == "" {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"messageId": req.MessageID,
			"metadata":  gin.H{metaPaymentStatus: paymentStatusRequired},
			"challenge": gateway.Challenge{
				Error:    "PAYMENT_REQUIRED",
				MeterID:  meterID,
				Metering: *m,
			},
		})
		return
	}

	res, err := s.validator.Validate(c.Request.Context(), payload, *m)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !res.Valid {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"messageId": req.MessageID,
			"metadata":  gin.H{metaPaymentStatus: paymentStatusRejected},
			"challenge": gateway.Challenge{
				Error:    "PAYMENT_REQUIRED",
				MeterID:  meterID,
				Metering: *m,
				Reason:   res.Reason,
			},
		})
		return
	}

	settlement := s.settleAgentPayment(c, payload, *m, res)

	c.JSON(http.StatusOK, gin.H{
		"messageId":  req.MessageID,
		"metadata":   gin.H{metaPaymentStatus: paymentStatusVerified},
		"settlement": settlement,
	})
}

// settleAgentPayment submits the verified proof for settlement. The bypass
// literal never reaches the facilitator; it settles synthetically.
func (s *Server) settleAgentPayment(c *gin.Context, payload string, m meterdomain.Meter, res proof.Result) settlementBody {
	if payload == proof.BypassProof {
		return settlementBody{
			Success: true,
			Network: s.cfg.Treasury.Network,
			Payer:   res.Payer,
		}
	}

	resp, err := s.facilitator.Settle(c.Request.Context(), facilitator.SettleRequest{
		Proof:   payload,
		MeterID: m.Resource,
		Price:   m.Price,
		Asset:   m.Asset,
		Chain:   m.Chain,
	})
	if err != nil {
		s.log.Warn("agent settlement failed", zap.String("meter_id", m.Resource), zap.Error(err))
		if errors.Is(err, facilitator.ErrUnavailable) {
			return settlementBody{Success: false, ErrorReason: "facilitator_unreachable"}
		}
		return settlementBody{Success: false, ErrorReason: "settlement_error"}
	}

	return settlementBody{
		Success:     resp.Success,
		Transaction: resp.Transaction,
		Network:     resp.Network,
		Payer:       resp.Payer,
		ErrorReason: resp.ErrorReason,
	}
}
