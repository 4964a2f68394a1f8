package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
)

type confirmCallbackRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Token           string `json:"token"`
	Amount          int64  `json:"amount"`
	TxHash          string `json:"txHash"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// ConfirmPaymentCallback is the webhook-style confirmation endpoint. Delivery
// is at least once, so the response codes follow the callback protocol
// exactly: replays return 200 like the first delivery did.
func (s *Server) ConfirmPaymentCallback(c *gin.Context) {
	var req confirmCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	if req.PaymentIntentID == "" || req.Token == "" || req.Amount <= 0 || req.TxHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	resp, err := s.paymentSvc.ConfirmPayment(c.Request.Context(), paymentdomain.ConfirmRequest{
		PaymentIntentID: req.PaymentIntentID,
		TxHash:          req.TxHash,
		Token:           req.Token,
		Amount:          req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrIntentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "PAYMENT_INTENT_NOT_FOUND"})
		case errors.Is(err, paymentdomain.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_STATUS"})
		case errors.Is(err, paymentdomain.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		default:
			AbortWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"companyId": resp.CompanyID,
		"status":    resp.Status,
		"txHash":    resp.TxHash,
	})
}

type createIntentRequest struct {
	CompanyID       string `json:"companyId" binding:"required"`
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	ExternalRef     string `json:"externalRef,omitempty"`
	Token           string `json:"token" binding:"required"`
	AmountToken     int64  `json:"amountToken" binding:"required"`
	AmountUsd       int64  `json:"amountUsd,omitempty"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payment, err := s.paymentSvc.CreateIntent(c.Request.Context(), paymentdomain.CreateIntentRequest{
		CompanyID:       req.CompanyID,
		PaymentIntentID: req.PaymentIntentID,
		ExternalRef:     req.ExternalRef,
		Token:           req.Token,
		AmountToken:     req.AmountToken,
		AmountUsd:       req.AmountUsd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) GetCompanyBalance(c *gin.Context) {
	balance, err := s.paymentSvc.GetBalance(c.Request.Context(), c.Param("companyId"), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}
