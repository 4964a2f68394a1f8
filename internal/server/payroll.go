package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paygate/internal/gateway"
	payrolldomain "github.com/smallbiznis/paygate/internal/payroll/domain"
)

type executePayrollRequest struct {
	Currency   string `json:"currency" binding:"required"`
	Recipients []struct {
		Recipient string `json:"recipient" binding:"required"`
		Amount    int64  `json:"amount" binding:"required"`
	} `json:"recipients" binding:"required"`
}

// ExecutePayroll runs the settlement state machine for one payroll batch.
// The gateway has already validated payment; the payer travels with the run.
func (s *Server) ExecutePayroll(c *gin.Context) {
	var req executePayrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	recipients := make([]payrolldomain.RecipientInput, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		recipients = append(recipients, payrolldomain.RecipientInput{
			Recipient: r.Recipient,
			Amount:    r.Amount,
		})
	}

	result, err := s.payrollSvc.Execute(c.Request.Context(), payrolldomain.ExecuteRequest{
		Currency:   req.Currency,
		Payer:      gateway.PayerFromContext(c),
		Recipients: recipients,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Settlement step failures are part of the result body, not an HTTP error.
	c.JSON(http.StatusOK, result)
}

func (s *Server) GetPayroll(c *gin.Context) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	detail, err := s.payrollSvc.Get(c.Request.Context(), snowflake.ID(id))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) ListMeters(c *gin.Context) {
	meters, err := s.meterSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meters": meters})
}
