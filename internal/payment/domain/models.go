package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle of an inbound payment intent.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusConfirmedOnchain Status = "CONFIRMED_ONCHAIN"
	StatusFailed           Status = "FAILED"
)

// Payment is an inbound payment record for a company receiving funds.
// PaymentIntentID is the idempotency key for confirmation.
type Payment struct {
	ID              snowflake.ID `json:"id"`
	CompanyID       string       `json:"companyId"`
	PaymentIntentID string       `json:"paymentIntentId" gorm:"uniqueIndex"`
	ExternalRef     string       `json:"externalRef,omitempty"`
	Token           string       `json:"token"`
	AmountToken     int64        `json:"amountToken"`
	AmountUsd       int64        `json:"amountUsd"`
	Status          Status       `json:"status"`
	TxHash          string       `json:"txHash,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// CompanyBalance accumulates confirmed inbound payments per company and
// token. It is mutated only by atomic increments, never overwritten.
type CompanyBalance struct {
	CompanyID    string    `json:"companyId" gorm:"primaryKey"`
	Token        string    `json:"token" gorm:"primaryKey"`
	BalanceToken int64     `json:"balanceToken"`
	BalanceUsd   int64     `json:"balanceUsd"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateIntentRequest registers an expected inbound payment.
type CreateIntentRequest struct {
	CompanyID       string `json:"companyId"`
	PaymentIntentID string `json:"paymentIntentId"`
	ExternalRef     string `json:"externalRef,omitempty"`
	Token           string `json:"token"`
	AmountToken     int64  `json:"amountToken"`
	AmountUsd       int64  `json:"amountUsd"`
}

// ConfirmRequest is the asynchronous confirmation callback payload.
// Delivery is at least once; confirmation must be idempotent.
type ConfirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	TxHash          string `json:"txHash"`
	Token           string `json:"token"`
	Amount          int64  `json:"amount"`
}

// ConfirmResponse reports the confirmation outcome. AlreadyConfirmed marks an
// idempotent replay, which is a success, not an error.
type ConfirmResponse struct {
	CompanyID        string `json:"companyId"`
	Status           Status `json:"status"`
	TxHash           string `json:"txHash"`
	AlreadyConfirmed bool   `json:"alreadyConfirmed,omitempty"`
}

type Service interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Payment, error)
	ConfirmPayment(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, error)
	GetBalance(ctx context.Context, companyID, token string) (*CompanyBalance, error)
}

var (
	ErrIntentNotFound  = errors.New("payment_intent_not_found")
	ErrDuplicateIntent = errors.New("duplicate_payment_intent")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidRequest  = errors.New("invalid_request")
)
