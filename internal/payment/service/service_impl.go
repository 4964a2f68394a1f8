package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygate/internal/clock"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	"github.com/smallbiznis/paygate/internal/payment/domain"
	pkgdb "github.com/smallbiznis/paygate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.Payment, error) {
	if strings.TrimSpace(req.CompanyID) == "" ||
		strings.TrimSpace(req.PaymentIntentID) == "" ||
		strings.TrimSpace(req.Token) == "" ||
		req.AmountToken <= 0 {
		return nil, domain.ErrInvalidRequest
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:              s.genID.Generate(),
		CompanyID:       req.CompanyID,
		PaymentIntentID: req.PaymentIntentID,
		ExternalRef:     req.ExternalRef,
		Token:           req.Token,
		AmountToken:     req.AmountToken,
		AmountUsd:       req.AmountUsd,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateIntent
		}
		return nil, err
	}

	s.log.Info("payment intent created",
		zap.String("payment_intent_id", payment.PaymentIntentID),
		zap.String("company_id", payment.CompanyID),
	)
	return payment, nil
}

// ConfirmPayment applies an on-chain confirmation exactly once. Replays of an
// already confirmed intent succeed with AlreadyConfirmed set; the balance is
// only ever incremented by the delivery that wins the guarded update.
func (s *Service) ConfirmPayment(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResponse, error) {
	if strings.TrimSpace(req.PaymentIntentID) == "" ||
		strings.TrimSpace(req.TxHash) == "" ||
		strings.TrimSpace(req.Token) == "" ||
		req.Amount <= 0 {
		s.recordConfirmation(ctx, "invalid_request")
		return nil, domain.ErrInvalidRequest
	}

	payment, err := s.repo.FindByIntentID(ctx, s.db, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.recordConfirmation(ctx, "not_found")
		return nil, domain.ErrIntentNotFound
	}

	switch payment.Status {
	case domain.StatusConfirmedOnchain:
		s.recordConfirmation(ctx, "replay")
		return &domain.ConfirmResponse{
			CompanyID:        payment.CompanyID,
			Status:           payment.Status,
			TxHash:           payment.TxHash,
			AlreadyConfirmed: true,
		}, nil
	case domain.StatusFailed:
		s.recordConfirmation(ctx, "invalid_status")
		return nil, domain.ErrInvalidStatus
	}

	// The callback's amount and token must match the registered intent; the
	// caller is a trusted facilitator but a mismatch still means a bug.
	if req.Token != payment.Token || req.Amount != payment.AmountToken {
		s.recordConfirmation(ctx, "invalid_request")
		return nil, domain.ErrInvalidRequest
	}

	confirmed, err := s.repo.ConfirmAndIncrement(ctx, s.db, payment, req.TxHash)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		// A concurrent delivery won the race; report success without a
		// second increment.
		s.recordConfirmation(ctx, "replay")
		current, err := s.repo.FindByIntentID(ctx, s.db, req.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Status != domain.StatusConfirmedOnchain {
			return nil, domain.ErrInvalidStatus
		}
		return &domain.ConfirmResponse{
			CompanyID:        current.CompanyID,
			Status:           current.Status,
			TxHash:           current.TxHash,
			AlreadyConfirmed: true,
		}, nil
	}

	s.recordConfirmation(ctx, "confirmed")
	s.log.Info("payment confirmed",
		zap.String("payment_intent_id", payment.PaymentIntentID),
		zap.String("company_id", payment.CompanyID),
		zap.String("tx_hash", req.TxHash),
	)

	return &domain.ConfirmResponse{
		CompanyID: payment.CompanyID,
		Status:    domain.StatusConfirmedOnchain,
		TxHash:    req.TxHash,
	}, nil
}

func (s *Service) GetBalance(ctx context.Context, companyID, token string) (*domain.CompanyBalance, error) {
	balance, err := s.repo.FindBalance(ctx, s.db, companyID, token)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return &domain.CompanyBalance{CompanyID: companyID, Token: token}, nil
	}
	return balance, nil
}

func (s *Service) recordConfirmation(ctx context.Context, outcome string) {
	s.obsMetrics.RecordConfirmation(ctx, outcome)
}
