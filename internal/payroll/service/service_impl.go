package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygate/internal/archive"
	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	"github.com/smallbiznis/paygate/internal/payoutrail"
	"github.com/smallbiznis/paygate/internal/payroll/domain"
	"github.com/smallbiznis/paygate/internal/treasury"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	stepBalanceCheck   = "balance_check"
	stepRequestPayment = "request_payment"
	stepExecutePayment = "execute_payment"
	stepInitiateRail   = "initiate_withdrawal"
	stepConfirmRail    = "rail_confirmation"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Clock      clock.Clock
	Repo       domain.Repository
	Treasury   treasury.Client
	Rail       payoutrail.Client
	Archiver   *archive.Archiver   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	clock      clock.Clock
	repo       domain.Repository
	treasury   treasury.Client
	rail       payoutrail.Client
	archiver   *archive.Archiver
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payroll.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		clock:      p.Clock,
		repo:       p.Repo,
		treasury:   p.Treasury,
		rail:       p.Rail,
		archiver:   p.Archiver,
		obsMetrics: p.ObsMetrics,
	}
}

// Execute creates one payroll aggregate and drives it to a terminal status
// within this call. Step failures are folded into the result, not raised;
// prior successful steps are never rolled back.
func (s *Service) Execute(ctx context.Context, req domain.ExecuteRequest) (*domain.SettlementResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payroll := &domain.Payroll{
		ID:        s.genID.Generate(),
		Currency:  req.Currency,
		Status:    domain.StatusPending,
		Payer:     req.Payer,
		CreatedAt: now,
		UpdatedAt: now,
	}

	payments := make([]*domain.OutboundPayment, 0, len(req.Recipients))
	for _, in := range req.Recipients {
		payroll.Total += in.Amount
		payments = append(payments, &domain.OutboundPayment{
			ID:        s.genID.Generate(),
			PayrollID: payroll.ID,
			Amount:    in.Amount,
			Currency:  req.Currency,
			Recipient: in.Recipient,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.repo.CreateWithPayments(ctx, s.db, payroll, payments); err != nil {
		return nil, err
	}

	result := &domain.SettlementResult{
		PayrollID: payroll.ID,
		Status:    domain.StatusPending,
		Outcome:   domain.OutcomeSettled,
		Total:     payroll.Total,
		Currency:  payroll.Currency,
	}

	s.log.Info("payroll created",
		zap.Int64("payroll_id", payroll.ID.Int64()),
		zap.Int64("total", payroll.Total),
		zap.Int("payments", len(payments)),
	)

	s.settle(ctx, payroll, result)
	return result, nil
}

// settle runs the state machine. The first failing step marks the aggregate
// FAILED and stops; hashes and ids already persisted stay in place.
func (s *Service) settle(ctx context.Context, payroll *domain.Payroll, result *domain.SettlementResult) {
	token := s.cfg.Treasury.Token

	// Balance check is advisory: a read failure is logged and skipped, but a
	// confirmed shortfall fails the run before any transaction is submitted.
	balance, err := s.treasury.GetBalance(ctx, token)
	if err != nil {
		s.log.Warn("treasury balance read failed, continuing", zap.Error(err))
	} else if balance < payroll.Total {
		s.fail(ctx, payroll, result, stepBalanceCheck,
			fmt.Errorf("treasury balance %d below payroll total %d", balance, payroll.Total))
		return
	}

	requestHash, err := s.treasury.RequestPayment(ctx, s.cfg.Treasury.ContractAddress, payroll.Total, token)
	if err != nil {
		s.fail(ctx, payroll, result, stepRequestPayment, err)
		return
	}
	result.TxRequestHash = requestHash

	executeHash, err := s.treasury.ExecutePayment(ctx, payroll.Payer, s.cfg.Treasury.ContractAddress, payroll.Total, token)
	if err != nil {
		// The request intent is already on-chain; it is recorded, not reversed.
		s.fail(ctx, payroll, result, stepExecutePayment, err, withHashes(requestHash, ""))
		return
	}
	result.TxExecuteHash = executeHash

	if err := s.transition(ctx, payroll, domain.StatusOnchainPaid, domain.TransitionUpdate{
		TxRequestHash: &requestHash,
		TxExecuteHash: &executeHash,
	}); err != nil {
		s.fail(ctx, payroll, result, stepExecutePayment, err)
		return
	}
	result.Status = domain.StatusOnchainPaid
	s.recordStep(ctx, stepExecutePayment, "success")

	withdrawal, err := s.rail.InitiateWithdrawal(ctx, payroll.Total, payroll.Currency, fmt.Sprintf("payroll_%d", payroll.ID.Int64()))
	if err != nil {
		s.fail(ctx, payroll, result, stepInitiateRail, err)
		return
	}
	result.WithdrawalID = withdrawal.ID

	if err := s.transition(ctx, payroll, domain.StatusRailProcessing, domain.TransitionUpdate{
		WithdrawalID: &withdrawal.ID,
	}); err != nil {
		s.fail(ctx, payroll, result, stepInitiateRail, err)
		return
	}
	result.Status = domain.StatusRailProcessing
	s.recordStep(ctx, stepInitiateRail, "success")

	if err := s.awaitRail(ctx, withdrawal.ID); err != nil {
		s.fail(ctx, payroll, result, stepConfirmRail, err)
		return
	}

	if err := s.transition(ctx, payroll, domain.StatusPaid, domain.TransitionUpdate{}); err != nil {
		s.fail(ctx, payroll, result, stepConfirmRail, err)
		return
	}
	result.Status = domain.StatusPaid
	result.Outcome = domain.OutcomeSettled
	s.recordStep(ctx, stepConfirmRail, "success")

	s.log.Info("payroll settled", zap.Int64("payroll_id", payroll.ID.Int64()))
	s.archiveReceipt(ctx, payroll, result)
}

func (s *Service) awaitRail(ctx context.Context, withdrawalID string) error {
	attempts := s.cfg.Rail.PollAttempts
	if attempts <= 0 {
		attempts = 20
	}
	interval := s.cfg.Rail.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for i := 0; i < attempts; i++ {
		status, err := s.rail.GetStatus(ctx, withdrawalID)
		if err != nil {
			return err
		}
		switch status {
		case payoutrail.StatusCompleted:
			return nil
		case payoutrail.StatusFailed:
			return &payoutrail.RailFailure{Op: "get_status", Reason: "withdrawal_failed"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return &payoutrail.RailFailure{Op: "get_status", Reason: "confirmation_timeout"}
}

func (s *Service) transition(ctx context.Context, payroll *domain.Payroll, to domain.Status, update domain.TransitionUpdate) error {
	if err := s.repo.Transition(ctx, s.db, payroll.ID, payroll.Status, to, update); err != nil {
		return err
	}
	payroll.Status = to
	return nil
}

func withHashes(requestHash, executeHash string) domain.TransitionUpdate {
	update := domain.TransitionUpdate{}
	if requestHash != "" {
		update.TxRequestHash = &requestHash
	}
	if executeHash != "" {
		update.TxExecuteHash = &executeHash
	}
	return update
}

func (s *Service) fail(ctx context.Context, payroll *domain.Payroll, result *domain.SettlementResult, step string, cause error, updates ...domain.TransitionUpdate) {
	result.Outcome = domain.OutcomePartiallyFailed
	result.Errors = append(result.Errors, domain.StepError{Step: step, Error: cause.Error()})
	s.recordStep(ctx, step, "failed")

	s.log.Warn("settlement step failed",
		zap.Int64("payroll_id", payroll.ID.Int64()),
		zap.String("step", step),
		zap.Error(cause),
	)

	update := domain.TransitionUpdate{}
	if len(updates) > 0 {
		update = updates[0]
	}
	if raw, err := json.Marshal(result.Errors); err == nil {
		update.StepErrors = datatypes.JSON(raw)
	}

	if err := s.transition(ctx, payroll, domain.StatusFailed, update); err != nil {
		s.log.Error("failed to persist FAILED status",
			zap.Int64("payroll_id", payroll.ID.Int64()),
			zap.Error(err),
		)
	}
	result.Status = domain.StatusFailed
}

func (s *Service) validate(req domain.ExecuteRequest) error {
	if len(req.Recipients) != s.cfg.PayrollBatchSize {
		return fmt.Errorf("%w: expected %d recipients, got %d", domain.ErrInvalidBatchSize, s.cfg.PayrollBatchSize, len(req.Recipients))
	}
	if req.Currency == "" {
		return domain.ErrInvalidCurrency
	}
	for _, in := range req.Recipients {
		if in.Amount <= 0 {
			return domain.ErrInvalidAmount
		}
		if in.Recipient == "" {
			return domain.ErrInvalidRecipient
		}
	}
	return nil
}

// Get returns the aggregate and re-checks the creation invariant on read.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.PayrollDetail, error) {
	payroll, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payroll == nil {
		return nil, domain.ErrNotFound
	}

	payments, err := s.repo.FindPayments(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	var sum int64
	for _, p := range payments {
		sum += p.Amount
	}
	if sum != payroll.Total {
		s.log.Error("payroll total does not match payment sum",
			zap.Int64("payroll_id", payroll.ID.Int64()),
			zap.Int64("total", payroll.Total),
			zap.Int64("sum", sum),
		)
		return nil, domain.ErrTotalMismatch
	}

	return &domain.PayrollDetail{Payroll: *payroll, Payments: payments}, nil
}

func (s *Service) recordStep(ctx context.Context, step, outcome string) {
	s.obsMetrics.RecordSettlementStep(ctx, step, outcome)
}

func (s *Service) archiveReceipt(ctx context.Context, payroll *domain.Payroll, result *domain.SettlementResult) {
	if s.archiver == nil {
		return
	}

	payments, err := s.repo.FindPayments(ctx, s.db, payroll.ID)
	if err != nil {
		s.log.Warn("receipt skipped, payments read failed", zap.Error(err))
		return
	}

	lines := make([]archive.ReceiptLine, 0, len(payments))
	for _, p := range payments {
		lines = append(lines, archive.ReceiptLine{Recipient: p.Recipient, Amount: p.Amount})
	}

	s.archiver.Enqueue(archive.Receipt{
		PayrollID:     fmt.Sprintf("%d", payroll.ID.Int64()),
		Total:         payroll.Total,
		Currency:      payroll.Currency,
		Status:        string(result.Status),
		TxExecuteHash: result.TxExecuteHash,
		WithdrawalID:  result.WithdrawalID,
		SettledAt:     s.clock.Now(),
		Lines:         lines,
	})
}
