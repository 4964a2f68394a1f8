package proof

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	"github.com/smallbiznis/paygate/internal/facilitator"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"go.uber.org/zap"
)

// FacilitatorStrategy delegates the verdict to the external facilitator.
// Any transport failure fails closed: an unreachable facilitator rejects
// the request rather than letting it through.
type FacilitatorStrategy struct {
	client *facilitator.Client
	clock  clock.Clock
	log    *zap.Logger
}

func NewFacilitatorStrategy(client *facilitator.Client, clk clock.Clock, log *zap.Logger) *FacilitatorStrategy {
	return &FacilitatorStrategy{
		client: client,
		clock:  clk,
		log:    log.Named("proof.facilitator"),
	}
}

func (s *FacilitatorStrategy) Validate(ctx context.Context, proofValue string, m meterdomain.Meter) (Result, error) {
	if strings.TrimSpace(proofValue) == "" {
		return Result{Valid: false, Reason: ErrMissingProof.Error()}, nil
	}

	if auth, ok := ParseAuthorization(proofValue); ok {
		if err := PrecheckAuthorization(auth, s.clock.Now()); err != nil {
			return Result{Valid: false, Reason: err.Error()}, nil
		}
	}

	resp, err := s.client.Validate(ctx, facilitator.ValidateRequest{
		Proof:   proofValue,
		MeterID: m.Resource,
		Price:   m.Price,
		Asset:   m.Asset,
		Chain:   m.Chain,
	})
	if err != nil {
		if errors.Is(err, facilitator.ErrUnavailable) {
			s.log.Warn("facilitator unreachable, failing closed",
				zap.String("meter_id", m.Resource),
				zap.Error(err),
			)
			return Result{Valid: false, Reason: "facilitator_unreachable"}, nil
		}
		return Result{}, err
	}

	if !resp.Valid {
		reason := resp.Error
		if reason == "" {
			reason = "invalid_proof"
		}
		return Result{Valid: false, Reason: reason}, nil
	}

	amount := resp.Amount
	if amount == "" {
		amount = m.Price
	}
	return Result{Valid: true, Payer: resp.Payer, Amount: amount}, nil
}

// SandboxBypassStrategy accepts the fixed sandbox literal and delegates
// everything else to the wrapped strategy. It is only wired when the
// deployment is sandbox-flagged and not production.
type SandboxBypassStrategy struct {
	next Strategy
	log  *zap.Logger
}

func NewSandboxBypassStrategy(next Strategy, log *zap.Logger) *SandboxBypassStrategy {
	return &SandboxBypassStrategy{next: next, log: log.Named("proof.sandbox")}
}

func (s *SandboxBypassStrategy) Validate(ctx context.Context, proofValue string, m meterdomain.Meter) (Result, error) {
	if strings.TrimSpace(proofValue) == BypassProof {
		s.log.Info("sandbox bypass accepted", zap.String("meter_id", m.Resource))
		return Result{Valid: true, Payer: SandboxPayer, Amount: m.Price}, nil
	}
	return s.next.Validate(ctx, proofValue, m)
}

// New selects the validation strategy for this deployment. The selection
// happens once at construction, not per request.
func New(cfg config.Config, client *facilitator.Client, clk clock.Clock, log *zap.Logger) Strategy {
	base := NewFacilitatorStrategy(client, clk, log)
	if cfg.BypassEnabled() {
		log.Named("proof").Warn("sandbox payment bypass enabled")
		return NewSandboxBypassStrategy(base, log)
	}
	return base
}
