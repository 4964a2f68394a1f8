// Package proof decides whether a presented payment proof authorizes a meter.
// The decision is made by a strategy selected once at process start: either
// delegation to the facilitator, or (sandbox deployments only) a bypass
// wrapper that accepts a fixed literal. The bypass strategy is never
// constructed for production-flagged deployments.
package proof

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
)

const (
	// BypassProof is the publicly documented sandbox literal. It is public
	// knowledge, so it must never be enough on its own; the bypass strategy
	// is only wired when the deployment explicitly opts in.
	BypassProof = "x402.sandbox.bypass"

	// SandboxPayer is the synthetic payer attributed to bypassed proofs.
	SandboxPayer = "0x0000000000000000000000000000000000000ba5"
)

var evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Result is the validation verdict handed to the gateway.
type Result struct {
	Valid  bool
	Payer  string
	Amount string
	Reason string
}

// Strategy validates a payment proof against a meter.
type Strategy interface {
	Validate(ctx context.Context, proofValue string, m meterdomain.Meter) (Result, error)
}

// Authorization is a signed, time-bounded transfer permission. Only the
// derived payer/amount are retained after validation; the raw proof is
// never persisted.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

var (
	ErrMissingProof = errors.New("missing_proof")
	ErrExpiredProof = errors.New("expired_authorization")
	ErrNotYetValid  = errors.New("authorization_not_yet_valid")
)

// ParseAuthorization decodes a serialized structured authorization. Proofs
// that are not JSON are treated as opaque and passed to the facilitator
// unchanged, so a parse failure is not an error here.
func ParseAuthorization(proofValue string) (*Authorization, bool) {
	proofValue = strings.TrimSpace(proofValue)
	if !strings.HasPrefix(proofValue, "{") {
		return nil, false
	}
	var auth Authorization
	if err := json.Unmarshal([]byte(proofValue), &auth); err != nil {
		return nil, false
	}
	if auth.From == "" || auth.Signature == "" {
		return nil, false
	}
	return &auth, true
}

// PrecheckAuthorization rejects authorizations that are structurally wrong
// before the facilitator round trip: malformed payer address or a validity
// window that excludes now.
func PrecheckAuthorization(auth *Authorization, now time.Time) error {
	if auth == nil {
		return nil
	}
	if !evmAddressRegex.MatchString(auth.From) {
		return ErrMissingProof
	}
	unix := now.Unix()
	if auth.ValidBefore != 0 && unix >= auth.ValidBefore {
		return ErrExpiredProof
	}
	if auth.ValidAfter != 0 && unix < auth.ValidAfter {
		return ErrNotYetValid
	}
	return nil
}
