package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paygate/internal/config"
)

const keyCallbackSender = "paygate:callback:sender:%s"

// CallbackLimiter throttles the confirmation callback endpoint per sender.
// Deliveries are at least once, so a retrying facilitator must not be able
// to flood the reconciler.
type CallbackLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCallbackLimiter(cfg config.Config) (*CallbackLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.CallbackRate <= 0 || limitCfg.CallbackBurst <= 0 {
		return nil, errors.New("callback rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &CallbackLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.CallbackRate,
		burst:   limitCfg.CallbackBurst,
	}, nil
}

func (l *CallbackLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one callback token for the sender. A disabled limiter
// always allows.
func (l *CallbackLimiter) Allow(ctx context.Context, sender string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCallbackSender, strings.TrimSpace(sender)), l.rate, l.burst)
}
