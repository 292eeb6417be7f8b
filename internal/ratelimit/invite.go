package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/trackline/trackline/internal/config"
)

const keyInviteActor = "invite:actor:%s"

// InviteLimiter caps how often a single actor may create or resend invites.
// A disabled limiter (no redis configured) allows everything.
type InviteLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewInviteLimiter(cfg config.Config) *InviteLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.InviteRatePerMinute <= 0 || cfg.InviteRateBurst <= 0 {
		return &InviteLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     strings.TrimSpace(cfg.RedisPassword),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &InviteLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.InviteRatePerMinute / 60.0,
		burst:   cfg.InviteRateBurst,
	}
}

func (l *InviteLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *InviteLimiter) AllowActor(ctx context.Context, actorID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyInviteActor, strings.TrimSpace(actorID)), l.rate, l.burst)
}
