package redis

import (
	"context"
	"errors"
	"time"

	"github.com/marcusai/insights-backend/pkg/enums"
)

const quotaWindow = time.Minute

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// QuotaGuard rations adapter calls per platform with a shared fixed window,
// so multiple instances spend the same upstream quota budget.
type QuotaGuard struct {
	limiter   rateLimiter
	perMinute int64
}

// NewQuotaGuard builds a guard over the shared client. A non-positive limit
// disables rationing.
func NewQuotaGuard(client *Client, perMinute int) (*QuotaGuard, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &QuotaGuard{limiter: client, perMinute: int64(perMinute)}, nil
}

// Allow reports whether one more upstream call may go out for the platform
// within the current window.
func (g *QuotaGuard) Allow(ctx context.Context, platform enums.Platform) (bool, error) {
	if g == nil || g.perMinute <= 0 {
		return true, nil
	}
	allowed, _, err := g.limiter.FixedWindowAllow(ctx, "adapter:"+platform.String(), g.perMinute, quotaWindow)
	if err != nil {
		return false, err
	}
	return allowed, nil
}
