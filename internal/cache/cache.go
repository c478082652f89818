package cache

import (
	"context"
	"time"

	"github.com/rvmonterde003/kashpos/internal/domain"
)

// EarningsCache holds the live earnings summary between poll ticks so
// every dashboard refresh does not re-scan the day's sale lines.
type EarningsCache interface {
	Get(ctx context.Context, key string) (*domain.EarningsSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.EarningsSummary, ttl time.Duration) error
}

type NoopEarningsCache struct{}

func (NoopEarningsCache) Get(_ context.Context, _ string) (*domain.EarningsSummary, bool, error) {
	return nil, false, nil
}

func (NoopEarningsCache) Set(_ context.Context, _ string, _ *domain.EarningsSummary, _ time.Duration) error {
	return nil
}
