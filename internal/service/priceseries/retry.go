package priceseries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/pkg/logger"
)

// RetryConfig bounds lookups against a flaky price source.
type RetryConfig struct {
	Attempts   int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:   3,
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 2 * time.Second,
	}
}

// RetryingSeries wraps a PriceSeries with bounded retries and exponential
// backoff. models.ErrPriceUnavailable is treated as a definitive answer and
// returned immediately. Exhausted retries collapse to the same sentinel so
// scoring can treat both outcomes as a missing price.
type RetryingSeries struct {
	inner repository.PriceSeries
	cfg   RetryConfig
	log   *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryingSeries(inner repository.PriceSeries, cfg RetryConfig, log *logger.Logger) *RetryingSeries {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	return &RetryingSeries{
		inner: inner,
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
	}
}

func (s *RetryingSeries) PriceAt(ctx context.Context, assetID string, ts time.Time) (float64, error) {
	var lastErr error
	backoff := s.cfg.BackoffMin

	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		price, err := s.inner.PriceAt(ctx, assetID, ts)
		if err == nil {
			return price, nil
		}
		if errors.Is(err, models.ErrPriceUnavailable) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		lastErr = err
		if attempt == s.cfg.Attempts {
			break
		}

		if s.log != nil {
			s.log.Warn("price lookup retry",
				logger.String("asset", assetID),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return 0, err
		}
		backoff *= 2
		if backoff > s.cfg.BackoffMax {
			backoff = s.cfg.BackoffMax
		}
	}

	return 0, fmt.Errorf("%w: %s at %s: %v",
		models.ErrPriceUnavailable, assetID, ts.UTC().Format(time.RFC3339), lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ repository.PriceSeries = (*RetryingSeries)(nil)
