package priceseries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
)

type scriptedSeries struct {
	calls int
	errs  []error
	price float64
}

func (s *scriptedSeries) PriceAt(ctx context.Context, assetID string, ts time.Time) (float64, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return 0, s.errs[idx]
	}
	return s.price, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRetryRecoversFromTransientError(t *testing.T) {
	inner := &scriptedSeries{errs: []error{errors.New("connection reset"), nil}, price: 101.5}
	s := NewRetryingSeries(inner, RetryConfig{Attempts: 3, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}, nil)
	s.sleep = noSleep

	price, err := s.PriceAt(context.Background(), "BTC", time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 101.5 {
		t.Fatalf("price = %v, want 101.5", price)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentMiss(t *testing.T) {
	inner := &scriptedSeries{errs: []error{models.ErrPriceUnavailable}}
	s := NewRetryingSeries(inner, RetryConfig{Attempts: 5, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}, nil)
	s.sleep = noSleep

	_, err := s.PriceAt(context.Background(), "BTC", time.Unix(1_700_000_000, 0))
	if !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on a definitive miss)", inner.calls)
	}
}

func TestRetryExhaustionCollapsesToUnavailable(t *testing.T) {
	boom := errors.New("upstream 503")
	inner := &scriptedSeries{errs: []error{boom, boom, boom}}
	s := NewRetryingSeries(inner, RetryConfig{Attempts: 3, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}, nil)
	s.sleep = noSleep

	_, err := s.PriceAt(context.Background(), "ETH", time.Unix(1_700_000_000, 0))
	if !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want wrapped ErrPriceUnavailable", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	boom := errors.New("timeout")
	inner := &scriptedSeries{errs: []error{boom, boom, boom}}
	s := NewRetryingSeries(inner, RetryConfig{Attempts: 3, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := s.PriceAt(ctx, "BTC", time.Unix(1_700_000_000, 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
