package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
)

// MemoryObservationStore is an in-process ObservationStore. It backs the
// "memory" storage mode and the test suites.
type MemoryObservationStore struct {
	mu      sync.RWMutex
	byKey   map[string]struct{}
	byRound map[int64][]models.Observation
}

func NewMemoryObservationStore() *MemoryObservationStore {
	return &MemoryObservationStore{
		byKey:   make(map[string]struct{}),
		byRound: make(map[int64][]models.Observation),
	}
}

func (s *MemoryObservationStore) Insert(ctx context.Context, o models.Observation) error {
	key := o.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byKey[key]; dup {
		return fmt.Errorf("%w: %s", models.ErrDuplicateObservation, key)
	}
	s.byKey[key] = struct{}{}
	s.byRound[o.RoundID] = append(s.byRound[o.RoundID], o)
	return nil
}

func (s *MemoryObservationStore) ListByRound(ctx context.Context, roundID int64) ([]models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.byRound[roundID]
	out := make([]models.Observation, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryObservationStore) Close() error { return nil }

var _ repository.ObservationStore = (*MemoryObservationStore)(nil)

type pricePoint struct {
	ts    time.Time
	price float64
}

// MemoryPriceSeries keeps per-asset tick history in memory. It serves both
// as PriceSink for a live feed and as PriceSeries for scoring.
type MemoryPriceSeries struct {
	mu     sync.RWMutex
	ticks  map[string][]pricePoint
	maxGap time.Duration // 0 disables staleness checks
}

func NewMemoryPriceSeries(maxGap time.Duration) *MemoryPriceSeries {
	return &MemoryPriceSeries{
		ticks:  make(map[string][]pricePoint),
		maxGap: maxGap,
	}
}

func (s *MemoryPriceSeries) StorePrice(ctx context.Context, assetID string, ts time.Time, price float64) error {
	ts = ts.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	points := s.ticks[assetID]
	// Common case is append-in-order; fall back to sorted insert otherwise.
	if n := len(points); n == 0 || !ts.Before(points[n-1].ts) {
		s.ticks[assetID] = append(points, pricePoint{ts: ts, price: price})
		return nil
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].ts.After(ts) })
	points = append(points, pricePoint{})
	copy(points[i+1:], points[i:])
	points[i] = pricePoint{ts: ts, price: price}
	s.ticks[assetID] = points
	return nil
}

// PriceAt returns the latest tick at or before ts. Returns
// models.ErrPriceUnavailable when no tick exists or the nearest one is older
// than the configured gap.
func (s *MemoryPriceSeries) PriceAt(ctx context.Context, assetID string, ts time.Time) (float64, error) {
	ts = ts.UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.ticks[assetID]
	i := sort.Search(len(points), func(i int) bool { return points[i].ts.After(ts) })
	if i == 0 {
		return 0, fmt.Errorf("%w: %s at %s", models.ErrPriceUnavailable, assetID, ts.Format(time.RFC3339))
	}
	p := points[i-1]
	if s.maxGap > 0 && ts.Sub(p.ts) > s.maxGap {
		return 0, fmt.Errorf("%w: %s stale at %s", models.ErrPriceUnavailable, assetID, ts.Format(time.RFC3339))
	}
	return p.price, nil
}

var (
	_ repository.PriceSeries = (*MemoryPriceSeries)(nil)
	_ repository.PriceSink   = (*MemoryPriceSeries)(nil)
)

// MemoryLeaderboardStore keeps rounds and ranked results in memory.
type MemoryLeaderboardStore struct {
	mu      sync.RWMutex
	rounds  map[int64]models.Round
	results map[int64][]models.AgentRoundResult
}

func NewMemoryLeaderboardStore() *MemoryLeaderboardStore {
	return &MemoryLeaderboardStore{
		rounds:  make(map[int64]models.Round),
		results: make(map[int64][]models.AgentRoundResult),
	}
}

func (s *MemoryLeaderboardStore) SaveRound(ctx context.Context, r models.Round) error {
	s.mu.Lock()
	s.rounds[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryLeaderboardStore) SaveResults(ctx context.Context, roundID int64, results []models.AgentRoundResult) error {
	cp := make([]models.AgentRoundResult, len(results))
	copy(cp, results)

	s.mu.Lock()
	s.results[roundID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryLeaderboardStore) GetResults(ctx context.Context, roundID int64) ([]models.AgentRoundResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.results[roundID]
	if !ok {
		return nil, nil
	}
	out := make([]models.AgentRoundResult, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryLeaderboardStore) Close() error { return nil }

var _ repository.LeaderboardStore = (*MemoryLeaderboardStore)(nil)
