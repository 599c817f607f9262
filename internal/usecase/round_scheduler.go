package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/pkg/logger"
)

// RoundScheduler drives the round lifecycle on a timer: close rounds whose
// windows ended, score them, rank and publish. A round that fails to score,
// usually because prices have not landed yet, stays pending and is retried
// on the next tick.
type RoundScheduler struct {
	rounds     *RoundManager
	engine     *ScoringEngine
	aggregator *RankingAggregator
	interval   time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	pending map[int64]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRoundScheduler(
	rounds *RoundManager,
	engine *ScoringEngine,
	aggregator *RankingAggregator,
	interval time.Duration,
	log *logger.Logger,
) *RoundScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RoundScheduler{
		rounds:     rounds,
		engine:     engine,
		aggregator: aggregator,
		interval:   interval,
		log:        log,
		pending:    make(map[int64]struct{}),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
func (s *RoundScheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Tick(ctx, time.Now().UTC())
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (s *RoundScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Tick performs one close-score-publish cycle. Exported so tests and manual
// triggers can drive the lifecycle without the timer.
func (s *RoundScheduler) Tick(ctx context.Context, now time.Time) {
	closed, err := s.rounds.CloseDueRounds(ctx, now)
	if err != nil && s.log != nil {
		s.log.Error("close due rounds failed", logger.Error(err))
	}

	s.mu.Lock()
	for _, id := range closed {
		s.pending[id] = struct{}{}
	}
	due := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		due = append(due, id)
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	for _, id := range due {
		if s.processRound(ctx, id) {
			s.mu.Lock()
			delete(s.pending, id)
			s.mu.Unlock()
		}
	}
}

// processRound scores and publishes one round. Returns true when the round
// no longer needs retrying.
func (s *RoundScheduler) processRound(ctx context.Context, id int64) bool {
	_, err := s.engine.ScoreRound(ctx, id, false)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrRoundAlreadyScored):
		// Another instance won the race; nothing left to do here.
		return true
	case errors.Is(err, models.ErrScoringInFlight), errors.Is(err, models.ErrLockHeld):
		if s.log != nil {
			s.log.Debug("round scoring busy, will retry", logger.Int64("round", id))
		}
		return false
	default:
		if s.log != nil {
			s.log.Warn("round scoring failed, will retry",
				logger.Int64("round", id),
				logger.Error(err),
			)
		}
		return false
	}

	if _, err := s.aggregator.PublishRound(ctx, id); err != nil {
		if s.log != nil {
			s.log.Error("round publish failed", logger.Int64("round", id), logger.Error(err))
		}
		// Scoring succeeded; publishing failures are not retried by ticks.
		return true
	}
	return true
}

// PendingRounds reports rounds waiting to be scored. Intended for tests and
// health introspection.
func (s *RoundScheduler) PendingRounds() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
