package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/internal/service/cache"
	"github.com/RusaUB/finorax/pkg/logger"
)

// RankingAggregator folds a round evaluation into per-agent totals and
// assigns standard competition ranks: tied totals share a rank and the next
// distinct total skips the tied positions (1, 1, 3).
type RankingAggregator struct {
	rounds    *RoundManager
	engine    *ScoringEngine
	store     repository.LeaderboardStore
	cache     cache.BytesCache
	cacheTTL  time.Duration
	publisher repository.Publisher
	metrics   repository.Metrics
	log       *logger.Logger
}

func NewRankingAggregator(
	rounds *RoundManager,
	engine *ScoringEngine,
	store repository.LeaderboardStore,
	boardCache cache.BytesCache,
	cacheTTL time.Duration,
	publisher repository.Publisher,
	metrics repository.Metrics,
	log *logger.Logger,
) *RankingAggregator {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &RankingAggregator{
		rounds:    rounds,
		engine:    engine,
		store:     store,
		cache:     boardCache,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
	}
}

// RankEvaluation aggregates scored observations into a ranked leaderboard.
// Pure function of the evaluation. Agents with only unscorable observations
// do not appear; an evaluation with nothing scored yields an empty board.
func RankEvaluation(eval models.RoundEvaluation) []models.AgentRoundResult {
	totals := make(map[string]*models.AgentRoundResult)
	for _, s := range eval.Scored {
		agent := s.Observation.AgentID
		r, ok := totals[agent]
		if !ok {
			r = &models.AgentRoundResult{AgentID: agent, RoundID: eval.RoundID}
			totals[agent] = r
		}
		r.TotalScore += s.Score
		r.Observations++
	}

	out := make([]models.AgentRoundResult, 0, len(totals))
	for _, r := range totals {
		out = append(out, *r)
	}
	// Descending by total; agent id breaks ties for stable output only, the
	// shared rank below is what callers should compare.
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].AgentID < out[j].AgentID
	})

	for i := range out {
		if i > 0 && out[i].TotalScore == out[i-1].TotalScore {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}

// PublishRound ranks the latest in-process evaluation of a SCORED round,
// persists the leaderboard and emits it downstream.
func (a *RankingAggregator) PublishRound(ctx context.Context, roundID int64) ([]models.AgentRoundResult, error) {
	status, err := a.rounds.Status(roundID)
	if err != nil {
		return nil, err
	}
	if status != models.RoundScored {
		return nil, fmt.Errorf("round %d: %w", roundID, models.ErrRoundNotScored)
	}

	eval, ok := a.engine.Evaluation(roundID)
	if !ok {
		return nil, fmt.Errorf("round %d: no evaluation in this process: %w", roundID, models.ErrRoundNotScored)
	}

	start := time.Now()
	results := RankEvaluation(eval)

	if a.store != nil {
		if err := a.store.SaveResults(ctx, roundID, results); err != nil {
			a.recordError("results_save")
			return nil, fmt.Errorf("save round %d results: %w", roundID, err)
		}
	}
	a.cacheResults(roundID, results)

	if a.publisher != nil {
		if err := a.publisher.PublishLeaderboard(ctx, roundID, results); err != nil {
			// Storage already has the board; publishing is retried by the
			// next rescore rather than failing the round.
			a.recordError("leaderboard_publish")
			if a.log != nil {
				a.log.Warn("leaderboard publish failed", logger.Int64("round", roundID), logger.Error(err))
			}
		}
	}

	if a.metrics != nil {
		a.metrics.RecordLatency("rank_round", time.Since(start).Seconds())
	}
	return results, nil
}

// Leaderboard returns the ranked results for a SCORED round, trying the
// cache, then the store, then the in-process evaluation.
func (a *RankingAggregator) Leaderboard(ctx context.Context, roundID int64) ([]models.AgentRoundResult, error) {
	status, err := a.rounds.Status(roundID)
	if err != nil {
		return nil, err
	}
	if status != models.RoundScored {
		return nil, fmt.Errorf("round %d: %w", roundID, models.ErrRoundNotScored)
	}

	if a.cache != nil {
		if b, ok, err := a.cache.GetBytes(boardKey(roundID)); err == nil && ok {
			var results []models.AgentRoundResult
			if err := json.Unmarshal(b, &results); err == nil {
				return results, nil
			}
		}
	}

	if a.store != nil {
		results, err := a.store.GetResults(ctx, roundID)
		if err != nil {
			a.recordError("results_load")
			return nil, fmt.Errorf("load round %d results: %w", roundID, err)
		}
		if results != nil {
			a.cacheResults(roundID, results)
			return results, nil
		}
	}

	if eval, ok := a.engine.Evaluation(roundID); ok {
		return RankEvaluation(eval), nil
	}

	// SCORED with nothing persisted means every observation was unscorable
	// or the round was empty.
	return []models.AgentRoundResult{}, nil
}

func boardKey(roundID int64) string {
	return fmt.Sprintf("finorax:leaderboard:%d", roundID)
}

func (a *RankingAggregator) cacheResults(roundID int64, results []models.AgentRoundResult) {
	if a.cache == nil {
		return
	}
	b, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := a.cache.SetBytes(boardKey(roundID), b, a.cacheTTL); err != nil && a.log != nil {
		a.log.Warn("leaderboard cache write failed", logger.Int64("round", roundID), logger.Error(err))
	}
}

func (a *RankingAggregator) recordError(kind string) {
	if a.metrics != nil {
		a.metrics.RecordError(kind)
	}
}
