package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/pkg/logger"
)

// assetChange is the realized price change for one asset across a round.
type assetChange struct {
	pct float64
	ok  bool
	why string
}

// ScoringEngine turns a closed round's observations into a deterministic
// evaluation.
//
// Determinism: observations are processed in a fixed sort order, prices are
// fetched once per asset per pass, and the evaluation carries no wall-clock
// data. Scoring the same round twice against the same stores yields an
// identical evaluation.
type ScoringEngine struct {
	rounds       *RoundManager
	observations repository.ObservationStore
	prices       repository.PriceSeries
	locker       repository.Locker
	lockTTL      time.Duration
	metrics      repository.Metrics
	log          *logger.Logger

	mu    sync.RWMutex
	evals map[int64]models.RoundEvaluation
}

func NewScoringEngine(
	rounds *RoundManager,
	observations repository.ObservationStore,
	prices repository.PriceSeries,
	locker repository.Locker,
	lockTTL time.Duration,
	metrics repository.Metrics,
	log *logger.Logger,
) *ScoringEngine {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &ScoringEngine{
		rounds:       rounds,
		observations: observations,
		prices:       prices,
		locker:       locker,
		lockTTL:      lockTTL,
		metrics:      metrics,
		log:          log,
		evals:        make(map[int64]models.RoundEvaluation),
	}
}

// ScoreRound scores a CLOSED round, or rescores a SCORED one when rescore is
// set. A missing price never aborts the pass: the affected observations land
// in the evaluation's unscorable list and the round still becomes SCORED.
func (e *ScoringEngine) ScoreRound(ctx context.Context, roundID int64, rescore bool) (models.RoundEvaluation, error) {
	round, err := e.rounds.BeginScoring(roundID, rescore)
	if err != nil {
		return models.RoundEvaluation{}, err
	}
	defer e.rounds.EndScoring(roundID)

	if e.locker != nil {
		unlock, err := e.locker.Acquire(ctx, fmt.Sprintf("score:round:%d", roundID), e.lockTTL)
		if err != nil {
			return models.RoundEvaluation{}, err
		}
		defer unlock()
	}

	start := time.Now()
	obs, err := e.observations.ListByRound(ctx, roundID)
	if err != nil {
		e.recordError("observations_load")
		return models.RoundEvaluation{}, fmt.Errorf("load round %d observations: %w", roundID, err)
	}

	// Fixed processing order so reruns produce identical output.
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.AgentID != b.AgentID {
			return a.AgentID < b.AgentID
		}
		if a.AssetID != b.AssetID {
			return a.AssetID < b.AssetID
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	changes := make(map[string]assetChange)
	eval := models.RoundEvaluation{RoundID: roundID}

	for _, o := range obs {
		ch, seen := changes[o.AssetID]
		if !seen {
			ch, err = e.assetChange(ctx, o.AssetID, round)
			if err != nil {
				return models.RoundEvaluation{}, err
			}
			changes[o.AssetID] = ch
		}
		if !ch.ok {
			eval.Unscorable = append(eval.Unscorable, models.UnscorableObservation{
				Observation: o,
				Reason:      ch.why,
			})
			if e.metrics != nil {
				e.metrics.RecordUnscorable(o.AssetID)
			}
			continue
		}
		eval.Scored = append(eval.Scored, models.ScoredObservation{
			Observation: o,
			PctChange:   ch.pct,
			Score:       ch.pct * float64(o.ZiScore),
		})
	}

	if err := e.rounds.MarkScored(ctx, roundID); err != nil {
		return models.RoundEvaluation{}, err
	}

	e.mu.Lock()
	e.evals[roundID] = eval
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordLatency("score_round", time.Since(start).Seconds())
	}
	if e.log != nil {
		e.log.Info("round scored",
			logger.Int64("round", roundID),
			logger.Int("scored", len(eval.Scored)),
			logger.Int("unscorable", len(eval.Unscorable)),
			logger.Bool("rescore", rescore),
			logger.Duration("duration_ms", time.Since(start)),
		)
	}
	return eval, nil
}

// assetChange computes the percentage price change of one asset across the
// round window. A missing price marks the asset unscorable; any other error
// aborts the pass so a flaky backend cannot silently skew results.
func (e *ScoringEngine) assetChange(ctx context.Context, assetID string, round models.Round) (assetChange, error) {
	startPrice, err := e.prices.PriceAt(ctx, assetID, round.StartTime)
	if err != nil {
		if errors.Is(err, models.ErrPriceUnavailable) {
			return assetChange{why: fmt.Sprintf("no price for %s at round start", assetID)}, nil
		}
		e.recordError("price_lookup")
		return assetChange{}, fmt.Errorf("price %s at round start: %w", assetID, err)
	}
	endPrice, err := e.prices.PriceAt(ctx, assetID, round.EndTime)
	if err != nil {
		if errors.Is(err, models.ErrPriceUnavailable) {
			return assetChange{why: fmt.Sprintf("no price for %s at round end", assetID)}, nil
		}
		e.recordError("price_lookup")
		return assetChange{}, fmt.Errorf("price %s at round end: %w", assetID, err)
	}
	if startPrice == 0 {
		return assetChange{why: fmt.Sprintf("zero start price for %s", assetID)}, nil
	}
	return assetChange{
		pct: (endPrice - startPrice) / startPrice * 100,
		ok:  true,
	}, nil
}

// Evaluation returns the in-memory evaluation of the latest scoring pass for
// a round, if one ran in this process.
func (e *ScoringEngine) Evaluation(roundID int64) (models.RoundEvaluation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	eval, ok := e.evals[roundID]
	return eval, ok
}

func (e *ScoringEngine) recordError(kind string) {
	if e.metrics != nil {
		e.metrics.RecordError(kind)
	}
}
