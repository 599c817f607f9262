package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/pkg/logger"
)

// ObservationIntake validates incoming observations, assigns them to rounds
// and persists them. It is the single write path for observations.
type ObservationIntake struct {
	rounds  *RoundManager
	store   repository.ObservationStore
	metrics repository.Metrics
	log     *logger.Logger
}

func NewObservationIntake(rounds *RoundManager, store repository.ObservationStore, metrics repository.Metrics, log *logger.Logger) *ObservationIntake {
	return &ObservationIntake{rounds: rounds, store: store, metrics: metrics, log: log}
}

// Submit validates, assigns a round and stores one observation. The returned
// observation carries its round id.
//
// Rejections: validation failures, timestamps before the schedule start,
// submissions into a CLOSED or SCORED round, and duplicate keys.
func (in *ObservationIntake) Submit(ctx context.Context, agentID, assetID string, ts time.Time, zi int) (models.Observation, error) {
	start := time.Now()

	o, err := models.NewObservation(agentID, assetID, ts, zi)
	if err != nil {
		in.reject("validation")
		return models.Observation{}, err
	}

	// The claim keeps the round from finishing its close until the insert
	// below has landed, so an accepted submission is never lost to a
	// concurrent scoring pass.
	round, err := in.rounds.BeginIntake(o.Timestamp)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrOutOfSchedule):
			in.reject("out_of_schedule")
		case errors.Is(err, models.ErrRoundClosed):
			in.reject("round_closed")
		default:
			in.recordError("round_resolve")
		}
		return models.Observation{}, err
	}
	defer in.rounds.EndIntake(round.ID)
	o.RoundID = round.ID

	if err := in.store.Insert(ctx, o); err != nil {
		if errors.Is(err, models.ErrDuplicateObservation) {
			in.reject("duplicate")
		} else {
			in.recordError("observation_insert")
		}
		return models.Observation{}, err
	}

	if in.metrics != nil {
		in.metrics.RecordObservation(o.AssetID)
		in.metrics.RecordLatency("observation_submit", time.Since(start).Seconds())
	}
	if in.log != nil {
		in.log.Debug("observation accepted",
			logger.String("agent", o.AgentID),
			logger.String("asset", o.AssetID),
			logger.Int64("round", o.RoundID),
			logger.Int("zi", int(o.ZiScore)),
		)
	}
	return o, nil
}

func (in *ObservationIntake) reject(reason string) {
	if in.metrics != nil {
		in.metrics.RecordRejected(reason)
	}
}

func (in *ObservationIntake) recordError(kind string) {
	if in.metrics != nil {
		in.metrics.RecordError(kind)
	}
}
