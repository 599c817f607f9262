package repository

import (
	"context"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
)

// ObservationStore holds immutable observation records keyed by
// (agent_id, asset_id, timestamp). Append-only; safe for concurrent reads.
type ObservationStore interface {
	// Insert stores a new observation. Returns
	// models.ErrDuplicateObservation if the key already exists.
	Insert(ctx context.Context, o models.Observation) error

	// ListByRound returns all observations assigned to a round. Order is
	// unspecified; callers needing determinism sort themselves.
	ListByRound(ctx context.Context, roundID int64) ([]models.Observation, error)

	Close() error
}

// PriceSeries supplies asset prices at or near a timestamp. A permanent
// "no data" result is models.ErrPriceUnavailable; any other error is
// transient and may be retried.
type PriceSeries interface {
	PriceAt(ctx context.Context, assetID string, ts time.Time) (float64, error)
}

// PriceSink receives asset price ticks from a feed.
type PriceSink interface {
	StorePrice(ctx context.Context, assetID string, ts time.Time, price float64) error
}

// LeaderboardStore persists rounds and ranked results as a derived cache.
// Never the write path of truth: everything here is rebuildable by
// re-running scoring.
type LeaderboardStore interface {
	SaveRound(ctx context.Context, r models.Round) error

	// SaveResults replaces the round's full result set. A rescore that
	// drops agents, or yields nothing, must leave no stale rows behind.
	SaveResults(ctx context.Context, roundID int64, results []models.AgentRoundResult) error
	GetResults(ctx context.Context, roundID int64) ([]models.AgentRoundResult, error)
	Close() error
}

// Publisher emits ranked leaderboards for downstream consumers.
type Publisher interface {
	PublishLeaderboard(ctx context.Context, roundID int64, results []models.AgentRoundResult) error
	Close() error
}

// Locker provides a distributed mutual exclusion primitive. Acquire returns
// an unlock function, or models.ErrLockHeld if another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Metrics records engine observability signals.
type Metrics interface {
	RecordObservation(assetID string)
	RecordRejected(reason string)
	RecordUnscorable(assetID string)
	RecordRoundClosed()
	RecordRoundScored()
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
