package models

import (
	"fmt"
	"strings"
	"time"
)

// ZiScore encodes the predicted direction and strength of a price move.
// Valid values are the closed set {-2, -1, 0, 1, 2}.
type ZiScore int

const (
	ZiMin ZiScore = -2
	ZiMax ZiScore = 2
)

// Valid reports whether z is in the allowed set.
func (z ZiScore) Valid() bool { return z >= ZiMin && z <= ZiMax }

// Observation is an agent's directional prediction for an asset at an
// instant. Records are immutable once stored: they are never updated or
// deleted, only included in exactly one round's scoring pass.
type Observation struct {
	AgentID   string    `json:"agent_id"`
	AssetID   string    `json:"asset_id"`
	Timestamp time.Time `json:"timestamp"`
	ZiScore   ZiScore   `json:"zi_score"`

	// RoundID is derived from Timestamp by the round manager, never chosen
	// by the agent.
	RoundID int64 `json:"round_id"`
}

// NewObservation validates inputs and builds an observation with no round
// assigned yet. Timestamps are normalized to UTC.
func NewObservation(agentID, assetID string, ts time.Time, zi int) (Observation, error) {
	agentID = strings.TrimSpace(agentID)
	assetID = strings.ToUpper(strings.TrimSpace(assetID))

	if agentID == "" {
		return Observation{}, &ValidationError{Field: "agent_id", Reason: "must not be empty"}
	}
	if assetID == "" {
		return Observation{}, &ValidationError{Field: "asset_id", Reason: "must not be empty"}
	}
	if ts.IsZero() {
		return Observation{}, &ValidationError{Field: "timestamp", Reason: "must not be zero"}
	}
	z := ZiScore(zi)
	if !z.Valid() {
		return Observation{}, &ValidationError{
			Field:  "zi_score",
			Reason: fmt.Sprintf("must be one of -2, -1, 0, 1, 2; got %d", zi),
		}
	}

	return Observation{
		AgentID:   agentID,
		AssetID:   assetID,
		Timestamp: ts.UTC(),
		ZiScore:   z,
	}, nil
}

// Key uniquely identifies an observation record.
func (o Observation) Key() string {
	return fmt.Sprintf("%s|%s|%d", o.AgentID, o.AssetID, o.Timestamp.UnixNano())
}
