package models

// ScoredObservation is the derived per-observation performance record.
// It is recomputable from the observation plus price data and is never the
// source of truth.
type ScoredObservation struct {
	Observation Observation `json:"observation"`

	// PctChange is the realized percentage price change of the asset across
	// the round window.
	PctChange float64 `json:"percentage_price_change"`

	// Score = PctChange * ZiScore. Positive when the prediction direction
	// matches the realized move (or either is zero), negative otherwise.
	Score float64 `json:"score"`
}

// UnscorableObservation records an observation that was excluded from a
// scoring pass because a price point was unavailable. It never scores as
// zero and never aborts the round.
type UnscorableObservation struct {
	Observation Observation `json:"observation"`
	Reason      string      `json:"reason"`
}

// RoundEvaluation is the complete deterministic output of one scoring pass.
// Identical inputs always produce an identical evaluation: observations are
// processed in a fixed order and the struct carries no wall-clock fields.
type RoundEvaluation struct {
	RoundID    int64                   `json:"round_id"`
	Scored     []ScoredObservation     `json:"scored"`
	Unscorable []UnscorableObservation `json:"unscorable"`
}
