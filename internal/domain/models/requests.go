package models

// Requests for the HTTP surface. Defined in domain for consistency and reuse.

type SubmitObservationRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
	AssetID string `json:"asset_id" validate:"required"`
	// Timestamp accepts RFC3339, RFC3339Nano, or unix seconds.
	Timestamp string `json:"timestamp" validate:"required"`
	ZiScore   int    `json:"zi_score" validate:"gte=-2,lte=2"`
}

type LeaderboardRequest struct {
	RoundID int64 `query:"round_id" json:"round_id" validate:"required,gt=0"`
}

type RoundStatusRequest struct {
	RoundID int64 `query:"round_id" json:"round_id" validate:"required,gt=0"`
}

type ScoreRoundRequest struct {
	RoundID int64 `json:"round_id" validate:"required,gt=0"`
	Rescore bool  `json:"rescore" default:"false"`
}
