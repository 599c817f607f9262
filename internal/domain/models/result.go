package models

// AgentRoundResult is one leaderboard entry: an agent's summed score within
// a round plus its competition rank (1 = best, ties share a rank number).
// Fully derivable from observations and price data, so it is treated as a
// rebuildable cache keyed by (round_id, agent_id).
type AgentRoundResult struct {
	AgentID      string  `json:"agent_id"`
	RoundID      int64   `json:"round_id"`
	TotalScore   float64 `json:"total_score"`
	Rank         int     `json:"rank"`
	Observations int     `json:"observations_count"`
}
