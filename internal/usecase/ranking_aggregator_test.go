package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/repository"
	"github.com/RusaUB/finorax/internal/service/cache"
)

func scored(agent string, score float64) models.ScoredObservation {
	return models.ScoredObservation{
		Observation: models.Observation{AgentID: agent, AssetID: "BTC", RoundID: 1, ZiScore: 1},
		PctChange:   score,
		Score:       score,
	}
}

func TestRankEvaluationCompetitionRanking(t *testing.T) {
	eval := models.RoundEvaluation{
		RoundID: 1,
		Scored: []models.ScoredObservation{
			scored("alice", 10),
			scored("bob", 10),
			scored("carol", 5),
		},
	}

	results := RankEvaluation(eval)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	// Tied totals share rank 1; the next distinct total takes rank 3.
	if results[0].Rank != 1 || results[1].Rank != 1 {
		t.Fatalf("tied agents ranks = %d, %d, want 1, 1", results[0].Rank, results[1].Rank)
	}
	if results[2].Rank != 3 {
		t.Fatalf("carol rank = %d, want 3", results[2].Rank)
	}
	// Ties are listed in ascending agent id.
	if results[0].AgentID != "alice" || results[1].AgentID != "bob" {
		t.Fatalf("tie order = %s, %s, want alice, bob", results[0].AgentID, results[1].AgentID)
	}
}

func TestRankEvaluationSumsPerAgent(t *testing.T) {
	eval := models.RoundEvaluation{
		RoundID: 1,
		Scored: []models.ScoredObservation{
			scored("alice", 10),
			scored("alice", -4),
			scored("alice", 1),
			scored("bob", 3),
		},
	}

	results := RankEvaluation(eval)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].AgentID != "alice" || results[0].TotalScore != 7 {
		t.Fatalf("alice = %+v, want total 7", results[0])
	}
	if results[0].Observations != 3 || results[1].Observations != 1 {
		t.Fatalf("observation counts = %d, %d, want 3, 1", results[0].Observations, results[1].Observations)
	}
}

func TestRankEvaluationStableUnderInputOrder(t *testing.T) {
	obs := []models.ScoredObservation{
		scored("carol", 5),
		scored("alice", 10),
		scored("bob", 10),
		scored("dave", -2),
	}
	a := RankEvaluation(models.RoundEvaluation{RoundID: 1, Scored: obs})

	reversed := make([]models.ScoredObservation, len(obs))
	for i, o := range obs {
		reversed[len(obs)-1-i] = o
	}
	b := RankEvaluation(models.RoundEvaluation{RoundID: 1, Scored: reversed})

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("ranking depends on input order:\n%+v\n%+v", a, b)
	}
}

func TestRankEvaluationExcludesUnscorableOnlyAgents(t *testing.T) {
	eval := models.RoundEvaluation{
		RoundID: 1,
		Scored:  []models.ScoredObservation{scored("alice", 3)},
		Unscorable: []models.UnscorableObservation{{
			Observation: models.Observation{AgentID: "ghost", AssetID: "ETH", RoundID: 1},
			Reason:      "no price for ETH at round start",
		}},
	}

	results := RankEvaluation(eval)
	if len(results) != 1 || results[0].AgentID != "alice" {
		t.Fatalf("results = %+v, want only alice", results)
	}
}

func newAggregatorFixture(t *testing.T) (*scoringFixture, *RankingAggregator, *repository.MemoryLeaderboardStore) {
	t.Helper()
	f := newScoringFixture(t)
	store := repository.NewMemoryLeaderboardStore()
	agg := NewRankingAggregator(f.manager, f.engine, store, cache.NewTTLCache(), time.Minute, nil, nil, nil)
	return f, agg, store
}

func TestPublishRoundPersistsLeaderboard(t *testing.T) {
	f, agg, store := newAggregatorFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	// 100 -> 110 over the round.
	f.setPrice(t, "BTC", start, 100)
	f.setPrice(t, "BTC", end, 110)
	f.submit(t, "alice", "BTC", start.Add(time.Minute), 2)
	f.submit(t, "bob", "BTC", start.Add(2*time.Minute), -1)

	f.closeRound1(t)
	if _, err := f.engine.ScoreRound(context.Background(), 1, false); err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}

	results, err := agg.PublishRound(context.Background(), 1)
	if err != nil {
		t.Fatalf("PublishRound: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].AgentID != "alice" || results[0].Rank != 1 {
		t.Fatalf("top = %+v, want alice at rank 1", results[0])
	}
	if !almostEqual(results[0].TotalScore, 20) || !almostEqual(results[1].TotalScore, -10) {
		t.Fatalf("totals = %v, %v, want 20, -10", results[0].TotalScore, results[1].TotalScore)
	}

	persisted, err := store.GetResults(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if !reflect.DeepEqual(persisted, results) {
		t.Fatalf("persisted board differs:\n%+v\n%+v", persisted, results)
	}
}

func TestLeaderboardRequiresScoredRound(t *testing.T) {
	f, agg, _ := newAggregatorFixture(t)

	_, err := agg.Leaderboard(context.Background(), 1)
	if !errors.Is(err, models.ErrRoundNotScored) {
		t.Fatalf("open round: err = %v, want ErrRoundNotScored", err)
	}

	f.closeRound1(t)
	_, err = agg.Leaderboard(context.Background(), 1)
	if !errors.Is(err, models.ErrRoundNotScored) {
		t.Fatalf("closed round: err = %v, want ErrRoundNotScored", err)
	}
}

func TestLeaderboardServedFromStoreAndCache(t *testing.T) {
	f, agg, _ := newAggregatorFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	f.setPrice(t, "BTC", start, 100)
	f.setPrice(t, "BTC", end, 110)
	f.submit(t, "alice", "BTC", start.Add(time.Minute), 1)

	f.closeRound1(t)
	if _, err := f.engine.ScoreRound(context.Background(), 1, false); err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}
	published, err := agg.PublishRound(context.Background(), 1)
	if err != nil {
		t.Fatalf("PublishRound: %v", err)
	}

	got, err := agg.Leaderboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if !reflect.DeepEqual(got, published) {
		t.Fatalf("leaderboard differs from published:\n%+v\n%+v", got, published)
	}
}
