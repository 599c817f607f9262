package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
)

func TestMemoryObservationStoreRejectsDuplicates(t *testing.T) {
	s := NewMemoryObservationStore()
	ctx := context.Background()

	o, err := models.NewObservation("agent-1", "BTC", time.Unix(1_700_000_000, 0), 1)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	o.RoundID = 1

	if err := s.Insert(ctx, o); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, o); !errors.Is(err, models.ErrDuplicateObservation) {
		t.Fatalf("err = %v, want ErrDuplicateObservation", err)
	}

	got, err := s.ListByRound(ctx, 1)
	if err != nil {
		t.Fatalf("ListByRound: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("stored %d, want 1", len(got))
	}
}

func TestMemoryPriceSeriesLatestAtOrBefore(t *testing.T) {
	s := NewMemoryPriceSeries(0)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, p := range []float64{100, 101, 99} {
		if err := s.StorePrice(ctx, "BTC", base.Add(time.Duration(i)*time.Minute), p); err != nil {
			t.Fatalf("StorePrice: %v", err)
		}
	}

	// Exact tick.
	p, err := s.PriceAt(ctx, "BTC", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if p != 101 {
		t.Fatalf("price = %v, want 101", p)
	}

	// Between ticks picks the earlier one.
	p, _ = s.PriceAt(ctx, "BTC", base.Add(90*time.Second))
	if p != 101 {
		t.Fatalf("price = %v, want 101", p)
	}

	// Before the first tick there is nothing.
	if _, err := s.PriceAt(ctx, "BTC", base.Add(-time.Second)); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}

	// Unknown asset.
	if _, err := s.PriceAt(ctx, "DOGE", base); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestMemoryPriceSeriesMaxGap(t *testing.T) {
	s := NewMemoryPriceSeries(time.Minute)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.StorePrice(ctx, "BTC", base, 100); err != nil {
		t.Fatalf("StorePrice: %v", err)
	}

	if _, err := s.PriceAt(ctx, "BTC", base.Add(30*time.Second)); err != nil {
		t.Fatalf("fresh tick rejected: %v", err)
	}
	if _, err := s.PriceAt(ctx, "BTC", base.Add(2*time.Minute)); !errors.Is(err, models.ErrPriceUnavailable) {
		t.Fatalf("stale tick: err = %v, want ErrPriceUnavailable", err)
	}
}

func TestMemoryPriceSeriesOutOfOrderInsert(t *testing.T) {
	s := NewMemoryPriceSeries(0)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.StorePrice(ctx, "BTC", base.Add(2*time.Minute), 102)
	_ = s.StorePrice(ctx, "BTC", base, 100)
	_ = s.StorePrice(ctx, "BTC", base.Add(time.Minute), 101)

	p, err := s.PriceAt(ctx, "BTC", base.Add(time.Minute+time.Second))
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if p != 101 {
		t.Fatalf("price = %v, want 101", p)
	}
}

func TestMemoryLeaderboardStoreRoundTrip(t *testing.T) {
	s := NewMemoryLeaderboardStore()
	ctx := context.Background()

	results := []models.AgentRoundResult{
		{AgentID: "alice", RoundID: 1, TotalScore: 12.5, Rank: 1, Observations: 2},
		{AgentID: "bob", RoundID: 1, TotalScore: -3, Rank: 2, Observations: 1},
	}
	if err := s.SaveResults(ctx, 1, results); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}

	got, err := s.GetResults(ctx, 1)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(got) != 2 || got[0].AgentID != "alice" {
		t.Fatalf("got %+v", got)
	}

	// Unknown round distinguishes "never ranked" from "empty board".
	missing, err := s.GetResults(ctx, 99)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing round = %+v, want nil", missing)
	}
}

func TestMemoryLeaderboardStoreSaveResultsReplaces(t *testing.T) {
	s := NewMemoryLeaderboardStore()
	ctx := context.Background()

	first := []models.AgentRoundResult{
		{AgentID: "alice", RoundID: 1, TotalScore: 10, Rank: 1, Observations: 1},
		{AgentID: "bob", RoundID: 1, TotalScore: 5, Rank: 2, Observations: 1},
	}
	if err := s.SaveResults(ctx, 1, first); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}

	// A rescore that drops an agent must not leave their old row behind.
	second := []models.AgentRoundResult{
		{AgentID: "alice", RoundID: 1, TotalScore: 10, Rank: 1, Observations: 1},
	}
	if err := s.SaveResults(ctx, 1, second); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	got, err := s.GetResults(ctx, 1)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(got) != 1 || got[0].AgentID != "alice" {
		t.Fatalf("after rescore got %+v, want only alice", got)
	}

	// An empty rescore clears the board entirely.
	if err := s.SaveResults(ctx, 1, nil); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	got, err = s.GetResults(ctx, 1)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("after empty rescore got %+v, want empty board", got)
	}
}
