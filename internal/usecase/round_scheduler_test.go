package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/repository"
	"github.com/RusaUB/finorax/internal/service/cache"
)

func newSchedulerFixture(t *testing.T) (*scoringFixture, *RoundScheduler, *repository.MemoryLeaderboardStore) {
	t.Helper()
	f := newScoringFixture(t)
	store := repository.NewMemoryLeaderboardStore()
	agg := NewRankingAggregator(f.manager, f.engine, store, cache.NewTTLCache(), time.Minute, nil, nil, nil)
	sched := NewRoundScheduler(f.manager, f.engine, agg, time.Second, nil)
	return f, sched, store
}

func TestTickClosesScoresAndPublishes(t *testing.T) {
	f, sched, store := newSchedulerFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	f.setPrice(t, "BTC", start, 100)
	f.setPrice(t, "BTC", end, 110)
	f.submit(t, "alice", "BTC", start.Add(time.Minute), 1)

	sched.Tick(context.Background(), end)

	st, err := f.manager.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st != models.RoundScored {
		t.Fatalf("round status = %s, want SCORED after tick", st)
	}

	results, err := store.GetResults(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(results) != 1 || results[0].AgentID != "alice" {
		t.Fatalf("results = %+v, want alice", results)
	}
	if pending := sched.PendingRounds(); len(pending) != 0 {
		t.Fatalf("pending = %v, want none", pending)
	}
}

func TestTickIsIdempotent(t *testing.T) {
	f, sched, _ := newSchedulerFixture(t)
	end := testSchedule().Start.Add(time.Hour)

	sched.Tick(context.Background(), end)
	sched.Tick(context.Background(), end)

	st, _ := f.manager.Status(1)
	if st != models.RoundScored {
		t.Fatalf("round status = %s, want SCORED", st)
	}
}
