package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/repository"
)

type scoringFixture struct {
	manager *RoundManager
	intake  *ObservationIntake
	prices  *repository.MemoryPriceSeries
	engine  *ScoringEngine
}

func newScoringFixture(t *testing.T) *scoringFixture {
	t.Helper()
	m := newTestManager(t)
	obs := repository.NewMemoryObservationStore()
	prices := repository.NewMemoryPriceSeries(0)
	return &scoringFixture{
		manager: m,
		intake:  NewObservationIntake(m, obs, nil, nil),
		prices:  prices,
		engine:  NewScoringEngine(m, obs, prices, nil, 0, nil, nil),
	}
}

func (f *scoringFixture) setPrice(t *testing.T, asset string, ts time.Time, price float64) {
	t.Helper()
	if err := f.prices.StorePrice(context.Background(), asset, ts, price); err != nil {
		t.Fatalf("StorePrice: %v", err)
	}
}

func (f *scoringFixture) submit(t *testing.T, agent, asset string, ts time.Time, zi int) {
	t.Helper()
	if _, err := f.intake.Submit(context.Background(), agent, asset, ts, zi); err != nil {
		t.Fatalf("Submit(%s, %s, zi=%d): %v", agent, asset, zi, err)
	}
}

func (f *scoringFixture) closeRound1(t *testing.T) {
	t.Helper()
	if _, err := f.manager.CloseDueRounds(context.Background(), testSchedule().Start.Add(time.Hour)); err != nil {
		t.Fatalf("CloseDueRounds: %v", err)
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreRoundAppliesFormula(t *testing.T) {
	f := newScoringFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	// BTC rises 25%, ETH falls 25%.
	f.setPrice(t, "BTC", start, 100)
	f.setPrice(t, "BTC", end, 125)
	f.setPrice(t, "ETH", start, 200)
	f.setPrice(t, "ETH", end, 150)

	mid := start.Add(30 * time.Minute)
	f.submit(t, "alice", "BTC", mid, 2)                   // right direction, strong
	f.submit(t, "bob", "ETH", mid, 1)                     // wrong direction
	f.submit(t, "carol", "ETH", mid.Add(time.Minute), -2) // right direction, strong
	f.submit(t, "dave", "BTC", mid.Add(time.Minute), 0)   // neutral

	f.closeRound1(t)
	eval, err := f.engine.ScoreRound(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}
	if len(eval.Scored) != 4 || len(eval.Unscorable) != 0 {
		t.Fatalf("scored=%d unscorable=%d, want 4/0", len(eval.Scored), len(eval.Unscorable))
	}

	want := map[string]float64{
		"alice": 50,  // 25 * 2
		"bob":   -25, // -25 * 1
		"carol": 50,  // -25 * -2
		"dave":  0,   // 25 * 0
	}
	for _, s := range eval.Scored {
		if !almostEqual(s.Score, want[s.Observation.AgentID]) {
			t.Fatalf("%s score = %v, want %v", s.Observation.AgentID, s.Score, want[s.Observation.AgentID])
		}
	}
}

func TestScoreFormulaRandomizedExact(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := newScoringFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	type obsCase struct {
		agent string
		zi    int
		want  float64
	}
	cases := make([]obsCase, 0, 100)
	for i := 0; i < 100; i++ {
		asset := fmt.Sprintf("AST%03d", i)
		startPrice := 1 + rng.Float64()*9999
		endPrice := 1 + rng.Float64()*9999
		zi := rng.Intn(5) - 2

		f.setPrice(t, asset, start, startPrice)
		f.setPrice(t, asset, end, endPrice)

		pct := (endPrice - startPrice) / startPrice * 100
		c := obsCase{
			agent: fmt.Sprintf("agent-%03d", i),
			zi:    zi,
			want:  pct * float64(zi),
		}
		cases = append(cases, c)
		f.submit(t, c.agent, asset, start.Add(time.Duration(i+1)*time.Second), zi)
	}

	f.closeRound1(t)
	eval, err := f.engine.ScoreRound(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}
	if len(eval.Scored) != len(cases) || len(eval.Unscorable) != 0 {
		t.Fatalf("scored=%d unscorable=%d, want %d/0", len(eval.Scored), len(eval.Unscorable), len(cases))
	}

	byAgent := make(map[string]models.ScoredObservation, len(eval.Scored))
	for _, s := range eval.Scored {
		byAgent[s.Observation.AgentID] = s
	}
	for _, c := range cases {
		s, ok := byAgent[c.agent]
		if !ok {
			t.Fatalf("%s missing from scored set", c.agent)
		}
		// Exact equality: the score must be pct_change * zi, not an
		// approximation of it.
		if s.Score != c.want {
			t.Fatalf("%s (zi=%d, pct=%v): score = %v, want exactly %v", c.agent, c.zi, s.PctChange, s.Score, c.want)
		}
		if c.zi == 0 && s.Score != 0 {
			t.Fatalf("%s: neutral stance scored %v, want 0", c.agent, s.Score)
		}
	}
}

func TestScoreRoundRequiresClosedRound(t *testing.T) {
	f := newScoringFixture(t)
	f.submit(t, "alice", "BTC", testSchedule().Start.Add(time.Minute), 1)

	_, err := f.engine.ScoreRound(context.Background(), 1, false)
	if !errors.Is(err, models.ErrRoundNotClosed) {
		t.Fatalf("err = %v, want ErrRoundNotClosed", err)
	}
}

func TestScoreRoundRejectsSecondPassWithoutRescore(t *testing.T) {
	f := newScoringFixture(t)
	f.closeRound1(t)

	if _, err := f.engine.ScoreRound(context.Background(), 1, false); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	_, err := f.engine.ScoreRound(context.Background(), 1, false)
	if !errors.Is(err, models.ErrRoundAlreadyScored) {
		t.Fatalf("err = %v, want ErrRoundAlreadyScored", err)
	}
}

func TestScoreRoundMissingPriceNeverScoresZero(t *testing.T) {
	f := newScoringFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	f.setPrice(t, "BTC", start, 100)
	f.setPrice(t, "BTC", end, 125)
	// ETH has no price data at all.

	mid := start.Add(10 * time.Minute)
	f.submit(t, "alice", "BTC", mid, 1)
	f.submit(t, "bob", "ETH", mid, 2)

	f.closeRound1(t)
	eval, err := f.engine.ScoreRound(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}

	if len(eval.Scored) != 1 || eval.Scored[0].Observation.AgentID != "alice" {
		t.Fatalf("scored = %+v, want only alice", eval.Scored)
	}
	if len(eval.Unscorable) != 1 {
		t.Fatalf("unscorable = %+v, want bob's ETH observation", eval.Unscorable)
	}
	u := eval.Unscorable[0]
	if u.Observation.AgentID != "bob" || u.Reason == "" {
		t.Fatalf("unscorable entry = %+v, want bob with a reason", u)
	}

	// A partial price outage must not abort the round.
	st, err := f.manager.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st != models.RoundScored {
		t.Fatalf("round status = %s, want SCORED", st)
	}
}

func TestScoreRoundAllUnscorableStillScores(t *testing.T) {
	f := newScoringFixture(t)
	mid := testSchedule().Start.Add(5 * time.Minute)
	f.submit(t, "alice", "BTC", mid, 1)
	f.submit(t, "bob", "BTC", mid.Add(time.Minute), -1)

	f.closeRound1(t)
	eval, err := f.engine.ScoreRound(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}
	if len(eval.Scored) != 0 || len(eval.Unscorable) != 2 {
		t.Fatalf("scored=%d unscorable=%d, want 0/2", len(eval.Scored), len(eval.Unscorable))
	}

	st, _ := f.manager.Status(1)
	if st != models.RoundScored {
		t.Fatalf("round status = %s, want SCORED even with nothing scorable", st)
	}
	if results := RankEvaluation(eval); len(results) != 0 {
		t.Fatalf("leaderboard = %+v, want empty", results)
	}
}

func TestScoreRoundZeroStartPriceIsUnscorable(t *testing.T) {
	f := newScoringFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	f.setPrice(t, "JUNK", start, 0)
	f.setPrice(t, "JUNK", end, 5)
	f.submit(t, "alice", "JUNK", start.Add(time.Minute), 2)

	f.closeRound1(t)
	eval, err := f.engine.ScoreRound(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("ScoreRound: %v", err)
	}
	if len(eval.Unscorable) != 1 || len(eval.Scored) != 0 {
		t.Fatalf("zero start price must be unscorable, got %+v", eval)
	}
}

func TestRescoreIsByteIdentical(t *testing.T) {
	f := newScoringFixture(t)
	start := testSchedule().Start
	end := start.Add(time.Hour)

	f.setPrice(t, "BTC", start, 100)
	f.setPrice(t, "BTC", end, 137)
	f.setPrice(t, "ETH", start, 300)
	f.setPrice(t, "ETH", end, 271)

	mid := start.Add(20 * time.Minute)
	f.submit(t, "zoe", "BTC", mid, 1)
	f.submit(t, "alice", "ETH", mid, -2)
	f.submit(t, "alice", "BTC", mid.Add(time.Minute), 2)
	f.submit(t, "bob", "DOGE", mid, 1) // no price data

	f.closeRound1(t)

	first, err := f.engine.ScoreRound(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := f.engine.ScoreRound(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}

	b1, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b2, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("rescore output differs:\n%s\n%s", b1, b2)
	}
}

func TestScoreRoundConcurrentPassRejected(t *testing.T) {
	f := newScoringFixture(t)
	f.closeRound1(t)

	if _, err := f.manager.BeginScoring(1, false); err != nil {
		t.Fatalf("BeginScoring: %v", err)
	}
	defer f.manager.EndScoring(1)

	_, err := f.engine.ScoreRound(context.Background(), 1, false)
	if !errors.Is(err, models.ErrScoringInFlight) {
		t.Fatalf("err = %v, want ErrScoringInFlight", err)
	}
}
