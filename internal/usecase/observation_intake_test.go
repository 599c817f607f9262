package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/repository"
)

func newTestIntake(t *testing.T) (*ObservationIntake, *RoundManager, *repository.MemoryObservationStore) {
	t.Helper()
	m := newTestManager(t)
	store := repository.NewMemoryObservationStore()
	return NewObservationIntake(m, store, nil, nil), m, store
}

func TestSubmitAssignsRound(t *testing.T) {
	intake, _, store := newTestIntake(t)
	ts := testSchedule().Start.Add(30 * time.Minute)

	o, err := intake.Submit(context.Background(), "agent-a", "btc", ts, 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.RoundID != 1 {
		t.Fatalf("round id = %d, want 1", o.RoundID)
	}
	if o.AssetID != "BTC" {
		t.Fatalf("asset id = %q, want normalized BTC", o.AssetID)
	}

	stored, err := store.ListByRound(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListByRound: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d observations, want 1", len(stored))
	}
}

func TestSubmitRejectsInvalidZiScore(t *testing.T) {
	intake, _, _ := newTestIntake(t)
	ts := testSchedule().Start.Add(time.Minute)

	for _, zi := range []int{-3, 3, 100} {
		_, err := intake.Submit(context.Background(), "agent-a", "BTC", ts, zi)
		if !models.IsValidation(err) {
			t.Fatalf("zi=%d: err = %v, want validation error", zi, err)
		}
	}
	// Zero is a legal neutral stance, not a missing value.
	if _, err := intake.Submit(context.Background(), "agent-a", "BTC", ts, 0); err != nil {
		t.Fatalf("zi=0 must be accepted: %v", err)
	}
}

func TestSubmitRejectsEmptyFields(t *testing.T) {
	intake, _, _ := newTestIntake(t)
	ts := testSchedule().Start.Add(time.Minute)

	if _, err := intake.Submit(context.Background(), "", "BTC", ts, 1); !models.IsValidation(err) {
		t.Fatalf("empty agent: err = %v, want validation error", err)
	}
	if _, err := intake.Submit(context.Background(), "agent-a", "  ", ts, 1); !models.IsValidation(err) {
		t.Fatalf("blank asset: err = %v, want validation error", err)
	}
}

func TestSubmitRejectsClosedRound(t *testing.T) {
	intake, m, _ := newTestIntake(t)
	ts := testSchedule().Start.Add(30 * time.Minute)

	if _, err := m.CloseDueRounds(context.Background(), testSchedule().Start.Add(2*time.Hour)); err != nil {
		t.Fatalf("CloseDueRounds: %v", err)
	}

	_, err := intake.Submit(context.Background(), "agent-a", "BTC", ts, 1)
	if !errors.Is(err, models.ErrRoundClosed) {
		t.Fatalf("err = %v, want ErrRoundClosed", err)
	}
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	intake, _, _ := newTestIntake(t)
	ts := testSchedule().Start.Add(10 * time.Minute)

	if _, err := intake.Submit(context.Background(), "agent-a", "BTC", ts, 1); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := intake.Submit(context.Background(), "agent-a", "BTC", ts, -1)
	if !errors.Is(err, models.ErrDuplicateObservation) {
		t.Fatalf("err = %v, want ErrDuplicateObservation", err)
	}
}

// blockingStore stalls Insert so a test can overlap a submission with a
// round close.
type blockingStore struct {
	*repository.MemoryObservationStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Insert(ctx context.Context, o models.Observation) error {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryObservationStore.Insert(ctx, o)
}

func TestCloseWaitsForInFlightSubmit(t *testing.T) {
	m := newTestManager(t)
	store := &blockingStore{
		MemoryObservationStore: repository.NewMemoryObservationStore(),
		entered:                make(chan struct{}),
		release:                make(chan struct{}),
	}
	intake := NewObservationIntake(m, store, nil, nil)
	ts := testSchedule().Start.Add(30 * time.Minute)

	submitDone := make(chan error, 1)
	go func() {
		_, err := intake.Submit(context.Background(), "agent-a", "BTC", ts, 2)
		submitDone <- err
	}()
	<-store.entered

	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		if _, err := m.CloseDueRounds(context.Background(), testSchedule().Start.Add(2*time.Hour)); err != nil {
			t.Errorf("CloseDueRounds: %v", err)
		}
	}()

	// The accepted submission is still being stored, so the close must not
	// complete yet.
	select {
	case <-closeDone:
		t.Fatal("round closed while an accepted submission was still being stored")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	if err := <-submitDone; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-closeDone

	// The straggler made it into the closed set a scoring pass will read.
	obs, err := store.ListByRound(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListByRound: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("stored %d observations, want the in-flight one", len(obs))
	}
	st, err := m.Status(1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st != models.RoundClosed {
		t.Fatalf("round status = %s, want CLOSED", st)
	}
}

func TestSubmitRejectsOutOfSchedule(t *testing.T) {
	intake, _, _ := newTestIntake(t)
	_, err := intake.Submit(context.Background(), "agent-a", "BTC", testSchedule().Start.Add(-time.Hour), 1)
	if !errors.Is(err, models.ErrOutOfSchedule) {
		t.Fatalf("err = %v, want ErrOutOfSchedule", err)
	}
}
