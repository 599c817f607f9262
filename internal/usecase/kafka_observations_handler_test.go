package usecase

import (
	"context"
	"testing"
	"time"
)

func TestHandleStoresValidEvent(t *testing.T) {
	intake, _, store := newTestIntake(t)
	h := NewObservationsHandler("finorax.observations", intake, nil)

	ts := testSchedule().Start.Add(10 * time.Minute).Format(time.RFC3339)
	msg := []byte(`{"agent_id":"agent-1","asset_id":"BTC","timestamp":"` + ts + `","zi_score":2}`)

	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	obs, err := store.ListByRound(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListByRound: %v", err)
	}
	if len(obs) != 1 || obs[0].AgentID != "agent-1" {
		t.Fatalf("stored = %+v, want one observation from agent-1", obs)
	}
}

func TestHandleDropsBadMessages(t *testing.T) {
	intake, m, store := newTestIntake(t)
	h := NewObservationsHandler("finorax.observations", intake, nil)
	ctx := context.Background()

	ts := testSchedule().Start.Add(10 * time.Minute).Format(time.RFC3339)
	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"agent_id":"a","asset_id":"BTC","timestamp":"yesterday","zi_score":1}`),
		[]byte(`{"agent_id":"a","asset_id":"BTC","timestamp":"` + ts + `","zi_score":7}`),
		[]byte(`{"agent_id":"","asset_id":"BTC","timestamp":"` + ts + `","zi_score":1}`),
	}
	for _, msg := range bad {
		// Redelivering any of these can never help, so no error propagates.
		if err := h.Handle(ctx, msg); err != nil {
			t.Fatalf("Handle(%s): %v", msg, err)
		}
	}

	// Late submissions into a closed round are dropped the same way.
	if _, err := m.CloseDueRounds(ctx, testSchedule().Start.Add(2*time.Hour)); err != nil {
		t.Fatalf("CloseDueRounds: %v", err)
	}
	late := []byte(`{"agent_id":"a","asset_id":"BTC","timestamp":"` + ts + `","zi_score":1}`)
	if err := h.Handle(ctx, late); err != nil {
		t.Fatalf("Handle(late): %v", err)
	}

	obs, _ := store.ListByRound(ctx, 1)
	if len(obs) != 0 {
		t.Fatalf("stored = %+v, want nothing", obs)
	}
}
