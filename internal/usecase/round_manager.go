package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/pkg/logger"
)

// RoundManager owns the round lifecycle. Rounds are derived from the schedule
// and materialized lazily on first touch, so an idle engine allocates nothing.
//
// Status moves strictly forward: OPEN -> CLOSED -> SCORED. A SCORED round can
// be rescored but its status never moves back.
type RoundManager struct {
	mu            sync.Mutex
	schedule      models.Schedule
	rounds        map[int64]*models.Round
	closedThrough int64 // every round id <= this is at least CLOSED
	inFlight      map[int64]struct{}
	intake        map[int64]int // open intake claims per round
	intakeIdle    *sync.Cond    // signaled when a round's intake count drops to zero

	store   repository.LeaderboardStore // optional round persistence
	metrics repository.Metrics
	log     *logger.Logger
}

func NewRoundManager(schedule models.Schedule, store repository.LeaderboardStore, metrics repository.Metrics, log *logger.Logger) (*RoundManager, error) {
	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("round manager: %w", err)
	}
	m := &RoundManager{
		schedule: schedule,
		rounds:   make(map[int64]*models.Round),
		inFlight: make(map[int64]struct{}),
		intake:   make(map[int64]int),
		store:    store,
		metrics:  metrics,
		log:      log,
	}
	m.intakeIdle = sync.NewCond(&m.mu)
	return m, nil
}

// Schedule returns the active schedule.
func (m *RoundManager) Schedule() models.Schedule {
	return m.schedule
}

// materialize returns the round for id, creating it on first touch.
// Caller must hold m.mu.
func (m *RoundManager) materialize(id int64) (*models.Round, error) {
	if r, ok := m.rounds[id]; ok {
		return r, nil
	}
	start, end, err := m.schedule.Window(id)
	if err != nil {
		return nil, err
	}
	status := models.RoundOpen
	if id <= m.closedThrough {
		status = models.RoundClosed
	}
	r := &models.Round{ID: id, StartTime: start, EndTime: end, Status: status}
	m.rounds[id] = r
	return r, nil
}

// RoundFor resolves the round owning ts, materializing it if needed.
func (m *RoundManager) RoundFor(ts time.Time) (models.Round, error) {
	id, err := m.schedule.RoundIndex(ts)
	if err != nil {
		return models.Round{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.materialize(id)
	if err != nil {
		return models.Round{}, err
	}
	return *r, nil
}

// Round returns the round with the given id.
func (m *RoundManager) Round(id int64) (models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.materialize(id)
	if err != nil {
		return models.Round{}, err
	}
	return *r, nil
}

// BeginIntake resolves the round owning ts and claims it for one observation
// write. A round with outstanding intake claims cannot finish closing, so a
// submission accepted here is guaranteed to be stored before the round's
// observation set is read for scoring. EndIntake must follow every
// successful claim.
func (m *RoundManager) BeginIntake(ts time.Time) (models.Round, error) {
	id, err := m.schedule.RoundIndex(ts)
	if err != nil {
		return models.Round{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.materialize(id)
	if err != nil {
		return models.Round{}, err
	}
	if r.Status != models.RoundOpen {
		return models.Round{}, fmt.Errorf("round %d: %w", id, models.ErrRoundClosed)
	}
	m.intake[id]++
	return *r, nil
}

// EndIntake releases an intake claim taken by BeginIntake.
func (m *RoundManager) EndIntake(id int64) {
	m.mu.Lock()
	if m.intake[id] > 0 {
		m.intake[id]--
		if m.intake[id] == 0 {
			delete(m.intake, id)
			m.intakeIdle.Broadcast()
		}
	}
	m.mu.Unlock()
}

// awaitIntakeDrained blocks until no intake claim is open on the round.
// Caller must hold m.mu; the lock is released while waiting. Claims are only
// granted on OPEN rounds, so once the round's status has advanced this
// returns for good.
func (m *RoundManager) awaitIntakeDrained(id int64) {
	for m.intake[id] > 0 {
		m.intakeIdle.Wait()
	}
}

// Status returns the lifecycle status for a round id.
func (m *RoundManager) Status(id int64) (models.RoundStatus, error) {
	r, err := m.Round(id)
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

// CloseDueRounds closes every OPEN round whose window ended at or before now
// and returns their ids. Calling it twice with the same now is a no-op the
// second time.
func (m *RoundManager) CloseDueRounds(ctx context.Context, now time.Time) ([]int64, error) {
	now = now.UTC()
	if now.Before(m.schedule.Start) {
		return nil, nil
	}

	// The round owning now is still open; everything before it is due.
	currentID, err := m.schedule.RoundIndex(now)
	if err != nil {
		return nil, err
	}
	lastDue := currentID - 1

	m.mu.Lock()
	var closed []int64
	for id := m.closedThrough + 1; id <= lastDue; id++ {
		r, err := m.materialize(id)
		if err != nil {
			m.mu.Unlock()
			return closed, err
		}
		if r.Status == models.RoundOpen {
			r.Status = models.RoundClosed
			closed = append(closed, id)
		}
	}
	if lastDue > m.closedThrough {
		m.closedThrough = lastDue
	}
	// Submissions accepted while the round was still OPEN finish storing
	// before the close is reported, keeping the closed set immutable.
	for _, id := range closed {
		m.awaitIntakeDrained(id)
	}
	snapshot := make([]models.Round, 0, len(closed))
	for _, id := range closed {
		snapshot = append(snapshot, *m.rounds[id])
	}
	m.mu.Unlock()

	for i, r := range snapshot {
		if m.metrics != nil {
			m.metrics.RecordRoundClosed()
		}
		if m.log != nil {
			m.log.Info("round closed",
				logger.Int64("round", r.ID),
				logger.String("end", r.EndTime.Format(time.RFC3339)),
			)
		}
		if m.store != nil {
			if err := m.store.SaveRound(ctx, r); err != nil {
				return closed[:i], fmt.Errorf("persist closed round %d: %w", r.ID, err)
			}
		}
	}
	return closed, nil
}

// BeginScoring validates preconditions and claims the round for a single
// scoring pass. EndScoring must be called when the pass finishes, whether it
// succeeded or not.
func (m *RoundManager) BeginScoring(id int64, rescore bool) (models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.materialize(id)
	if err != nil {
		return models.Round{}, err
	}
	// A straggler accepted just before the close must land before scoring
	// reads the round's observation set.
	m.awaitIntakeDrained(id)
	switch r.Status {
	case models.RoundOpen:
		return models.Round{}, fmt.Errorf("round %d: %w", id, models.ErrRoundNotClosed)
	case models.RoundScored:
		if !rescore {
			return models.Round{}, fmt.Errorf("round %d: %w", id, models.ErrRoundAlreadyScored)
		}
	}
	if _, busy := m.inFlight[id]; busy {
		return models.Round{}, fmt.Errorf("round %d: %w", id, models.ErrScoringInFlight)
	}
	m.inFlight[id] = struct{}{}
	return *r, nil
}

// EndScoring releases the in-process claim taken by BeginScoring.
func (m *RoundManager) EndScoring(id int64) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

// MarkScored transitions the round to SCORED and persists it. Idempotent.
func (m *RoundManager) MarkScored(ctx context.Context, id int64) error {
	m.mu.Lock()
	r, err := m.materialize(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if r.Status == models.RoundOpen {
		m.mu.Unlock()
		return fmt.Errorf("round %d: %w", id, models.ErrRoundNotClosed)
	}
	already := r.Status == models.RoundScored
	r.Status = models.RoundScored
	snapshot := *r
	m.mu.Unlock()

	if !already && m.metrics != nil {
		m.metrics.RecordRoundScored()
	}
	if m.store != nil {
		if err := m.store.SaveRound(ctx, snapshot); err != nil {
			return fmt.Errorf("persist scored round %d: %w", id, err)
		}
	}
	return nil
}
