package models

import (
	"fmt"
	"time"
)

// RoundStatus is a strict forward state machine: OPEN -> CLOSED -> SCORED.
type RoundStatus string

const (
	RoundOpen   RoundStatus = "OPEN"
	RoundClosed RoundStatus = "CLOSED"
	RoundScored RoundStatus = "SCORED"
)

// Round is a fixed evaluation window. Rounds are contiguous and
// non-overlapping; the window is half-open [StartTime, EndTime).
type Round struct {
	ID        int64       `json:"round_id"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	Status    RoundStatus `json:"status"`
}

// Contains reports whether t falls inside the round window.
func (r Round) Contains(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// Schedule is the explicit, versioned round schedule. It is passed to the
// round manager instead of living as ambient state so that tests can run
// against synthetic schedules.
type Schedule struct {
	Version     int           `yaml:"version"`
	Start       time.Time     `yaml:"start"`
	RoundLength time.Duration `yaml:"round_length"`
}

// Validate checks the schedule is usable.
func (s Schedule) Validate() error {
	if s.Start.IsZero() {
		return fmt.Errorf("schedule.start is required")
	}
	if s.RoundLength <= 0 {
		return fmt.Errorf("schedule.round_length must be positive, got %s", s.RoundLength)
	}
	return nil
}

// RoundIndex maps a timestamp to its 1-based round id, or ErrOutOfSchedule
// when ts precedes the schedule start. Pure function of the schedule.
func (s Schedule) RoundIndex(ts time.Time) (int64, error) {
	ts = ts.UTC()
	if ts.Before(s.Start) {
		return 0, ErrOutOfSchedule
	}
	return int64(ts.Sub(s.Start)/s.RoundLength) + 1, nil
}

// Window returns the half-open window for a round id.
func (s Schedule) Window(id int64) (start, end time.Time, err error) {
	if id < 1 {
		return time.Time{}, time.Time{}, ErrUnknownRound
	}
	start = s.Start.Add(time.Duration(id-1) * s.RoundLength).UTC()
	return start, start.Add(s.RoundLength), nil
}
