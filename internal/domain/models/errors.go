package models

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfSchedule is returned when a timestamp precedes the round
	// schedule start, so no round can own it.
	ErrOutOfSchedule = errors.New("timestamp precedes round schedule start")

	// ErrUnknownRound is returned for round ids the schedule cannot produce.
	ErrUnknownRound = errors.New("unknown round")

	// ErrRoundClosed is returned when an observation arrives after its
	// round's cutoff. The observation is discarded, never attached.
	ErrRoundClosed = errors.New("round is closed for new observations")

	// ErrRoundNotClosed is returned when scoring is requested for a round
	// that is still accepting observations.
	ErrRoundNotClosed = errors.New("round is not closed yet")

	// ErrRoundAlreadyScored is returned when scoring is requested for a
	// scored round without an explicit rescore.
	ErrRoundAlreadyScored = errors.New("round is already scored")

	// ErrRoundNotScored is returned when ranking is requested before the
	// round has been scored.
	ErrRoundNotScored = errors.New("round is not scored yet")

	// ErrScoringInFlight is returned when a second scoring pass is attempted
	// for a round that is already being scored.
	ErrScoringInFlight = errors.New("scoring already in flight for round")

	// ErrPriceUnavailable marks a permanent "no data" result from the price
	// series. It is never retried and converts to an unscorable observation.
	ErrPriceUnavailable = errors.New("price not available")

	// ErrDuplicateObservation is returned when the same (agent, asset,
	// timestamp) key is submitted twice. Stored observations are immutable.
	ErrDuplicateObservation = errors.New("observation already recorded")

	// ErrLockHeld is returned when the per-round distributed lock is held
	// by another scoring pass.
	ErrLockHeld = errors.New("round lock already held")
)

// ValidationError rejects a malformed observation at creation time.
// It is never stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
