package cards

import (
	"encoding/binary"
	"hash/fnv"
	"time"
)

// SM-2-family scheduling constants.
const (
	minEaseFactor     = 1.3
	defaultEaseFactor = 2.5

	againEasePenalty = 0.20
	hardEasePenalty  = 0.15
	easyEaseBonus    = 0.15

	hardIntervalFactor = 1.2
	easyIntervalBonus  = 1.3

	relearnIntervalDays   = 1.0
	firstIntervalDays     = 1.0
	firstEasyIntervalDays = 4.0

	// Intervals above this threshold receive a deterministic fuzz so cards
	// reviewed together do not pile onto the same due date.
	fuzzThresholdDays = 2.5
	fuzzFraction      = 0.05

	defaultMaxIntervalDays = 36500
	secondsPerDay          = 86400
)

// newCardState returns the scheduling state a card carries before its first review.
func newCardState(notebookID, cardID string, now time.Time) CardState {
	return CardState{
		CardID:       cardID,
		NotebookID:   notebookID,
		DueAtSeconds: now.Unix(),
		IntervalDays: 0,
		EaseFactor:   defaultEaseFactor,
	}
}

// scheduleReview maps (state, rating, now) onto the next scheduling state.
// It is pure and deterministic: identical inputs always yield identical
// outputs, including the fuzz, which is seeded from the card identity and
// the post-review repetition count.
func scheduleReview(state CardState, rating Rating, now time.Time, maxIntervalDays float64) CardState {
	if maxIntervalDays <= 0 {
		maxIntervalDays = defaultMaxIntervalDays
	}

	next := state
	reviewedAt := now.Unix()
	next.LastReviewedAtSeconds = &reviewedAt

	if rating == RatingAgain {
		next.Repetitions = 0
		next.Lapses = state.Lapses + 1
		next.IntervalDays = relearnIntervalDays
		next.EaseFactor = clampEase(state.EaseFactor - againEasePenalty)
		next.DueAtSeconds = now.Unix() + int64(next.IntervalDays*secondsPerDay)
		return next
	}

	next.Repetitions = state.Repetitions + 1

	var interval float64
	if state.IntervalDays <= 0 {
		// First graduation out of the new/relearn pile.
		interval = firstIntervalDays
		if rating == RatingEasy {
			interval = firstEasyIntervalDays
		}
	} else {
		switch rating {
		case RatingHard:
			interval = state.IntervalDays * hardIntervalFactor
		case RatingGood:
			interval = state.IntervalDays * state.EaseFactor
		case RatingEasy:
			interval = state.IntervalDays * state.EaseFactor * easyIntervalBonus
		}
	}

	interval = fuzzInterval(interval, state.CardID, next.Repetitions)
	if interval < state.IntervalDays {
		interval = state.IntervalDays
	}
	if interval > maxIntervalDays {
		interval = maxIntervalDays
	}
	next.IntervalDays = interval

	switch rating {
	case RatingHard:
		next.EaseFactor = clampEase(state.EaseFactor - hardEasePenalty)
	case RatingEasy:
		next.EaseFactor = state.EaseFactor + easyEaseBonus
	default:
		next.EaseFactor = clampEase(state.EaseFactor)
	}

	next.DueAtSeconds = now.Unix() + int64(interval*secondsPerDay)
	// Successful reviews never move the due date into the past.
	if next.DueAtSeconds < state.DueAtSeconds {
		next.DueAtSeconds = state.DueAtSeconds
	}
	return next
}

// previewReviewIntervals evaluates the scheduler once per rating against
// copies of the state. The input is never mutated.
func previewReviewIntervals(state CardState, now time.Time, maxIntervalDays float64) [4]float64 {
	var intervals [4]float64
	for rating := RatingAgain; rating <= RatingEasy; rating++ {
		intervals[rating-1] = scheduleReview(state, rating, now, maxIntervalDays).IntervalDays
	}
	return intervals
}

func clampEase(ease float64) float64 {
	if ease < minEaseFactor {
		return minEaseFactor
	}
	return ease
}

// fuzzInterval applies a bounded offset in [-5%, +5%] seeded from the card
// identity and repetition count. Short intervals pass through untouched so
// relearning steps stay exact.
func fuzzInterval(interval float64, cardID string, repetitions int) float64 {
	if interval <= fuzzThresholdDays {
		return interval
	}
	hasher := fnv.New64a()
	hasher.Write([]byte(cardID))
	var reps [8]byte
	binary.LittleEndian.PutUint64(reps[:], uint64(repetitions))
	hasher.Write(reps[:])
	unit := float64(hasher.Sum64()%1000) / 999.0
	return interval + (unit*2-1)*fuzzFraction*interval
}
