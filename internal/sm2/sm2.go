// Package sm2 schedules card reviews with the SuperMemo-2 algorithm.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
)

// Quality is the 0–5 self-rating given after seeing a card's back.
type Quality int

const (
	// Blackout: complete failure to recall.
	Blackout Quality = 0
	// Incorrect: wrong, but the answer was remembered on seeing it.
	Incorrect Quality = 1
	// IncorrectEasy: wrong, but the answer seemed easy once shown.
	IncorrectEasy Quality = 2
	// CorrectDifficult: recalled with serious difficulty.
	CorrectDifficult Quality = 3
	// CorrectHesitant: recalled after some hesitation.
	CorrectHesitant Quality = 4
	// Perfect: instant recall.
	Perfect Quality = 5
)

// Fixed SM-2 constants.
const (
	MinEaseFactor  = flashcard.MinEaseFactor
	FirstInterval  = 1
	SecondInterval = 6
	PassThreshold  = CorrectDifficult
)

// ErrInvalidQuality is returned for a rating outside [0,5].
var ErrInvalidQuality = errors.New("quality must be between 0 and 5")

// Valid reports whether q is within [0,5].
func (q Quality) Valid() bool {
	return q >= Blackout && q <= Perfect
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= PassThreshold
}

// Scheduler decides due status and reschedules reviewed cards.
type Scheduler interface {
	// IsDue reports whether card should be reviewed as of now.
	IsDue(card flashcard.Card, now time.Time) bool
	// DueCards filters cards down to the due ones, keeping input order.
	DueCards(cards []flashcard.Card, now time.Time) []flashcard.Card
	// Review returns card rescheduled for the given quality, reviewed at now.
	Review(card flashcard.Card, quality Quality, now time.Time) (flashcard.Card, error)
}

// SM2 is the canonical SM-2 scheduler. It has no tunable parameters.
type SM2 struct{}

// NewScheduler returns the SM-2 scheduler.
func NewScheduler() Scheduler {
	return SM2{}
}

// IsDue implements Scheduler.
func (SM2) IsDue(card flashcard.Card, now time.Time) bool {
	return IsDue(card, now)
}

// DueCards implements Scheduler.
func (SM2) DueCards(cards []flashcard.Card, now time.Time) []flashcard.Card {
	return DueCards(cards, now)
}

// Review implements Scheduler.
func (SM2) Review(card flashcard.Card, quality Quality, now time.Time) (flashcard.Card, error) {
	return Review(card, quality, now)
}

// NextReview returns the date a reviewed card falls due, and false for a card
// that was never reviewed.
func NextReview(card flashcard.Card) (time.Time, bool) {
	if card.LastReviewed == nil {
		return time.Time{}, false
	}
	return card.LastReviewed.AddDate(0, 0, card.Interval), true
}

// IsDue reports whether lastReviewed + interval days is on or before now.
// A card that was never reviewed is due immediately.
func IsDue(card flashcard.Card, now time.Time) bool {
	next, ok := NextReview(card)
	if !ok {
		return true
	}
	return !next.After(now)
}

// DueCards returns the due subset of cards in input order.
func DueCards(cards []flashcard.Card, now time.Time) []flashcard.Card {
	due := make([]flashcard.Card, 0, len(cards))
	for _, c := range cards {
		if IsDue(c, now) {
			due = append(due, c)
		}
	}
	return due
}

// Review applies one SM-2 step to card and returns the rescheduled copy.
//
// On a pass (quality >= 3) repetitions grows by one, the interval becomes 1,
// then 6, then ceil(interval * easeFactor), and the ease factor moves by
// 0.1 - (5-q)*(0.08 + (5-q)*0.02) with a floor of 1.3. On a fail the
// repetitions reset to 0 and the interval to 1; the ease factor is kept.
func Review(card flashcard.Card, quality Quality, now time.Time) (flashcard.Card, error) {
	if !quality.Valid() {
		return flashcard.Card{}, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}

	next := card
	if quality.Passed() {
		switch card.Repetitions {
		case 0:
			next.Interval = FirstInterval
		case 1:
			next.Interval = SecondInterval
		default:
			next.Interval = int(math.Ceil(float64(card.Interval) * card.EaseFactor))
		}
		next.EaseFactor = nextEaseFactor(card.EaseFactor, quality)
		next.Repetitions = card.Repetitions + 1
	} else {
		next.Interval = FirstInterval
		next.Repetitions = 0
	}

	reviewed := now
	next.LastReviewed = &reviewed
	return next, nil
}

func nextEaseFactor(ef float64, quality Quality) float64 {
	d := float64(Perfect - quality)
	return math.Max(MinEaseFactor, ef+(0.1-d*(0.08+d*0.02)))
}
