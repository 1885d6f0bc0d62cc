package practice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/sm2"
)

// Mode selects which cards of a deck make up the practice queue.
type Mode string

const (
	// ModeAll practices every card of the deck.
	ModeAll Mode = "all"
	// ModeFavorites practices favorited cards only.
	ModeFavorites Mode = "favorites"
	// ModeSpaced practices the cards that are due for review.
	ModeSpaced Mode = "spaced"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown practice mode")

// Modes lists the valid modes.
func Modes() []Mode {
	return []Mode{ModeAll, ModeFavorites, ModeSpaced}
}

// ParseMode parses a mode name, ignoring case and surrounding space.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeAll, ModeFavorites, ModeSpaced:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Member reports whether card belongs in a queue of the given mode.
func Member(card flashcard.Card, mode Mode, now time.Time) bool {
	return member(sm2.NewScheduler(), card, mode, now)
}

// Select returns the cards that make up a fresh queue for mode, keeping the
// collection's order.
func Select(cards []flashcard.Card, mode Mode, now time.Time) []flashcard.Card {
	return selectCards(sm2.NewScheduler(), cards, mode, now)
}

func member(s sm2.Scheduler, card flashcard.Card, mode Mode, now time.Time) bool {
	switch mode {
	case ModeFavorites:
		return card.Favorited
	case ModeSpaced:
		return s.IsDue(card, now)
	default:
		return true
	}
}

func selectCards(s sm2.Scheduler, cards []flashcard.Card, mode Mode, now time.Time) []flashcard.Card {
	switch mode {
	case ModeSpaced:
		return s.DueCards(cards, now)
	case ModeFavorites:
		out := make([]flashcard.Card, 0, len(cards))
		for _, c := range cards {
			if c.Favorited {
				out = append(out, c)
			}
		}
		return out
	default:
		return append([]flashcard.Card(nil), cards...)
	}
}
