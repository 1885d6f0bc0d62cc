package main

import (
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/practice"
	"github.com/danieldreier/mcp-practice/internal/sm2"
	"github.com/danieldreier/mcp-practice/internal/storage"
)

// DisplayCard is a card as shown to the student. The back stays hidden until
// the card is flipped.
type DisplayCard struct {
	ID         string     `json:"id"`
	Front      string     `json:"front"`
	Back       string     `json:"back,omitempty"`
	Favorited  bool       `json:"favorited"`
	NextReview *time.Time `json:"next_review,omitempty"`
}

// ViewResponse is returned by every navigation tool.
type ViewResponse struct {
	Card     *DisplayCard   `json:"card,omitempty"`
	Position int            `json:"position,omitempty"`
	Total    int            `json:"total"`
	Flipped  bool           `json:"flipped"`
	Mode     practice.Mode  `json:"mode"`
	Due      bool           `json:"due"`
	Message  string         `json:"message,omitempty"`
	Stats    practice.Stats `json:"stats"`
}

// RateResponse is returned by the rate tool.
type RateResponse struct {
	Card       flashcard.Card `json:"card"`
	NextReview time.Time      `json:"next_review"`
	Next       ViewResponse   `json:"next"`
}

// CardResponse wraps a single stored card.
type CardResponse struct {
	Card flashcard.Card `json:"card"`
}

// DeleteCardResponse is returned by delete_card.
type DeleteCardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SearchCardsResponse is returned by search_cards.
type SearchCardsResponse struct {
	Prefix string           `json:"prefix"`
	Cards  []flashcard.Card `json:"cards"`
}

// DeckResponse wraps a single deck.
type DeckResponse struct {
	Deck flashcard.Deck `json:"deck"`
}

// DecksResponse is returned by list_decks and search_decks.
type DecksResponse struct {
	Decks []flashcard.Deck `json:"decks"`
}

// HistoryResponse is returned by card_history.
type HistoryResponse struct {
	CardID  string           `json:"card_id"`
	Reviews []storage.Review `json:"reviews"`
}

func displayCard(c flashcard.Card, flipped bool) *DisplayCard {
	d := &DisplayCard{ID: c.ID, Front: c.Front, Favorited: c.Favorited}
	if flipped {
		d.Back = c.Back
	}
	if next, ok := sm2.NextReview(c); ok {
		d.NextReview = &next
	}
	return d
}

func viewResponse(v practice.View, stats practice.Stats) ViewResponse {
	return ViewResponse{
		Card:     displayCard(v.Card, v.Flipped),
		Position: v.Position,
		Total:    v.Total,
		Flipped:  v.Flipped,
		Mode:     v.Mode,
		Due:      v.Due,
		Stats:    stats,
	}
}

func emptyViewResponse(stats practice.Stats) ViewResponse {
	return ViewResponse{
		Mode:    stats.Mode,
		Message: "No cards to practice",
		Stats:   stats,
	}
}
