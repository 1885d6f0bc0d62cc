package practice

import (
	"context"
	"fmt"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/storage"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory CardStore with injectable failures.
type fakeStore struct {
	decks   []flashcard.Deck
	cards   []flashcard.Card
	reviews []storage.Review

	failList   error
	failCreate error
	failUpdate error
	failDelete error
	failReview error
	failSave   error

	// onList runs inside ListCards before the cards are returned.
	onList func()

	updates int
	saves   int
	seq     int
}

func newFakeStore(cards ...flashcard.Card) *fakeStore {
	return &fakeStore{
		decks: []flashcard.Deck{{ID: "d1", Name: "Biology"}},
		cards: cards,
	}
}

func (s *fakeStore) ListDecks(context.Context) ([]flashcard.Deck, error) {
	return append([]flashcard.Deck(nil), s.decks...), nil
}

func (s *fakeStore) ListCards(_ context.Context, deckID string) ([]flashcard.Card, error) {
	if s.failList != nil {
		return nil, s.failList
	}
	if s.onList != nil {
		s.onList()
	}
	var out []flashcard.Card
	for _, c := range s.cards {
		if c.DeckID == deckID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateCard(_ context.Context, deckID, front, back string) (flashcard.Card, error) {
	if s.failCreate != nil {
		return flashcard.Card{}, s.failCreate
	}
	s.seq++
	card := flashcard.New(fmt.Sprintf("new%d", s.seq), deckID, front, back, testNow)
	s.cards = append(s.cards, card)
	return card, nil
}

func (s *fakeStore) UpdateCard(_ context.Context, id string, patch flashcard.Patch) (flashcard.Card, error) {
	if s.failUpdate != nil {
		return flashcard.Card{}, s.failUpdate
	}
	for i, c := range s.cards {
		if c.ID == id {
			s.updates++
			patch.UpdatedAt = flashcard.Ptr(testNow.Add(time.Duration(s.updates) * time.Second))
			s.cards[i] = c.Apply(patch)
			return s.cards[i], nil
		}
	}
	return flashcard.Card{}, storage.ErrCardNotFound
}

func (s *fakeStore) DeleteCard(_ context.Context, id string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	for i, c := range s.cards {
		if c.ID == id {
			s.cards = append(s.cards[:i], s.cards[i+1:]...)
			return nil
		}
	}
	return storage.ErrCardNotFound
}

func (s *fakeStore) AddReview(_ context.Context, cardID string, quality int) (storage.Review, error) {
	if s.failReview != nil {
		return storage.Review{}, s.failReview
	}
	r := storage.Review{ID: fmt.Sprintf("r%d", len(s.reviews)+1), CardID: cardID, Quality: quality, Timestamp: testNow}
	s.reviews = append(s.reviews, r)
	return r, nil
}

func (s *fakeStore) Save() error {
	s.saves++
	return s.failSave
}

func (s *fakeStore) card(id string) (flashcard.Card, bool) {
	for _, c := range s.cards {
		if c.ID == id {
			return c, true
		}
	}
	return flashcard.Card{}, false
}

// makeCards returns n unreviewed cards c1..cn in deck d1.
func makeCards(n int) []flashcard.Card {
	cards := make([]flashcard.Card, n)
	for i := range cards {
		id := fmt.Sprintf("c%d", i+1)
		cards[i] = flashcard.New(id, "d1", "front "+id, "back "+id, testNow.AddDate(0, -1, 0))
	}
	return cards
}

func reviewedAt(c flashcard.Card, daysAgo, interval int) flashcard.Card {
	at := testNow.AddDate(0, 0, -daysAgo)
	c.LastReviewed = &at
	c.Repetitions = 2
	c.Interval = interval
	return c
}
