// Package storage persists decks, cards and review history. It is the
// server side of the practice engine: every mutation returns the record as
// stored, and callers apply only that returned record locally.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Review is one entry of a card's review history. The scheduling fields hold
// the card's state after the rating was applied.
type Review struct {
	ID          string    `json:"id"`
	CardID      string    `json:"card_id"`
	Quality     int       `json:"quality"`
	Timestamp   time.Time `json:"timestamp"`
	Repetitions int       `json:"repetitions"`
	EaseFactor  float64   `json:"ease_factor"`
	Interval    int       `json:"interval"`
}

// Document is the on-disk layout of a FileStorage.
type Document struct {
	Decks       map[string]flashcard.Deck `json:"decks"`
	Cards       map[string]flashcard.Card `json:"cards"`
	Reviews     []Review                  `json:"reviews"`
	LastUpdated time.Time                 `json:"last_updated"`
}

var (
	// ErrCardNotFound is returned when a card id is unknown to the store.
	ErrCardNotFound = errors.New("card not found")
	// ErrDeckNotFound is returned when a deck id is unknown to the store.
	ErrDeckNotFound = errors.New("deck not found")
)

// Storage is the persistence collaborator of the practice engine.
type Storage interface {
	CreateDeck(ctx context.Context, name string) (flashcard.Deck, error)
	ListDecks(ctx context.Context) ([]flashcard.Deck, error)

	CreateCard(ctx context.Context, deckID, front, back string) (flashcard.Card, error)
	GetCard(ctx context.Context, id string) (flashcard.Card, error)
	// ListCards returns the cards of a deck, oldest first. An empty deckID
	// lists every card.
	ListCards(ctx context.Context, deckID string) ([]flashcard.Card, error)
	UpdateCard(ctx context.Context, id string, patch flashcard.Patch) (flashcard.Card, error)
	DeleteCard(ctx context.Context, id string) error

	AddReview(ctx context.Context, cardID string, quality int) (Review, error)
	GetCardReviews(ctx context.Context, cardID string) ([]Review, error)

	Load() error
	Save() error
	Close() error
}

// timeNow is swapped out by tests.
var timeNow = time.Now

// Option configures a store.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the store's logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FileStorage keeps the whole document in memory and writes it to a JSON
// file on Save.
type FileStorage struct {
	filePath string
	doc      Document
	mu       sync.RWMutex
	logger   *zap.Logger
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a FileStorage backed by filePath. Call Load before
// use.
func NewFileStorage(filePath string, opts ...Option) *FileStorage {
	o := buildOptions(opts)
	o.logger.Debug("creating file storage", zap.String("path", filePath))
	return &FileStorage{
		filePath: filePath,
		doc:      emptyDocument(),
		logger:   o.logger,
	}
}

func emptyDocument() Document {
	return Document{
		Decks:   make(map[string]flashcard.Deck),
		Cards:   make(map[string]flashcard.Card),
		Reviews: []Review{},
	}
}

// CreateDeck creates an empty deck.
func (fs *FileStorage) CreateDeck(_ context.Context, name string) (flashcard.Deck, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := timeNow()
	deck := flashcard.Deck{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fs.doc.Decks[deck.ID] = deck
	fs.doc.LastUpdated = now
	return deck, nil
}

// ListDecks returns every deck, oldest first.
func (fs *FileStorage) ListDecks(_ context.Context) ([]flashcard.Deck, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	decks := make([]flashcard.Deck, 0, len(fs.doc.Decks))
	for _, d := range fs.doc.Decks {
		decks = append(decks, d)
	}
	sort.Slice(decks, func(i, j int) bool {
		if !decks[i].CreatedAt.Equal(decks[j].CreatedAt) {
			return decks[i].CreatedAt.Before(decks[j].CreatedAt)
		}
		return decks[i].ID < decks[j].ID
	})
	return decks, nil
}

// CreateCard creates an unreviewed card in deckID.
func (fs *FileStorage) CreateCard(_ context.Context, deckID, front, back string) (flashcard.Card, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.doc.Decks[deckID]; !ok {
		return flashcard.Card{}, fmt.Errorf("create card in %q: %w", deckID, ErrDeckNotFound)
	}
	now := timeNow()
	card := flashcard.New(uuid.New().String(), deckID, front, back, now)
	fs.doc.Cards[card.ID] = card
	fs.doc.LastUpdated = now
	return card, nil
}

// GetCard returns the card with the given id.
func (fs *FileStorage) GetCard(_ context.Context, id string) (flashcard.Card, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	card, ok := fs.doc.Cards[id]
	if !ok {
		return flashcard.Card{}, ErrCardNotFound
	}
	return card, nil
}

// ListCards implements Storage.
func (fs *FileStorage) ListCards(_ context.Context, deckID string) ([]flashcard.Card, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if deckID != "" {
		if _, ok := fs.doc.Decks[deckID]; !ok {
			return nil, fmt.Errorf("list cards of %q: %w", deckID, ErrDeckNotFound)
		}
	}
	cards := make([]flashcard.Card, 0, len(fs.doc.Cards))
	for _, c := range fs.doc.Cards {
		if deckID == "" || c.DeckID == deckID {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})
	return cards, nil
}

// UpdateCard merges patch into the stored card, stamps UpdatedAt and returns
// the stored result.
func (fs *FileStorage) UpdateCard(_ context.Context, id string, patch flashcard.Patch) (flashcard.Card, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	card, ok := fs.doc.Cards[id]
	if !ok {
		return flashcard.Card{}, ErrCardNotFound
	}
	now := timeNow()
	patch.UpdatedAt = &now
	card = card.Apply(patch)
	fs.doc.Cards[id] = card
	fs.doc.LastUpdated = now
	return card, nil
}

// DeleteCard removes a card together with its review history.
func (fs *FileStorage) DeleteCard(_ context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.doc.Cards[id]; !ok {
		return ErrCardNotFound
	}
	delete(fs.doc.Cards, id)

	kept := fs.doc.Reviews[:0]
	for _, r := range fs.doc.Reviews {
		if r.CardID != id {
			kept = append(kept, r)
		}
	}
	fs.doc.Reviews = kept
	fs.doc.LastUpdated = timeNow()
	return nil
}

// AddReview records a rating against the card's current scheduling state.
func (fs *FileStorage) AddReview(_ context.Context, cardID string, quality int) (Review, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	card, ok := fs.doc.Cards[cardID]
	if !ok {
		return Review{}, ErrCardNotFound
	}
	now := timeNow()
	review := Review{
		ID:          uuid.New().String(),
		CardID:      cardID,
		Quality:     quality,
		Timestamp:   now,
		Repetitions: card.Repetitions,
		EaseFactor:  card.EaseFactor,
		Interval:    card.Interval,
	}
	fs.doc.Reviews = append(fs.doc.Reviews, review)
	fs.doc.LastUpdated = now
	return review, nil
}

// GetCardReviews returns a card's review history, oldest first.
func (fs *FileStorage) GetCardReviews(_ context.Context, cardID string) ([]Review, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, ok := fs.doc.Cards[cardID]; !ok {
		return nil, ErrCardNotFound
	}
	var reviews []Review
	for _, r := range fs.doc.Reviews {
		if r.CardID == cardID {
			reviews = append(reviews, r)
		}
	}
	return reviews, nil
}

// save writes the document atomically. The caller holds the write lock.
func (fs *FileStorage) save() error {
	fs.doc.LastUpdated = timeNow()

	data, err := json.MarshalIndent(fs.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fs.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := fs.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, fs.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	fs.logger.Debug("saved storage",
		zap.String("path", fs.filePath),
		zap.Int("decks", len(fs.doc.Decks)),
		zap.Int("cards", len(fs.doc.Cards)))
	return nil
}

// Load reads the document from disk. A missing file is created empty; an
// empty file loads as an empty document.
func (fs *FileStorage) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		fs.logger.Info("storage file not found, initializing", zap.String("path", fs.filePath))
		fs.doc = emptyDocument()
		if err := fs.save(); err != nil {
			return fmt.Errorf("failed to save initial empty store: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}

	if len(data) == 0 {
		fs.doc = emptyDocument()
		return nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal storage data: %w", err)
	}
	if doc.Decks == nil {
		doc.Decks = make(map[string]flashcard.Deck)
	}
	if doc.Cards == nil {
		doc.Cards = make(map[string]flashcard.Card)
	}
	if doc.Reviews == nil {
		doc.Reviews = []Review{}
	}
	fs.doc = doc

	fs.logger.Debug("loaded storage",
		zap.String("path", fs.filePath),
		zap.Int("decks", len(doc.Decks)),
		zap.Int("cards", len(doc.Cards)),
		zap.Int("reviews", len(doc.Reviews)))
	return nil
}

// Save writes the document to disk.
func (fs *FileStorage) Save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.save()
}

// Close saves pending changes.
func (fs *FileStorage) Close() error {
	return fs.Save()
}
