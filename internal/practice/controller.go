// Package practice runs practice sessions: it builds the practice queue for a
// deck and mode, keeps it in step with the card store, and exposes the
// navigation, rating and search operations a front end needs.
package practice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/queue"
	"github.com/danieldreier/mcp-practice/internal/sm2"
	"github.com/danieldreier/mcp-practice/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrNoCards means the practice queue is empty.
	ErrNoCards = errors.New("no cards to practice")
	// ErrNoDeck is returned by operations that need an open deck.
	ErrNoDeck = errors.New("no deck open")
)

// CardStore is the persistence side of a session. Every mutation returns the
// stored record, which is what the controller applies locally.
type CardStore interface {
	ListDecks(ctx context.Context) ([]flashcard.Deck, error)
	ListCards(ctx context.Context, deckID string) ([]flashcard.Card, error)
	CreateCard(ctx context.Context, deckID, front, back string) (flashcard.Card, error)
	UpdateCard(ctx context.Context, id string, patch flashcard.Patch) (flashcard.Card, error)
	DeleteCard(ctx context.Context, id string) error
	AddReview(ctx context.Context, cardID string, quality int) (storage.Review, error)
	Save() error
}

// View is what the front end shows: the front card of the queue and where
// the user is in it.
type View struct {
	Card flashcard.Card `json:"card"`
	// Position counts from 1 and wraps with navigation.
	Position int  `json:"position"`
	Total    int  `json:"total"`
	Flipped  bool `json:"flipped"`
	Mode     Mode `json:"mode"`
	Due      bool `json:"due"`
}

// Stats summarizes the open deck and session.
type Stats struct {
	DeckID    string `json:"deck_id"`
	Mode      Mode   `json:"mode"`
	Cards     int    `json:"cards"`
	Queued    int    `json:"queued"`
	Favorited int    `json:"favorited"`
	Due       int    `json:"due"`
	Reviewed  int    `json:"reviewed"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the source of "now" used for due checks and reviews.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRand sets the randomness source for Shuffle.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		c.rng = r
	}
}

// WithScheduler replaces the SM-2 scheduler.
func WithScheduler(s sm2.Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// Controller owns one practice session. It is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	store     CardStore
	scheduler sm2.Scheduler
	logger    *zap.Logger
	now       func() time.Time
	rng       *rand.Rand

	deckID   string
	mode     Mode
	cards    []flashcard.Card
	index    *CardIndex
	queue    *queue.Queue
	position int
	flipped  bool
}

// NewController returns a controller with no deck open.
func NewController(store CardStore, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		scheduler: sm2.NewScheduler(),
		logger:    zap.NewNop(),
		now:       time.Now,
		mode:      ModeAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index = NewCardIndex(nil)
	c.queue = c.newQueue(nil)
	return c
}

// Open loads deckID from the store and starts a session in mode. It returns
// ErrNoCards (with the deck still open) when the mode selects nothing.
func (c *Controller) Open(ctx context.Context, deckID string, mode Mode) (View, error) {
	m, err := ParseMode(string(mode))
	if err != nil {
		return View{}, err
	}
	cards, err := c.store.ListCards(ctx, deckID)
	if err != nil {
		return View{}, fmt.Errorf("failed to load deck %s: %w", deckID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.installLocked(deckID, m, cards)
	c.logger.Info("opened deck",
		zap.String("deck_id", deckID),
		zap.String("mode", string(m)),
		zap.Int("cards", len(cards)),
		zap.Int("queued", c.queue.Len()))
	return c.viewLocked()
}

// Refresh reloads the open deck from the store and rebuilds the queue in the
// mode that is current once the load returns. If another deck was opened
// meanwhile, the reload is dropped.
func (c *Controller) Refresh(ctx context.Context) (View, error) {
	c.mu.Lock()
	deckID := c.deckID
	c.mu.Unlock()
	if deckID == "" {
		return View{}, ErrNoDeck
	}
	cards, err := c.store.ListCards(ctx, deckID)
	if err != nil {
		return View{}, fmt.Errorf("failed to load deck %s: %w", deckID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deckID != deckID {
		c.logger.Debug("dropping stale refresh", zap.String("deck_id", deckID), zap.String("open", c.deckID))
		return c.viewLocked()
	}
	c.installLocked(deckID, c.mode, cards)
	c.logger.Info("refreshed deck",
		zap.String("deck_id", deckID),
		zap.String("mode", string(c.mode)),
		zap.Int("cards", len(cards)),
		zap.Int("queued", c.queue.Len()))
	return c.viewLocked()
}

// Reset discards the queue and builds a new one for mode from the last
// loaded collection.
func (c *Controller) Reset(mode Mode) (View, error) {
	m, err := ParseMode(string(mode))
	if err != nil {
		return View{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	c.rebuildLocked()
	return c.viewLocked()
}

// Current returns the displayed card.
func (c *Controller) Current() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Next rotates the front card to the back.
func (c *Controller) Next() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.queue.MoveFrontToBack() {
		return View{}, ErrNoCards
	}
	if c.position >= c.queue.Len() {
		c.position = 1
	} else {
		c.position++
	}
	c.flipped = false
	return c.viewLocked()
}

// Previous rotates the back card to the front.
func (c *Controller) Previous() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.queue.MoveBackToFront() {
		return View{}, ErrNoCards
	}
	if c.position <= 1 {
		c.position = c.queue.Len()
	} else {
		c.position--
	}
	c.flipped = false
	return c.viewLocked()
}

// Flip turns the displayed card over.
func (c *Controller) Flip() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Len() == 0 {
		return View{}, ErrNoCards
	}
	c.flipped = !c.flipped
	return c.viewLocked()
}

// Shuffle reorders the queue at random and returns to its front.
func (c *Controller) Shuffle() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Shuffle()
	c.position = 1
	c.flipped = false
	return c.viewLocked()
}

// Rate reviews the displayed card with quality, persists the new schedule
// and applies the stored card. In spaced mode the card leaves the queue,
// since it is no longer due.
func (c *Controller) Rate(ctx context.Context, quality sm2.Quality) (flashcard.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.frontLocked()
	if err != nil {
		return flashcard.Card{}, err
	}
	reviewed, err := c.scheduler.Review(current, quality, c.now())
	if err != nil {
		return flashcard.Card{}, err
	}
	stored, err := c.store.UpdateCard(ctx, current.ID, flashcard.SchedulePatch(reviewed))
	if err != nil {
		c.logger.Error("failed to store review", zap.String("card_id", current.ID), zap.Error(err))
		return flashcard.Card{}, fmt.Errorf("failed to store review of %s: %w", current.ID, err)
	}
	if _, err := c.store.AddReview(ctx, stored.ID, int(quality)); err != nil {
		c.logger.Warn("failed to record review log", zap.String("card_id", stored.ID), zap.Error(err))
	}
	c.saveLocked()

	c.logger.Debug("rated card",
		zap.String("card_id", stored.ID),
		zap.Int("quality", int(quality)),
		zap.Int("interval", stored.Interval),
		zap.Float64("ease_factor", stored.EaseFactor))
	if err := c.applyLocked(stored); err != nil {
		return stored, err
	}
	return stored, nil
}

// ToggleFavorite flips the favorite flag of the displayed card.
func (c *Controller) ToggleFavorite(ctx context.Context) (flashcard.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.frontLocked()
	if err != nil {
		return flashcard.Card{}, err
	}
	return c.updateLocked(ctx, current.ID, flashcard.Patch{Favorited: flashcard.Ptr(!current.Favorited)})
}

// CreateCard adds a card to the open deck.
func (c *Controller) CreateCard(ctx context.Context, front, back string) (flashcard.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deckID == "" {
		return flashcard.Card{}, ErrNoDeck
	}
	created, err := c.store.CreateCard(ctx, c.deckID, front, back)
	if err != nil {
		return flashcard.Card{}, fmt.Errorf("failed to create card: %w", err)
	}
	c.saveLocked()
	c.logger.Debug("created card", zap.String("card_id", created.ID))
	if err := c.applyLocked(created); err != nil {
		return created, err
	}
	return created, nil
}

// EditCard applies patch to card id through the store.
func (c *Controller) EditCard(ctx context.Context, id string, patch flashcard.Patch) (flashcard.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(ctx, id, patch)
}

// DeleteCard deletes card id from the store and the session.
func (c *Controller) DeleteCard(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeleteCard(ctx, id); err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	c.saveLocked()

	for i, card := range c.cards {
		if card.ID == id {
			c.cards = append(c.cards[:i:i], c.cards[i+1:]...)
			break
		}
	}
	c.index = NewCardIndex(c.cards)
	c.removeLocked(id)
	c.logger.Debug("deleted card", zap.String("card_id", id))
	return nil
}

// ApplyUpdate brings an externally changed card into the session. The
// queue node is edited in place while the card still fits the mode; a card
// that no longer fits is removed and one that newly fits is appended.
// Cards of other decks are ignored.
func (c *Controller) ApplyUpdate(card flashcard.Card) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(card)
}

// Search returns the open deck's cards whose front or back starts with
// prefix. An empty prefix returns every card.
func (c *Controller) Search(prefix string) []flashcard.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Search(prefix)
}

// SearchDecks returns the decks whose name starts with query.
func (c *Controller) SearchDecks(ctx context.Context, query string) ([]flashcard.Deck, error) {
	decks, err := c.store.ListDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return NewDeckIndex(decks).Search(query), nil
}

// Locate returns the 1-based queue position of card id, counted from the
// displayed card.
func (c *Controller) Locate(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.queue.Lookup(id)
	if !ok {
		return 0, false
	}
	return c.queue.Position(h), true
}

// Stats summarizes the open deck.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{
		DeckID: c.deckID,
		Mode:   c.mode,
		Cards:  len(c.cards),
		Queued: c.queue.Len(),
	}
	for _, card := range c.cards {
		if card.Favorited {
			s.Favorited++
		}
		if c.scheduler.IsDue(card, now) {
			s.Due++
		}
		if card.Reviewed() {
			s.Reviewed++
		}
	}
	return s
}

func (c *Controller) newQueue(cards []flashcard.Card) *queue.Queue {
	return queue.FromCards(cards, queue.WithRand(c.rng))
}

func (c *Controller) installLocked(deckID string, mode Mode, cards []flashcard.Card) {
	c.deckID = deckID
	c.mode = mode
	c.cards = cards
	c.index = NewCardIndex(cards)
	c.rebuildLocked()
}

func (c *Controller) rebuildLocked() {
	c.queue = c.newQueue(selectCards(c.scheduler, c.cards, c.mode, c.now()))
	c.position = 1
	c.flipped = false
}

func (c *Controller) frontLocked() (flashcard.Card, error) {
	h, ok := c.queue.Front()
	if !ok {
		return flashcard.Card{}, ErrNoCards
	}
	card, _ := c.queue.Card(h)
	return card, nil
}

func (c *Controller) viewLocked() (View, error) {
	card, err := c.frontLocked()
	if err != nil {
		return View{}, err
	}
	return View{
		Card:     card,
		Position: c.position,
		Total:    c.queue.Len(),
		Flipped:  c.flipped,
		Mode:     c.mode,
		Due:      c.scheduler.IsDue(card, c.now()),
	}, nil
}

func (c *Controller) updateLocked(ctx context.Context, id string, patch flashcard.Patch) (flashcard.Card, error) {
	stored, err := c.store.UpdateCard(ctx, id, patch)
	if err != nil {
		c.logger.Error("failed to update card", zap.String("card_id", id), zap.Error(err))
		return flashcard.Card{}, fmt.Errorf("failed to update card %s: %w", id, err)
	}
	c.saveLocked()
	if err := c.applyLocked(stored); err != nil {
		return stored, err
	}
	return stored, nil
}

func (c *Controller) applyLocked(card flashcard.Card) error {
	if c.deckID == "" || card.DeckID != c.deckID {
		c.logger.Debug("ignoring update for another deck", zap.String("card_id", card.ID), zap.String("deck_id", card.DeckID))
		return nil
	}

	replaced := false
	for i := range c.cards {
		if c.cards[i].ID == card.ID {
			c.cards[i] = card
			replaced = true
			break
		}
	}
	if !replaced {
		c.cards = append(c.cards, card)
	}
	c.index = NewCardIndex(c.cards)

	// Work on a copy so a corrupt queue never replaces the live one.
	next := c.queue.Clone()
	slot, queued := c.slotLocked(card.ID)
	fits := member(c.scheduler, card, c.mode, c.now())

	switch {
	case fits && queued:
		next.Edit(card.ID, flashcard.FullPatch(card))
	case fits:
		next.Insert(card)
	case queued:
		next.Delete(card.ID)
	}
	if err := next.Validate(); err != nil {
		c.logger.Error("practice queue invariant violated", zap.String("card_id", card.ID), zap.Error(err))
		return err
	}
	c.queue = next

	if queued && !fits {
		c.afterRemovalLocked(slot, next.Len()+1)
	} else if c.queue.Len() == 1 {
		c.position = 1
	}
	return nil
}

func (c *Controller) removeLocked(id string) {
	slot, ok := c.slotLocked(id)
	if !ok {
		return
	}
	oldLen := c.queue.Len()
	c.queue.Delete(id)
	c.afterRemovalLocked(slot, oldLen)
}

// slotLocked returns the 0-based offset of id from the front.
func (c *Controller) slotLocked(id string) (int, bool) {
	h, ok := c.queue.Lookup(id)
	if !ok {
		return 0, false
	}
	return c.queue.Position(h) - 1, true
}

// afterRemovalLocked moves the position after the card at slot left a queue
// of oldLen cards. The position-1 cards already shown this lap sit at the back
// of the queue, so losing one of them shifts the display down by one. Losing
// the front when it closed the lap wraps to the lap start.
func (c *Controller) afterRemovalLocked(slot, oldLen int) {
	switch {
	case slot == 0:
		c.flipped = false
		if c.position >= oldLen {
			c.position = 1
		}
	case slot >= oldLen-(c.position-1):
		c.position--
	}
	if c.position > c.queue.Len() {
		c.position = c.queue.Len()
	}
	if c.position < 1 {
		c.position = 1
	}
}

func (c *Controller) saveLocked() {
	if err := c.store.Save(); err != nil {
		c.logger.Warn("failed to save store", zap.Error(err))
	}
}
