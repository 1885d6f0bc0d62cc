// Package flashcard defines the card and deck records shared by the practice
// engine and the stores that persist them.
package flashcard

import "time"

// Scheduling defaults for a card that has never been reviewed.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
	DefaultInterval   = 1
)

// Card is a single front/back study unit with its SM-2 scheduling state.
type Card struct {
	ID     string `json:"id"`
	DeckID string `json:"deck_id"`
	Front  string `json:"front"`
	Back   string `json:"back"`

	Favorited bool `json:"favorited"`
	// LastReviewed is nil until the card is rated for the first time.
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	Repetitions  int        `json:"repetitions"`
	EaseFactor   float64    `json:"ease_factor"`
	Interval     int        `json:"interval"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an unreviewed card with default scheduling fields.
func New(id, deckID, front, back string, now time.Time) Card {
	return Card{
		ID:          id,
		DeckID:      deckID,
		Front:       front,
		Back:        back,
		Repetitions: 0,
		EaseFactor:  DefaultEaseFactor,
		Interval:    DefaultInterval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Reviewed reports whether the card has ever been rated.
func (c Card) Reviewed() bool {
	return c.LastReviewed != nil
}

// Patch is a partial update. Nil fields are left untouched by Apply.
type Patch struct {
	Front        *string    `json:"front,omitempty"`
	Back         *string    `json:"back,omitempty"`
	Favorited    *bool      `json:"favorited,omitempty"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	Repetitions  *int       `json:"repetitions,omitempty"`
	EaseFactor   *float64   `json:"ease_factor,omitempty"`
	Interval     *int       `json:"interval,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply merges p over c field by field and returns the result. c is not
// modified.
func (c Card) Apply(p Patch) Card {
	if p.Front != nil {
		c.Front = *p.Front
	}
	if p.Back != nil {
		c.Back = *p.Back
	}
	if p.Favorited != nil {
		c.Favorited = *p.Favorited
	}
	if p.LastReviewed != nil {
		t := *p.LastReviewed
		c.LastReviewed = &t
	}
	if p.Repetitions != nil {
		c.Repetitions = *p.Repetitions
	}
	if p.EaseFactor != nil {
		c.EaseFactor = *p.EaseFactor
	}
	if p.Interval != nil {
		c.Interval = *p.Interval
	}
	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
	return c
}

// FullPatch returns a patch that carries every mutable field of c, so that
// applying it to any card with the same id reproduces c's content and
// scheduling state.
func FullPatch(c Card) Patch {
	p := Patch{
		Front:       Ptr(c.Front),
		Back:        Ptr(c.Back),
		Favorited:   Ptr(c.Favorited),
		Repetitions: Ptr(c.Repetitions),
		EaseFactor:  Ptr(c.EaseFactor),
		Interval:    Ptr(c.Interval),
		UpdatedAt:   Ptr(c.UpdatedAt),
	}
	if c.LastReviewed != nil {
		p.LastReviewed = Ptr(*c.LastReviewed)
	}
	return p
}

// SchedulePatch returns the patch that persists the scheduling fields of a
// freshly reviewed card.
func SchedulePatch(c Card) Patch {
	p := Patch{
		Repetitions: Ptr(c.Repetitions),
		EaseFactor:  Ptr(c.EaseFactor),
		Interval:    Ptr(c.Interval),
	}
	if c.LastReviewed != nil {
		p.LastReviewed = Ptr(*c.LastReviewed)
	}
	return p
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Deck groups cards. Only the name is searchable by the practice engine.
type Deck struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
