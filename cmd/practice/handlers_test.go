package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/practice"
	"github.com/danieldreier/mcp-practice/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	h     *handlers
	store *storage.FileStorage
	deck  flashcard.Deck
	cards []flashcard.Card
}

// setupHandlers returns handlers over a fresh file store holding one deck of
// three cards.
func setupHandlers(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store := storage.NewFileStorage(filepath.Join(t.TempDir(), "practice.json"), storage.WithLogger(logger))
	require.NoError(t, store.Load())

	deck, err := store.CreateDeck(ctx, "Biology")
	require.NoError(t, err)
	f := &fixture{store: store, deck: deck}
	for _, fb := range [][2]string{
		{"Mitochondria", "Powerhouse of the cell"},
		{"Chlorophyll", "Green pigment"},
		{"Osmosis", "Diffusion of water"},
	} {
		_, err := store.CreateCard(ctx, deck.ID, fb[0], fb[1])
		require.NoError(t, err)
	}
	// Session order is storage order.
	f.cards, err = store.ListCards(ctx, deck.ID)
	require.NoError(t, err)

	ctrl := practice.NewController(store, practice.WithLogger(logger))
	f.h = newHandlers(ctrl, store, practice.ModeAll, logger)
	return f
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err, "handler %s returned a protocol error", name)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	textContent, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return textContent.Text
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, "unexpected tool error: %s", resultText(t, result))
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &v))
	return v
}

func (f *fixture) open(t *testing.T, mode string) ViewResponse {
	t.Helper()
	args := map[string]interface{}{"deck_id": f.deck.ID}
	if mode != "" {
		args["mode"] = mode
	}
	return decode[ViewResponse](t, call(t, f.h.handleOpenDeck, "open_deck", args))
}

func TestOpenDeck(t *testing.T) {
	f := setupHandlers(t)

	t.Run("missing deck id", func(t *testing.T) {
		result := call(t, f.h.handleOpenDeck, "open_deck", map[string]interface{}{})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "deck_id")
	})

	t.Run("unknown mode", func(t *testing.T) {
		result := call(t, f.h.handleOpenDeck, "open_deck", map[string]interface{}{
			"deck_id": f.deck.ID,
			"mode":    "weekly",
		})
		assert.True(t, result.IsError)
	})

	t.Run("default mode hides the back", func(t *testing.T) {
		view := f.open(t, "")
		require.NotNil(t, view.Card)
		assert.Equal(t, practice.ModeAll, view.Mode)
		assert.Equal(t, 1, view.Position)
		assert.Equal(t, 3, view.Total)
		assert.Equal(t, f.cards[0].ID, view.Card.ID)
		assert.Equal(t, f.cards[0].Front, view.Card.Front)
		assert.Empty(t, view.Card.Back)
		assert.False(t, view.Flipped)
		assert.Equal(t, 3, view.Stats.Queued)
	})

	t.Run("favorites mode of a deck without favorites", func(t *testing.T) {
		view := f.open(t, "favorites")
		assert.Nil(t, view.Card)
		assert.Equal(t, 0, view.Total)
		assert.Equal(t, "No cards to practice", view.Message)
		assert.Equal(t, practice.ModeFavorites, view.Mode)
	})
}

func TestNavigationTools(t *testing.T) {
	f := setupHandlers(t)
	f.open(t, "all")

	flipped := decode[ViewResponse](t, call(t, f.h.handleFlipCard, "flip_card", nil))
	assert.True(t, flipped.Flipped)
	assert.Equal(t, f.cards[0].Back, flipped.Card.Back)

	next := decode[ViewResponse](t, call(t, f.h.handleNextCard, "next_card", nil))
	assert.Equal(t, 2, next.Position)
	assert.Equal(t, f.cards[1].ID, next.Card.ID)
	assert.False(t, next.Flipped, "navigation turns the card front side up")

	prev := decode[ViewResponse](t, call(t, f.h.handlePreviousCard, "previous_card", nil))
	assert.Equal(t, 1, prev.Position)
	assert.Equal(t, f.cards[0].ID, prev.Card.ID)

	wrapped := decode[ViewResponse](t, call(t, f.h.handlePreviousCard, "previous_card", nil))
	assert.Equal(t, 3, wrapped.Position)
	assert.Equal(t, f.cards[2].ID, wrapped.Card.ID)

	current := decode[ViewResponse](t, call(t, f.h.handleCurrentCard, "current_card", nil))
	assert.Equal(t, wrapped.Card.ID, current.Card.ID)

	shuffled := decode[ViewResponse](t, call(t, f.h.handleShuffle, "shuffle", nil))
	assert.Equal(t, 1, shuffled.Position)
	assert.Equal(t, 3, shuffled.Total)

	refreshed := decode[ViewResponse](t, call(t, f.h.handleRefresh, "refresh", nil))
	assert.Equal(t, 1, refreshed.Position)
	assert.Equal(t, 3, refreshed.Total)
}

func TestNavigationWithoutDeck(t *testing.T) {
	f := setupHandlers(t)
	view := decode[ViewResponse](t, call(t, f.h.handleNextCard, "next_card", nil))
	assert.Nil(t, view.Card)
	assert.Equal(t, "No cards to practice", view.Message)
}

func TestResetTool(t *testing.T) {
	f := setupHandlers(t)
	f.open(t, "all")

	result := call(t, f.h.handleReset, "reset", map[string]interface{}{})
	assert.True(t, result.IsError)

	result = call(t, f.h.handleReset, "reset", map[string]interface{}{"mode": "nope"})
	assert.True(t, result.IsError)

	view := decode[ViewResponse](t, call(t, f.h.handleReset, "reset", map[string]interface{}{"mode": "spaced"}))
	assert.Equal(t, practice.ModeSpaced, view.Mode)
	assert.Equal(t, 3, view.Total, "unreviewed cards are due")
}

func TestRateTool(t *testing.T) {
	t.Run("rejects bad quality", func(t *testing.T) {
		f := setupHandlers(t)
		f.open(t, "all")
		for _, args := range []map[string]interface{}{
			{},
			{"quality": "four"},
			{"quality": float64(6)},
			{"quality": float64(-1)},
			{"quality": 2.5},
		} {
			result := call(t, f.h.handleRate, "rate", args)
			assert.True(t, result.IsError, "args %v", args)
		}
	})

	t.Run("reschedules and records history", func(t *testing.T) {
		f := setupHandlers(t)
		f.open(t, "all")

		resp := decode[RateResponse](t, call(t, f.h.handleRate, "rate", map[string]interface{}{"quality": float64(4)}))
		assert.Equal(t, f.cards[0].ID, resp.Card.ID)
		assert.Equal(t, 1, resp.Card.Repetitions)
		assert.Equal(t, 1, resp.Card.Interval)
		assert.InDelta(t, 2.5, resp.Card.EaseFactor, 1e-9)
		require.NotNil(t, resp.Card.LastReviewed)
		assert.Equal(t, resp.Card.LastReviewed.AddDate(0, 0, 1).Unix(), resp.NextReview.Unix())

		require.NotNil(t, resp.Next.Card)
		assert.Equal(t, f.cards[0].ID, resp.Next.Card.ID, "rating keeps the session on the card in all mode")
		assert.Equal(t, 3, resp.Next.Total)

		stored, err := f.store.GetCard(context.Background(), f.cards[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Repetitions)

		history := decode[HistoryResponse](t, call(t, f.h.handleCardHistory, "card_history", map[string]interface{}{
			"card_id": f.cards[0].ID,
		}))
		require.Len(t, history.Reviews, 1)
		assert.Equal(t, 4, history.Reviews[0].Quality)
	})

	t.Run("passed card leaves spaced session", func(t *testing.T) {
		f := setupHandlers(t)
		f.open(t, "spaced")

		resp := decode[RateResponse](t, call(t, f.h.handleRate, "rate", map[string]interface{}{"quality": float64(5)}))
		assert.Equal(t, f.cards[0].ID, resp.Card.ID)
		require.NotNil(t, resp.Next.Card)
		assert.Equal(t, 2, resp.Next.Total)
		assert.NotEqual(t, f.cards[0].ID, resp.Next.Card.ID)
		assert.Equal(t, 2, resp.Next.Stats.Due)
	})

	t.Run("empty session", func(t *testing.T) {
		f := setupHandlers(t)
		view := decode[ViewResponse](t, call(t, f.h.handleRate, "rate", map[string]interface{}{"quality": float64(3)}))
		assert.Equal(t, "No cards to practice", view.Message)
	})
}

func TestToggleFavoriteTool(t *testing.T) {
	f := setupHandlers(t)
	f.open(t, "all")

	resp := decode[CardResponse](t, call(t, f.h.handleToggleFavorite, "toggle_favorite", nil))
	assert.True(t, resp.Card.Favorited)

	view := f.open(t, "favorites")
	require.NotNil(t, view.Card)
	assert.Equal(t, 1, view.Total)
	assert.True(t, view.Card.Favorited)

	resp = decode[CardResponse](t, call(t, f.h.handleToggleFavorite, "toggle_favorite", nil))
	assert.False(t, resp.Card.Favorited)

	stats := decode[practice.Stats](t, call(t, f.h.handleSessionStats, "session_stats", nil))
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, 0, stats.Favorited)
}

func TestCardEditingTools(t *testing.T) {
	f := setupHandlers(t)

	result := call(t, f.h.handleCreateCard, "create_card", map[string]interface{}{"front": "Ribosome", "back": "Makes proteins"})
	assert.True(t, result.IsError, "creating needs an open deck")

	f.open(t, "all")

	result = call(t, f.h.handleCreateCard, "create_card", map[string]interface{}{"front": "Ribosome"})
	assert.True(t, result.IsError)

	created := decode[CardResponse](t, call(t, f.h.handleCreateCard, "create_card", map[string]interface{}{
		"front": "Ribosome",
		"back":  "Makes proteins",
	}))
	assert.Equal(t, f.deck.ID, created.Card.DeckID)
	assert.Equal(t, "Ribosome", created.Card.Front)

	stats := decode[practice.Stats](t, call(t, f.h.handleSessionStats, "session_stats", nil))
	assert.Equal(t, 4, stats.Cards)
	assert.Equal(t, 4, stats.Queued)

	result = call(t, f.h.handleUpdateCard, "update_card", map[string]interface{}{"card_id": created.Card.ID})
	assert.True(t, result.IsError, "an update must change something")

	result = call(t, f.h.handleUpdateCard, "update_card", map[string]interface{}{"card_id": "missing", "front": "x"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Card not found")

	updated := decode[CardResponse](t, call(t, f.h.handleUpdateCard, "update_card", map[string]interface{}{
		"card_id":   created.Card.ID,
		"back":      "Builds proteins",
		"favorited": true,
	}))
	assert.Equal(t, "Ribosome", updated.Card.Front)
	assert.Equal(t, "Builds proteins", updated.Card.Back)
	assert.True(t, updated.Card.Favorited)

	search := decode[SearchCardsResponse](t, call(t, f.h.handleSearchCards, "search_cards", map[string]interface{}{"prefix": "build"}))
	require.Len(t, search.Cards, 1)
	assert.Equal(t, created.Card.ID, search.Cards[0].ID)

	deleted := decode[DeleteCardResponse](t, call(t, f.h.handleDeleteCard, "delete_card", map[string]interface{}{"card_id": created.Card.ID}))
	assert.True(t, deleted.Success)

	missing := decode[DeleteCardResponse](t, call(t, f.h.handleDeleteCard, "delete_card", map[string]interface{}{"card_id": created.Card.ID}))
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Message, "Card not found")

	search = decode[SearchCardsResponse](t, call(t, f.h.handleSearchCards, "search_cards", map[string]interface{}{"prefix": "ribo"}))
	assert.Empty(t, search.Cards)
	assert.NotNil(t, search.Cards, "an empty result encodes as []")
}

func TestSearchCardsMatchesFrontAndBack(t *testing.T) {
	f := setupHandlers(t)
	f.open(t, "all")

	search := decode[SearchCardsResponse](t, call(t, f.h.handleSearchCards, "search_cards", map[string]interface{}{"prefix": "OS"}))
	require.Len(t, search.Cards, 1)
	assert.Equal(t, "Osmosis", search.Cards[0].Front)

	search = decode[SearchCardsResponse](t, call(t, f.h.handleSearchCards, "search_cards", map[string]interface{}{"prefix": "green"}))
	require.Len(t, search.Cards, 1)
	assert.Equal(t, "Chlorophyll", search.Cards[0].Front)
}

func TestDeckTools(t *testing.T) {
	f := setupHandlers(t)

	result := call(t, f.h.handleCreateDeck, "create_deck", map[string]interface{}{})
	assert.True(t, result.IsError)

	created := decode[DeckResponse](t, call(t, f.h.handleCreateDeck, "create_deck", map[string]interface{}{"name": "Chemistry"}))
	assert.Equal(t, "Chemistry", created.Deck.Name)
	assert.NotEmpty(t, created.Deck.ID)

	decks := decode[DecksResponse](t, call(t, f.h.handleListDecks, "list_decks", nil))
	assert.Len(t, decks.Decks, 2)

	found := decode[DecksResponse](t, call(t, f.h.handleSearchDecks, "search_decks", map[string]interface{}{"query": "  chem"}))
	require.Len(t, found.Decks, 1)
	assert.Equal(t, created.Deck.ID, found.Decks[0].ID)

	none := decode[DecksResponse](t, call(t, f.h.handleSearchDecks, "search_decks", map[string]interface{}{"query": "physics"}))
	assert.Empty(t, none.Decks)
}

func TestCardHistoryUnknownCard(t *testing.T) {
	f := setupHandlers(t)
	result := call(t, f.h.handleCardHistory, "card_history", map[string]interface{}{"card_id": "missing"})
	assert.True(t, result.IsError)

	history := decode[HistoryResponse](t, call(t, f.h.handleCardHistory, "card_history", map[string]interface{}{
		"card_id": f.cards[1].ID,
	}))
	assert.Empty(t, history.Reviews)
}

func TestSessionResource(t *testing.T) {
	f := setupHandlers(t)
	f.open(t, "all")

	contents, err := f.h.handleSessionResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	textContent, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok, "resource content should be TextResourceContents")
	assert.Equal(t, "application/json", textContent.MIMEType)

	var stats practice.Stats
	require.NoError(t, json.Unmarshal([]byte(textContent.Text), &stats))
	assert.Equal(t, f.deck.ID, stats.DeckID)
	assert.Equal(t, 3, stats.Queued)
}

func TestPrintDue(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()
	f.open(t, "all")
	call(t, f.h.handleRate, "rate", map[string]interface{}{"quality": float64(5)})

	var out bytes.Buffer
	require.NoError(t, printDue(ctx, &out, f.store, "biology", time.Now()))
	text := out.String()
	assert.Contains(t, text, "2 cards due for review")
	assert.Contains(t, text, f.cards[1].Front)
	assert.Contains(t, text, f.cards[2].Front)
	assert.NotContains(t, text, f.cards[0].Front)

	out.Reset()
	require.NoError(t, printDue(ctx, &out, f.store, "", time.Now().AddDate(0, 0, 2)))
	assert.Contains(t, out.String(), "3 cards due for review")

	err := printDue(ctx, &out, f.store, "physics", time.Now())
	assert.ErrorIs(t, err, storage.ErrDeckNotFound)

	empty, err := f.store.CreateDeck(ctx, "Empty")
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, printDue(ctx, &out, f.store, empty.ID, time.Now()))
	assert.Contains(t, out.String(), "No cards due")
}

func TestCreateCardRejectsEmptySides(t *testing.T) {
	f := setupHandlers(t)
	f.open(t, "all")

	result := call(t, f.h.handleCreateCard, "create_card", map[string]interface{}{"front": "", "back": ""})
	assert.True(t, result.IsError)

	cards, err := f.store.ListCards(context.Background(), f.deck.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 3)
}
