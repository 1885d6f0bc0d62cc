package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/practice"
	"github.com/danieldreier/mcp-practice/internal/sm2"
	"github.com/danieldreier/mcp-practice/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// handlers serves the MCP tools of one practice session.
type handlers struct {
	ctrl        *practice.Controller
	store       storage.Storage
	defaultMode practice.Mode
	logger      *zap.Logger
}

func newHandlers(ctrl *practice.Controller, store storage.Storage, defaultMode practice.Mode, logger *zap.Logger) *handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handlers{ctrl: ctrl, store: store, defaultMode: defaultMode, logger: logger}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	s, ok := request.Params.Arguments[name].(string)
	return s, ok
}

func boolArg(request mcp.CallToolRequest, name string) (bool, bool) {
	b, ok := request.Params.Arguments[name].(bool)
	return b, ok
}

// numberArg accepts JSON numbers, which arrive as float64.
func numberArg(request mcp.CallToolRequest, name string) (float64, bool) {
	switch n := request.Params.Arguments[name].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// viewResult renders a navigation outcome. An empty queue is a normal
// result, not a tool error.
func (h *handlers) viewResult(v practice.View, err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, practice.ErrNoCards) {
		return jsonResult(emptyViewResponse(h.ctrl.Stats()))
	}
	if err != nil {
		h.logger.Error("practice operation failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(viewResponse(v, h.ctrl.Stats()))
}

func (h *handlers) handleOpenDeck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deckID, ok := stringArg(request, "deck_id")
	if !ok || deckID == "" {
		return mcp.NewToolResultError("Missing required parameter: deck_id"), nil
	}
	mode := h.defaultMode
	if s, ok := stringArg(request, "mode"); ok && s != "" {
		m, err := practice.ParseMode(s)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode = m
	}
	return h.viewResult(h.ctrl.Open(ctx, deckID, mode))
}

func (h *handlers) handleCurrentCard(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.viewResult(h.ctrl.Current())
}

func (h *handlers) handleNextCard(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.viewResult(h.ctrl.Next())
}

func (h *handlers) handlePreviousCard(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.viewResult(h.ctrl.Previous())
}

func (h *handlers) handleFlipCard(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.viewResult(h.ctrl.Flip())
}

func (h *handlers) handleShuffle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.viewResult(h.ctrl.Shuffle())
}

func (h *handlers) handleRefresh(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.viewResult(h.ctrl.Refresh(ctx))
}

func (h *handlers) handleReset(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := stringArg(request, "mode")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: mode"), nil
	}
	mode, err := practice.ParseMode(s)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.viewResult(h.ctrl.Reset(mode))
}

func (h *handlers) handleRate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, ok := numberArg(request, "quality")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: quality"), nil
	}
	if q != math.Trunc(q) {
		return mcp.NewToolResultError("Quality must be a whole number between 0 and 5"), nil
	}
	quality := sm2.Quality(q)
	if !quality.Valid() {
		return mcp.NewToolResultError("Quality must be between 0 and 5"), nil
	}

	card, err := h.ctrl.Rate(ctx, quality)
	if errors.Is(err, practice.ErrNoCards) {
		return jsonResult(emptyViewResponse(h.ctrl.Stats()))
	}
	if err != nil {
		h.logger.Error("rate failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Error rating card: %v", err)), nil
	}

	resp := RateResponse{Card: card}
	resp.NextReview, _ = sm2.NextReview(card)
	if v, err := h.ctrl.Current(); err == nil {
		resp.Next = viewResponse(v, h.ctrl.Stats())
	} else {
		resp.Next = emptyViewResponse(h.ctrl.Stats())
	}
	return jsonResult(resp)
}

func (h *handlers) handleToggleFavorite(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	card, err := h.ctrl.ToggleFavorite(ctx)
	if errors.Is(err, practice.ErrNoCards) {
		return jsonResult(emptyViewResponse(h.ctrl.Stats()))
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error updating card: %v", err)), nil
	}
	return jsonResult(CardResponse{Card: card})
}

func (h *handlers) handleCreateCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	front, ok := stringArg(request, "front")
	if !ok || front == "" {
		return mcp.NewToolResultError("Missing required parameter: front"), nil
	}
	back, ok := stringArg(request, "back")
	if !ok || back == "" {
		return mcp.NewToolResultError("Missing required parameter: back"), nil
	}
	card, err := h.ctrl.CreateCard(ctx, front, back)
	if errors.Is(err, practice.ErrNoDeck) {
		return mcp.NewToolResultError("Open a deck before creating cards"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error creating card: %v", err)), nil
	}
	return jsonResult(CardResponse{Card: card})
}

func (h *handlers) handleUpdateCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardID, ok := stringArg(request, "card_id")
	if !ok || cardID == "" {
		return mcp.NewToolResultError("Missing required parameter: card_id"), nil
	}
	var patch flashcard.Patch
	if s, ok := stringArg(request, "front"); ok {
		patch.Front = &s
	}
	if s, ok := stringArg(request, "back"); ok {
		patch.Back = &s
	}
	if b, ok := boolArg(request, "favorited"); ok {
		patch.Favorited = &b
	}
	if patch.Empty() {
		return mcp.NewToolResultError("Nothing to update: pass front, back or favorited"), nil
	}

	card, err := h.ctrl.EditCard(ctx, cardID, patch)
	if errors.Is(err, storage.ErrCardNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Card not found: %s", cardID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error updating card: %v", err)), nil
	}
	return jsonResult(CardResponse{Card: card})
}

func (h *handlers) handleDeleteCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardID, ok := stringArg(request, "card_id")
	if !ok || cardID == "" {
		return mcp.NewToolResultError("Missing required parameter: card_id"), nil
	}
	err := h.ctrl.DeleteCard(ctx, cardID)
	if errors.Is(err, storage.ErrCardNotFound) {
		return jsonResult(DeleteCardResponse{Success: false, Message: fmt.Sprintf("Card not found: %s", cardID)})
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error deleting card: %v", err)), nil
	}
	return jsonResult(DeleteCardResponse{Success: true, Message: "Card deleted"})
}

func (h *handlers) handleSearchCards(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix, _ := stringArg(request, "prefix")
	cards := h.ctrl.Search(prefix)
	if cards == nil {
		cards = []flashcard.Card{}
	}
	return jsonResult(SearchCardsResponse{Prefix: prefix, Cards: cards})
}

func (h *handlers) handleCreateDeck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, ok := stringArg(request, "name")
	if !ok || name == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}
	deck, err := h.store.CreateDeck(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error creating deck: %v", err)), nil
	}
	if err := h.store.Save(); err != nil {
		h.logger.Warn("failed to save after creating deck", zap.String("deck_id", deck.ID), zap.Error(err))
	}
	return jsonResult(DeckResponse{Deck: deck})
}

func (h *handlers) handleListDecks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decks, err := h.store.ListDecks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing decks: %v", err)), nil
	}
	return jsonResult(DecksResponse{Decks: decks})
}

func (h *handlers) handleSearchDecks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, _ := stringArg(request, "query")
	decks, err := h.ctrl.SearchDecks(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error searching decks: %v", err)), nil
	}
	if decks == nil {
		decks = []flashcard.Deck{}
	}
	return jsonResult(DecksResponse{Decks: decks})
}

func (h *handlers) handleSessionStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.ctrl.Stats())
}

func (h *handlers) handleCardHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cardID, ok := stringArg(request, "card_id")
	if !ok || cardID == "" {
		return mcp.NewToolResultError("Missing required parameter: card_id"), nil
	}
	reviews, err := h.store.GetCardReviews(ctx, cardID)
	if errors.Is(err, storage.ErrCardNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Card not found: %s", cardID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error loading history: %v", err)), nil
	}
	if reviews == nil {
		reviews = []storage.Review{}
	}
	return jsonResult(HistoryResponse{CardID: cardID, Reviews: reviews})
}
