package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const practiceServerInfo = `
This server runs a flashcard practice session over one deck at a time.
Follow this workflow when tutoring with it:

1. OPEN A DECK:
   - Use list_decks or search_decks to find the deck
   - Call open_deck with a mode: "all" practices every card, "favorites"
     only favorited cards, "spaced" only cards that are due for review

2. PRESENT THE CARD:
   - Show only the front of the current card
   - Let the student attempt an answer before calling flip_card

3. REVEAL AND RATE:
   - Call flip_card to reveal the back
   - Rate the recall with a quality from 0 to 5:
     * 0: complete blackout
     * 1: incorrect, but the answer felt familiar
     * 2: incorrect, but the answer seemed easy once shown
     * 3: correct after serious difficulty
     * 4: correct after some hesitation
     * 5: perfect recall
   - Ratings below 3 restart the card's review schedule

4. MOVE ON:
   - Rating does not advance the session; call next_card afterwards
   - In spaced mode a card that is no longer due leaves the session on its own

5. FINISH:
   - When a tool reports "No cards to practice", congratulate the student
   - Offer to add cards with create_card for the concepts they missed
`

// registerTools adds every practice tool to the server.
func registerTools(s *server.MCPServer, h *handlers) {
	modeDescription := mcp.Description("Practice mode: all, favorites or spaced")

	s.AddTool(mcp.NewTool("open_deck",
		mcp.WithDescription("Open a deck and start a practice session. Shows the first card front side up."),
		mcp.WithString("deck_id",
			mcp.Required(),
			mcp.Description("The ID of the deck to practice"),
		),
		mcp.WithString("mode", modeDescription),
	), h.handleOpenDeck)

	s.AddTool(mcp.NewTool("current_card",
		mcp.WithDescription("Show the card at the front of the session"),
	), h.handleCurrentCard)

	s.AddTool(mcp.NewTool("next_card",
		mcp.WithDescription("Advance to the next card. Wraps around at the end of the session."),
	), h.handleNextCard)

	s.AddTool(mcp.NewTool("previous_card",
		mcp.WithDescription("Go back to the previous card. Wraps around at the start of the session."),
	), h.handlePreviousCard)

	s.AddTool(mcp.NewTool("flip_card",
		mcp.WithDescription("Turn the current card over. Only call this after the student has answered."),
	), h.handleFlipCard)

	s.AddTool(mcp.NewTool("shuffle",
		mcp.WithDescription("Shuffle the cards of the session and start again from the first one"),
	), h.handleShuffle)

	s.AddTool(mcp.NewTool("reset",
		mcp.WithDescription("Restart the session of the open deck in another mode"),
		mcp.WithString("mode", mcp.Required(), modeDescription),
	), h.handleReset)

	s.AddTool(mcp.NewTool("refresh",
		mcp.WithDescription("Reload the open deck from storage and restart the session"),
	), h.handleRefresh)

	s.AddTool(mcp.NewTool("rate",
		mcp.WithDescription(
			"Rate how well the student recalled the current card. "+
				"Quality is 0 to 5; ratings of 3 and above count as correct. "+
				"The session stays on the rated card unless it left the session.",
		),
		mcp.WithNumber("quality",
			mcp.Required(),
			mcp.Description("Recall quality from 0 (blackout) to 5 (perfect)"),
		),
	), h.handleRate)

	s.AddTool(mcp.NewTool("toggle_favorite",
		mcp.WithDescription("Mark or unmark the current card as a favorite"),
	), h.handleToggleFavorite)

	s.AddTool(mcp.NewTool("create_card",
		mcp.WithDescription(
			"Add a card to the open deck. Propose the card to the student first "+
				"and only call this tool once they approve it.",
		),
		mcp.WithString("front",
			mcp.Required(),
			mcp.Description("The front text of the card"),
		),
		mcp.WithString("back",
			mcp.Required(),
			mcp.Description("The back text of the card"),
		),
	), h.handleCreateCard)

	s.AddTool(mcp.NewTool("update_card",
		mcp.WithDescription("Edit an existing card"),
		mcp.WithString("card_id",
			mcp.Required(),
			mcp.Description("The ID of the card to update"),
		),
		mcp.WithString("front",
			mcp.Description("The new front text of the card"),
		),
		mcp.WithString("back",
			mcp.Description("The new back text of the card"),
		),
		mcp.WithBoolean("favorited",
			mcp.Description("Whether the card is a favorite"),
		),
	), h.handleUpdateCard)

	s.AddTool(mcp.NewTool("delete_card",
		mcp.WithDescription("Delete a flashcard"),
		mcp.WithString("card_id",
			mcp.Required(),
			mcp.Description("The ID of the card to delete"),
		),
	), h.handleDeleteCard)

	s.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Find cards of the open deck whose front or back starts with a prefix. Case-insensitive."),
		mcp.WithString("prefix",
			mcp.Required(),
			mcp.Description("The prefix to search for"),
		),
	), h.handleSearchCards)

	s.AddTool(mcp.NewTool("create_deck",
		mcp.WithDescription("Create a new empty deck"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The name of the deck"),
		),
	), h.handleCreateDeck)

	s.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List all decks"),
	), h.handleListDecks)

	s.AddTool(mcp.NewTool("search_decks",
		mcp.WithDescription("Find decks whose name starts with a query. Case-insensitive."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The name prefix to search for"),
		),
	), h.handleSearchDecks)

	s.AddTool(mcp.NewTool("session_stats",
		mcp.WithDescription("Show counts for the current practice session"),
	), h.handleSessionStats)

	s.AddTool(mcp.NewTool("card_history",
		mcp.WithDescription("List the reviews recorded for a card, oldest first"),
		mcp.WithString("card_id",
			mcp.Required(),
			mcp.Description("The ID of the card"),
		),
	), h.handleCardHistory)

	s.AddResource(mcp.NewResource(
		"practice://session",
		"Practice session",
		mcp.WithResourceDescription("Counts for the current practice session"),
		mcp.WithMIMEType("application/json"),
	), h.handleSessionResource)
}

// handleSessionResource serves the session stats as a resource.
func (h *handlers) handleSessionResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.MarshalIndent(h.ctrl.Stats(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error marshaling session stats: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "practice://session",
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
