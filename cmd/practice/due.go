package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/sm2"
	"github.com/danieldreier/mcp-practice/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "due [deck]",
		Short: "Show cards due for review, optionally for one deck given by ID or name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					a.logger.Warn("failed to close storage", zap.Error(err))
				}
			}()

			deck := ""
			if len(args) == 1 {
				deck = args[0]
			}
			return printDue(cmd.Context(), cmd.OutOrStdout(), store, deck, time.Now())
		},
	}
}

// printDue writes the cards due at now as a table. deck narrows the listing
// to one deck, matched by ID or case-insensitive name.
func printDue(ctx context.Context, out io.Writer, store storage.Storage, deck string, now time.Time) error {
	decks, err := store.ListDecks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list decks: %w", err)
	}
	names := make(map[string]string, len(decks))
	for _, d := range decks {
		names[d.ID] = d.Name
	}

	deckID := ""
	if deck != "" {
		d, ok := findDeck(decks, deck)
		if !ok {
			return fmt.Errorf("%w: %s", storage.ErrDeckNotFound, deck)
		}
		deckID = d.ID
	}

	cards, err := store.ListCards(ctx, deckID)
	if err != nil {
		return fmt.Errorf("failed to list cards: %w", err)
	}
	due := sm2.DueCards(cards, now)
	if len(due) == 0 {
		fmt.Fprintln(out, "No cards due. Nothing to practice right now.")
		return nil
	}

	fmt.Fprintf(out, "%d cards due for review:\n\n", len(due))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDeck\tFront\tReps\tEase\tNext Review")
	fmt.Fprintln(w, "--\t----\t-----\t----\t----\t-----------")
	for _, c := range due {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\n",
			c.ID, names[c.DeckID], firstLine(c.Front), c.Repetitions, c.EaseFactor, nextReviewLabel(c))
	}
	return w.Flush()
}

func findDeck(decks []flashcard.Deck, query string) (flashcard.Deck, bool) {
	for _, d := range decks {
		if d.ID == query {
			return d, true
		}
	}
	for _, d := range decks {
		if strings.EqualFold(d.Name, query) {
			return d, true
		}
	}
	return flashcard.Deck{}, false
}

func nextReviewLabel(c flashcard.Card) string {
	next, ok := sm2.NextReview(c)
	if !ok {
		return "new"
	}
	return next.Format("2006-01-02")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
