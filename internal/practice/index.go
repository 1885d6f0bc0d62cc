package practice

import (
	"strings"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/danieldreier/mcp-practice/internal/search"
)

// CardIndex answers prefix searches over the front and back text of a card
// collection.
type CardIndex struct {
	front *search.Trie[flashcard.Card]
	back  *search.Trie[flashcard.Card]
}

// NewCardIndex indexes cards.
func NewCardIndex(cards []flashcard.Card) *CardIndex {
	ix := &CardIndex{
		front: search.NewTrie[flashcard.Card](),
		back:  search.NewTrie[flashcard.Card](),
	}
	for _, c := range cards {
		ix.front.Insert(c.Front, c)
		ix.back.Insert(c.Back, c)
	}
	return ix
}

// Search returns the cards whose front or back starts with prefix. Front
// matches come first; a card matching on both sides appears once.
func (ix *CardIndex) Search(prefix string) []flashcard.Card {
	seen := make(map[string]bool)
	var out []flashcard.Card
	for _, trie := range []*search.Trie[flashcard.Card]{ix.front, ix.back} {
		for _, c := range trie.SearchPrefix(prefix) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

// DeckIndex answers prefix searches over deck names.
type DeckIndex struct {
	names *search.Trie[flashcard.Deck]
}

// NewDeckIndex indexes decks by name.
func NewDeckIndex(decks []flashcard.Deck) *DeckIndex {
	ix := &DeckIndex{names: search.NewTrie[flashcard.Deck]()}
	for _, d := range decks {
		ix.names.Insert(d.Name, d)
	}
	return ix
}

// Search returns the decks whose name starts with query, ignoring case and
// surrounding whitespace in the query.
func (ix *DeckIndex) Search(query string) []flashcard.Deck {
	return ix.names.SearchPrefix(strings.TrimSpace(query))
}
