// Package search provides a case-insensitive prefix index.
package search

import (
	"unicode"
	"unicode/utf8"
)

type trieNode[T any] struct {
	children map[rune]*trieNode[T]
	terminal bool
	records  []T
}

func newTrieNode[T any]() *trieNode[T] {
	return &trieNode[T]{children: make(map[rune]*trieNode[T])}
}

// Trie maps lowercased keys to the records stored under them and answers
// "every record whose key starts with p". Several records may share a key.
// The trie has no removal; rebuild it when the source collection changes.
//
// A Trie is not safe for concurrent use.
type Trie[T any] struct {
	root  *trieNode[T]
	count int
}

// NewTrie returns an empty trie.
func NewTrie[T any]() *Trie[T] {
	return &Trie[T]{root: newTrieNode[T]()}
}

// Insert stores record under the lowercased key.
func (t *Trie[T]) Insert(key string, record T) {
	curr := t.root
	for _, ch := range edges(key) {
		next, ok := curr.children[ch]
		if !ok {
			next = newTrieNode[T]()
			curr.children[ch] = next
		}
		curr = next
	}
	curr.terminal = true
	curr.records = append(curr.records, record)
	t.count++
}

// SearchPrefix returns every record whose key starts with the lowercased
// prefix: the records at the matched node first, then its descendants
// depth-first. The order among siblings is unspecified. An empty prefix
// matches everything; a prefix that leaves the trie matches nothing.
func (t *Trie[T]) SearchPrefix(prefix string) []T {
	curr := t.root
	for _, ch := range edges(prefix) {
		next, ok := curr.children[ch]
		if !ok {
			return nil
		}
		curr = next
	}
	var out []T
	collect(curr, &out)
	return out
}

// Len returns the number of stored records.
func (t *Trie[T]) Len() int {
	return t.count
}

// edges lowercases s rune by rune. Bytes that are not valid UTF-8 get their
// own edge each, outside the Unicode range, so they never collide with each
// other or with a literal U+FFFD.
func edges(s string) []rune {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, utf8.MaxRune+1+rune(s[i]))
		} else {
			out = append(out, unicode.ToLower(r))
		}
		i += size
	}
	return out
}

func collect[T any](n *trieNode[T], out *[]T) {
	if n.terminal {
		*out = append(*out, n.records...)
	}
	for _, child := range n.children {
		collect(child, out)
	}
}
