// Package queue implements the practice queue: a rotatable, mutable working
// set of cards.
//
// The queue is a circular doubly linked list with two permanent sentinel
// nodes. Nodes live in an arena and refer to their neighbours by slot index;
// freed slots are recycled through a free list and carry a generation
// counter so that a Handle to a removed node goes stale instead of silently
// pointing at whatever card reuses the slot. An id→slot index is kept in
// lock-step with the links by every mutating method.
//
// A Queue is not safe for concurrent use.
package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
)

// Sentinel slots. head.next is the front, tail.prev is the back.
const (
	head = 0
	tail = 1
)

// ErrCorrupt is returned by Validate when the links and the id index disagree.
var ErrCorrupt = errors.New("practice queue corrupt")

// Handle addresses one node of a Queue. The zero Handle is never valid.
type Handle struct {
	slot int
	gen  uint32
}

type node struct {
	card flashcard.Card
	prev int
	next int
	gen  uint32
	live bool
}

// Queue is a circular working set of cards.
type Queue struct {
	nodes []node
	free  []int
	index map[string]int
	size  int
	rng   *rand.Rand
}

// Option configures a Queue.
type Option func(*Queue)

// WithRand sets the randomness source used by Shuffle. A nil source falls
// back to the process-wide generator.
func WithRand(r *rand.Rand) Option {
	return func(q *Queue) {
		q.rng = r
	}
}

// New returns an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		nodes: make([]node, 2, 16),
		index: make(map[string]int),
	}
	q.nodes[head] = node{prev: tail, next: tail}
	q.nodes[tail] = node{prev: head, next: head}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// FromCards builds a queue holding cards in order.
func FromCards(cards []flashcard.Card, opts ...Option) *Queue {
	q := New(opts...)
	for _, c := range cards {
		q.Insert(c)
	}
	return q
}

// Len returns the number of cards in the queue.
func (q *Queue) Len() int {
	return q.size
}

// Insert appends card at the back. If a card with the same id is already
// queued, that node is dropped first so the queue never holds two nodes for
// one id.
func (q *Queue) Insert(card flashcard.Card) {
	if slot, ok := q.index[card.ID]; ok {
		q.remove(slot)
	}
	slot := q.alloc(card)
	q.linkBefore(slot, tail)
	q.index[card.ID] = slot
	q.size++
}

// RemoveFront detaches and returns the front card.
func (q *Queue) RemoveFront() (flashcard.Card, bool) {
	if q.size == 0 {
		return flashcard.Card{}, false
	}
	return q.remove(q.nodes[head].next), true
}

// RemoveBack detaches and returns the back card.
func (q *Queue) RemoveBack() (flashcard.Card, bool) {
	if q.size == 0 {
		return flashcard.Card{}, false
	}
	return q.remove(q.nodes[tail].prev), true
}

// MoveFrontToBack rotates forward: the front card becomes the back card.
func (q *Queue) MoveFrontToBack() bool {
	if q.size == 0 {
		return false
	}
	if q.size > 1 {
		slot := q.nodes[head].next
		q.unlink(slot)
		q.linkBefore(slot, tail)
	}
	return true
}

// MoveBackToFront rotates backward: the back card becomes the front card.
func (q *Queue) MoveBackToFront() bool {
	if q.size == 0 {
		return false
	}
	if q.size > 1 {
		slot := q.nodes[tail].prev
		q.unlink(slot)
		q.linkBefore(slot, q.nodes[head].next)
	}
	return true
}

// Front returns a handle to the front node.
func (q *Queue) Front() (Handle, bool) {
	if q.size == 0 {
		return Handle{}, false
	}
	return q.handle(q.nodes[head].next), true
}

// Back returns a handle to the back node.
func (q *Queue) Back() (Handle, bool) {
	if q.size == 0 {
		return Handle{}, false
	}
	return q.handle(q.nodes[tail].prev), true
}

// Lookup returns a handle to the node holding id.
func (q *Queue) Lookup(id string) (Handle, bool) {
	slot, ok := q.index[id]
	if !ok {
		return Handle{}, false
	}
	return q.handle(slot), true
}

// Card returns the card held by h. It reports false for a stale handle.
func (q *Queue) Card(h Handle) (flashcard.Card, bool) {
	if !q.valid(h) {
		return flashcard.Card{}, false
	}
	return q.nodes[h.slot].card, true
}

// Edit merges patch into the card with the given id and returns the result.
// The node keeps its position.
func (q *Queue) Edit(id string, patch flashcard.Patch) (flashcard.Card, bool) {
	slot, ok := q.index[id]
	if !ok {
		return flashcard.Card{}, false
	}
	q.nodes[slot].card = q.nodes[slot].card.Apply(patch)
	return q.nodes[slot].card, true
}

// Delete removes the card with the given id and returns it.
func (q *Queue) Delete(id string) (flashcard.Card, bool) {
	slot, ok := q.index[id]
	if !ok {
		return flashcard.Card{}, false
	}
	return q.remove(slot), true
}

// Shuffle reorders the queue uniformly at random (Fisher–Yates). The first
// card of the new order becomes the front.
func (q *Queue) Shuffle() {
	if q.size < 2 {
		return
	}
	slots := q.slots()
	for i := len(slots) - 1; i > 0; i-- {
		j := q.intN(i + 1)
		slots[i], slots[j] = slots[j], slots[i]
	}
	prev := head
	for _, slot := range slots {
		q.nodes[prev].next = slot
		q.nodes[slot].prev = prev
		prev = slot
	}
	q.nodes[prev].next = tail
	q.nodes[tail].prev = prev
}

// Clone returns an independent queue with copies of every card in the same
// order. The clone shares the randomness source.
func (q *Queue) Clone() *Queue {
	c := New(WithRand(q.rng))
	for slot := q.nodes[head].next; slot != tail; slot = q.nodes[slot].next {
		c.Insert(copyCard(q.nodes[slot].card))
	}
	return c
}

// Position returns the 1-based position of h counted from the front. A handle
// that is not in the queue reports 1.
func (q *Queue) Position(h Handle) int {
	if !q.valid(h) {
		return 1
	}
	i := 1
	for slot := q.nodes[head].next; slot != tail; slot = q.nodes[slot].next {
		if slot == h.slot {
			return i
		}
		i++
	}
	return 1
}

// Cards returns the queued cards from front to back.
func (q *Queue) Cards() []flashcard.Card {
	out := make([]flashcard.Card, 0, q.size)
	for slot := q.nodes[head].next; slot != tail; slot = q.nodes[slot].next {
		out = append(out, q.nodes[slot].card)
	}
	return out
}

// Validate walks the list in both directions and checks it against the id
// index.
func (q *Queue) Validate() error {
	if q.nodes[q.nodes[tail].prev].next != tail {
		return fmt.Errorf("%w: tail.prev.next does not point at tail", ErrCorrupt)
	}
	if q.nodes[q.nodes[head].next].prev != head {
		return fmt.Errorf("%w: head.next.prev does not point at head", ErrCorrupt)
	}
	if len(q.index) != q.size {
		return fmt.Errorf("%w: index holds %d ids, size is %d", ErrCorrupt, len(q.index), q.size)
	}

	count := 0
	prev := head
	for slot := q.nodes[head].next; slot != tail; slot = q.nodes[slot].next {
		count++
		if count > q.size {
			return fmt.Errorf("%w: forward walk exceeds size %d", ErrCorrupt, q.size)
		}
		n := q.nodes[slot]
		if !n.live {
			return fmt.Errorf("%w: freed slot %d is linked", ErrCorrupt, slot)
		}
		if n.prev != prev {
			return fmt.Errorf("%w: slot %d prev link is %d, want %d", ErrCorrupt, slot, n.prev, prev)
		}
		if q.index[n.card.ID] != slot {
			return fmt.Errorf("%w: index for %q does not point at slot %d", ErrCorrupt, n.card.ID, slot)
		}
		prev = slot
	}
	if count != q.size {
		return fmt.Errorf("%w: forward walk visited %d nodes, size is %d", ErrCorrupt, count, q.size)
	}

	count = 0
	for slot := q.nodes[tail].prev; slot != head; slot = q.nodes[slot].prev {
		count++
		if count > q.size {
			return fmt.Errorf("%w: backward walk exceeds size %d", ErrCorrupt, q.size)
		}
	}
	if count != q.size {
		return fmt.Errorf("%w: backward walk visited %d nodes, size is %d", ErrCorrupt, count, q.size)
	}
	return nil
}

func (q *Queue) alloc(card flashcard.Card) int {
	if n := len(q.free); n > 0 {
		slot := q.free[n-1]
		q.free = q.free[:n-1]
		q.nodes[slot].card = card
		q.nodes[slot].live = true
		return slot
	}
	q.nodes = append(q.nodes, node{card: card, live: true})
	return len(q.nodes) - 1
}

// remove unlinks slot, drops its index entry and frees it.
func (q *Queue) remove(slot int) flashcard.Card {
	card := q.nodes[slot].card
	q.unlink(slot)
	if q.index[card.ID] == slot {
		delete(q.index, card.ID)
	}
	q.nodes[slot] = node{gen: q.nodes[slot].gen + 1}
	q.free = append(q.free, slot)
	q.size--
	return card
}

func (q *Queue) linkBefore(slot, at int) {
	prev := q.nodes[at].prev
	q.nodes[slot].prev = prev
	q.nodes[slot].next = at
	q.nodes[prev].next = slot
	q.nodes[at].prev = slot
}

func (q *Queue) unlink(slot int) {
	prev, next := q.nodes[slot].prev, q.nodes[slot].next
	q.nodes[prev].next = next
	q.nodes[next].prev = prev
}

func (q *Queue) slots() []int {
	out := make([]int, 0, q.size)
	for slot := q.nodes[head].next; slot != tail; slot = q.nodes[slot].next {
		out = append(out, slot)
	}
	return out
}

func (q *Queue) handle(slot int) Handle {
	return Handle{slot: slot, gen: q.nodes[slot].gen}
}

func (q *Queue) valid(h Handle) bool {
	return h.slot > tail && h.slot < len(q.nodes) && q.nodes[h.slot].live && q.nodes[h.slot].gen == h.gen
}

func (q *Queue) intN(n int) int {
	if q.rng != nil {
		return q.rng.IntN(n)
	}
	return rand.IntN(n)
}

func copyCard(c flashcard.Card) flashcard.Card {
	if c.LastReviewed != nil {
		t := *c.LastReviewed
		c.LastReviewed = &t
	}
	return c
}
