package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Update is one (side, price, quantity) triple of a snapshot or delta batch.
type Update struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Store holds the books of one collector keyed by canonical pair. It is not
// safe for concurrent use; the owning collector serialises access.
type Store struct {
	books map[string]*Book
}

func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// book returns the pair's book, creating it on first touch.
func (s *Store) book(pair string) *Book {
	b, ok := s.books[pair]
	if !ok {
		b = NewBook()
		s.books[pair] = b
	}
	return b
}

// Book returns the pair's book or nil when the pair has not been seen.
func (s *Store) Book(pair string) *Book {
	return s.books[pair]
}

// Pairs lists known pairs in sorted order.
func (s *Store) Pairs() []string {
	out := make([]string, 0, len(s.books))
	for p := range s.books {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ApplyFullTick replaces the whole side with a single level. A zero quantity
// leaves the side empty.
func (s *Store) ApplyFullTick(pair string, side Side, price, quantity decimal.Decimal) {
	b := s.book(pair)
	b.setSide(side, SideMap{})
	b.upsert(side, price, quantity)
}

// ApplySnapshot replaces both sides of pair with the given levels.
func (s *Store) ApplySnapshot(pair string, levels []Update) {
	b := s.book(pair)
	b.Bid, b.Offer = SideMap{}, SideMap{}
	for _, u := range levels {
		b.upsert(u.Side, u.Price, u.Quantity)
	}
}

// ApplyDelta upserts one level; quantity zero removes it when present.
func (s *Store) ApplyDelta(pair string, side Side, price, quantity decimal.Decimal) {
	s.book(pair).upsert(side, price, quantity)
}

// Trim reduces every book to depth levels per side.
func (s *Store) Trim(depth int) {
	for _, b := range s.books {
		b.Trim(depth)
	}
}

// Update runs fn and returns the subset of pairs whose book is not Equal to
// its state before fn ran. Pairs unseen before fn compare against an empty
// book.
func (s *Store) Update(pairs []string, fn func()) []string {
	before := make(map[string]*Book, len(pairs))
	for _, p := range pairs {
		if b, ok := s.books[p]; ok {
			before[p] = b.Clone()
		} else {
			before[p] = NewBook()
		}
	}

	fn()

	var changed []string
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if seen[p] {
			continue
		}
		seen[p] = true
		after, ok := s.books[p]
		if !ok {
			after = NewBook()
		}
		if !Equal(before[p], after) {
			changed = append(changed, p)
		}
	}
	return changed
}

// Clone deep copies the store.
func (s *Store) Clone() *Store {
	out := NewStore()
	for p, b := range s.books {
		out.books[p] = b.Clone()
	}
	return out
}

// Equal compares pair sets and every book.
func (s *Store) Equal(other *Store) bool {
	if len(s.books) != len(other.books) {
		return false
	}
	for p, b := range s.books {
		ob, ok := other.books[p]
		if !ok || !Equal(b, ob) {
			return false
		}
	}
	return true
}
