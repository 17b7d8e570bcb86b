package clustering

import "fmt"

// TermCounts is a read-only term → occurrence count lookup.
type TermCounts interface {
	Count(term string) int
}

// TermStore holds the deduplicated vocabulary in first-seen order together with
// each term's occurrence count. It is filled once at ingestion and read by every
// later stage.
type TermStore struct {
	terms  []string
	counts map[string]int
	index  map[string]int
}

// NewTermStore constructs an empty store.
func NewTermStore() *TermStore {
	return &TermStore{counts: make(map[string]int), index: make(map[string]int)}
}

// FromEntries builds a store from ingestion entries, summing duplicate terms.
func FromEntries(entries []TermEntry) (*TermStore, error) {
	s := NewTermStore()
	for _, e := range entries {
		if err := s.Add(e.Term, e.Count); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add records count occurrences of term. Empty terms are ignored; repeated terms
// accumulate into the first occurrence.
func (s *TermStore) Add(term string, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: negative count %d for %q", ErrInvalidInput, count, term)
	}
	term = NormalizeText(term)
	if term == "" {
		return nil
	}
	if _, ok := s.index[term]; !ok {
		s.index[term] = len(s.terms)
		s.terms = append(s.terms, term)
	}
	s.counts[term] += count
	return nil
}

// Terms returns a copy of the vocabulary in first-seen order.
func (s *TermStore) Terms() []string {
	out := make([]string, len(s.terms))
	copy(out, s.terms)
	return out
}

// Count returns the occurrence count of term, or 0 when the term is unknown.
func (s *TermStore) Count(term string) int {
	return s.counts[term]
}

// Len returns the vocabulary size.
func (s *TermStore) Len() int {
	return len(s.terms)
}

// Total sums all occurrence counts.
func (s *TermStore) Total() int {
	total := 0
	for _, c := range s.counts {
		total += c
	}
	return total
}

// Entries returns the vocabulary as (term, count) pairs in first-seen order.
func (s *TermStore) Entries() []TermEntry {
	out := make([]TermEntry, len(s.terms))
	for i, t := range s.terms {
		out[i] = TermEntry{Term: t, Count: s.counts[t]}
	}
	return out
}

// MapCounts adapts a plain map to TermCounts.
type MapCounts map[string]int

// Count returns m[term], 0 when absent.
func (m MapCounts) Count(term string) int {
	return m[term]
}

// Index returns the first-seen position of term, or -1.
func (s *TermStore) Index(term string) int {
	if i, ok := s.index[term]; ok {
		return i
	}
	return -1
}
