package features

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrDataLoad is returned when the feature table cannot be opened or read.
	ErrDataLoad = errors.New("feature data could not be loaded")
)

// Vector is an ordered list of numeric attributes describing a city.
// Positions are meaningful; there are no named fields.
type Vector []float64

// Stats summarizes a single ingestion run.
type Stats struct {
	Rows        int // lines read, including discarded ones
	Admitted    int // rows that produced an entry (before overwrites)
	Skipped     int // rows with fewer than two fields or no numeric value
	Dropped     int // rows discarded by PolicyDrop
	BadFields   int // fields that failed to parse as numbers
	Overwritten int // admitted rows that replaced an earlier row for the same city
}

// Store maps normalized city keys to feature vectors. It is built once by
// Load and never written afterwards, so concurrent readers need no locking.
type Store struct {
	data  map[string]Vector
	stats Stats
}

// Normalize trims surrounding whitespace and lowercases a city name. The same
// function is applied when the table is loaded and when it is queried.
func Normalize(city string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Lower(language.Und).String(strings.TrimSpace(city))
}

// Lookup returns a copy of the feature vector stored for city.
func (s *Store) Lookup(city string) (Vector, bool) {
	v, ok := s.data[Normalize(city)]
	if !ok {
		return nil, false
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out, true
}

// Len returns the number of distinct cities.
func (s *Store) Len() int {
	return len(s.data)
}

// Keys returns the normalized city keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns the counters collected while loading.
func (s *Store) Stats() Stats {
	return s.stats
}
