// Package catalog holds the known vocabulary the decision engine
// compares candidates against. The catalog is read-only: proposals are
// an output artifact, never a write-back.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kerimala/MKUEMRLP/internal/textutil"
)

// Candidate categories as they appear in extraction responses.
const (
	CategoryActivities = "activities"
	CategoryZoneTerms  = "zone_terms"
	CategoryPlaceTerms = "place_terms"
)

// categoryKeys maps a candidate category to the catalog key holding its
// vocabulary.
var categoryKeys = map[string]string{
	CategoryActivities: "aktivitaet",
	CategoryZoneTerms:  "zone_typ",
	CategoryPlaceTerms: "ort",
}

// EnumKey resolves a candidate category to its catalog key.
func EnumKey(category string) (string, bool) {
	key, ok := categoryKeys[category]
	return key, ok
}

// Catalog is an immutable vocabulary: catalog key to known terms.
type Catalog struct {
	terms      map[string][]string
	exact      map[string]map[string]bool
	normalized map[string][]normalizedTerm
}

type normalizedTerm struct {
	original   string
	normalized string
}

// New builds a catalog from a key-to-terms mapping.
func New(terms map[string][]string) *Catalog {
	c := &Catalog{
		terms:      make(map[string][]string, len(terms)),
		exact:      make(map[string]map[string]bool, len(terms)),
		normalized: make(map[string][]normalizedTerm, len(terms)),
	}
	for key, values := range terms {
		sorted := make([]string, len(values))
		copy(sorted, values)
		sort.Strings(sorted)
		c.terms[key] = sorted

		c.exact[key] = make(map[string]bool, len(sorted))
		for _, term := range sorted {
			c.exact[key][term] = true
			c.normalized[key] = append(c.normalized[key], normalizedTerm{
				original:   term,
				normalized: textutil.Normalize(term),
			})
		}
	}
	return c
}

// Load reads a catalog file. YAML and JSON both parse; the original
// catalog ships as JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var terms map[string][]string
	if err := yaml.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(terms), nil
}

// Keys returns the catalog keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.terms))
	for key := range c.terms {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Terms returns the known terms for a catalog key, sorted.
func (c *Catalog) Terms(key string) []string {
	return c.terms[key]
}

// Has reports whether the catalog carries any vocabulary for key.
func (c *Catalog) Has(key string) bool {
	_, ok := c.terms[key]
	return ok
}

// Contains reports an exact match of term against the vocabulary of key.
func (c *Catalog) Contains(key, term string) bool {
	return c.exact[key][term]
}

// BestMatch returns the known term under key most similar to the given
// text, compared in normalized form, with its 0-100 score. Ties go to
// the lexicographically smaller term.
func (c *Catalog) BestMatch(key, text string) (string, int) {
	normalized := textutil.Normalize(text)
	best, bestScore := "", -1
	for _, term := range c.normalized[key] {
		score := textutil.Ratio(normalized, term.normalized)
		if score > bestScore || (score == bestScore && term.original < best) {
			best, bestScore = term.original, score
		}
	}
	if bestScore < 0 {
		return "", 0
	}
	return best, bestScore
}
