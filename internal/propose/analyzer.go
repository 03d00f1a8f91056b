// Package propose turns the candidates of a whole corpus run into
// reviewable vocabulary proposals: candidates are judged against the
// known catalog, similar keys are clustered, and clusters with enough
// supporting documents become ADD_NEW aggregates.
package propose

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kerimala/MKUEMRLP/internal/catalog"
	"github.com/kerimala/MKUEMRLP/internal/model"
	"github.com/kerimala/MKUEMRLP/internal/textutil"
)

// SourcedCandidate ties a candidate to the document it came from.
type SourcedCandidate struct {
	Candidate model.Candidate
	DocID     string
}

// Heuristics configures the anti-explosion shortcut for activities:
// phrases that are an existing activity plus a qualifier should map to
// the existing term, not become new vocabulary.
type Heuristics struct {
	// QualifierPatterns are tokens marking a qualified phrase. Matched
	// against whole normalized tokens.
	QualifierPatterns []string

	// BaseMatchThreshold is the minimum token similarity for picking
	// the base activity of a qualified phrase.
	BaseMatchThreshold int

	// KeywordTargets maps trigger tokens to a catalog term used when no
	// base activity reaches the threshold.
	KeywordTargets map[string]string
}

// DefaultHeuristics returns the qualifier vocabulary for German
// regulation text.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		QualifierPatterns: []string{
			"elektrisch", "motorisiert", "motor", "ps", "kw",
			"lang", "breit", "meter", "personen", "gruppen",
			"winter", "sommer", "nacht", "tags",
			"schnell", "langsam", "gross", "klein", "leise", "laut",
		},
		BaseMatchThreshold: 60,
		KeywordTargets: map[string]string{
			"boot":   "wasserfahrzeuge_ohne_motor",
			"schiff": "wasserfahrzeuge_ohne_motor",
			"paddel": "wasserfahrzeuge_ohne_motor",
			"ruder":  "wasserfahrzeuge_ohne_motor",
			"drohne": "drohnen_flugmodelle",
			"ballon": "drohnen_flugmodelle",
		},
	}
}

// Engine makes the decisions. The catalog is an injected read-only
// dependency so runs are deterministic and parallel-safe.
type Engine struct {
	catalog    *catalog.Catalog
	minDocs    int
	threshold  int
	heuristics Heuristics
}

// NewEngine builds an engine from the propose configuration.
func NewEngine(cat *catalog.Catalog, cfg model.ProposeConfig, h Heuristics) *Engine {
	return &Engine{
		catalog:    cat,
		minDocs:    cfg.MinDocCount,
		threshold:  cfg.SimilarityThreshold,
		heuristics: h,
	}
}

// Collect gathers all candidates across document results, keyed by
// category, preserving document order.
func Collect(docs []model.DocumentResult) map[string][]SourcedCandidate {
	all := make(map[string][]SourcedCandidate)
	for _, doc := range docs {
		for category, candidates := range doc.Candidates {
			for _, cand := range candidates {
				all[category] = append(all[category], SourcedCandidate{Candidate: cand, DocID: doc.DocID})
			}
		}
	}
	return all
}

// Analyze judges every candidate group and returns the final
// aggregates, sorted by supporting document count then mean confidence.
func (e *Engine) Analyze(all map[string][]SourcedCandidate) []model.CandidateAggregate {
	categories := make([]string, 0, len(all))
	for category := range all {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var aggregates []model.CandidateAggregate
	for _, category := range categories {
		enumKey, known := catalog.EnumKey(category)
		if !known || !e.catalog.Has(enumKey) {
			fmt.Fprintf(os.Stderr, "Warning: skipping %d candidates in unknown category %q\n",
				len(all[category]), category)
			continue
		}

		groups := groupByKey(all[category])
		var unmapped []*group
		for _, g := range groups {
			if target, reason, ok := e.mapToExisting(category, enumKey, g); ok {
				aggregates = append(aggregates, e.aggregate(category, g.members, model.DecisionMapToExisting, target, reason))
				continue
			}
			unmapped = append(unmapped, g)
		}

		for _, cl := range cluster(unmapped, e.threshold) {
			docCount := cl.docCount()
			if docCount < e.minDocs {
				continue
			}
			reason := fmt.Sprintf("Genuinely new term, appears in %d documents", docCount)
			aggregates = append(aggregates, e.aggregate(category, cl.members, model.DecisionAddNew, cl.key, reason))
		}
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		if aggregates[i].DocCount != aggregates[j].DocCount {
			return aggregates[i].DocCount > aggregates[j].DocCount
		}
		if aggregates[i].MeanConfidence != aggregates[j].MeanConfidence {
			return aggregates[i].MeanConfidence > aggregates[j].MeanConfidence
		}
		if aggregates[i].Category != aggregates[j].Category {
			return aggregates[i].Category < aggregates[j].Category
		}
		return aggregates[i].TargetOrKey < aggregates[j].TargetOrKey
	})
	return aggregates
}

// mapToExisting applies the catalog-based part of the decision
// taxonomy: exact match, fuzzy match, then the qualifier heuristic for
// activities.
func (e *Engine) mapToExisting(category, enumKey string, g *group) (target, reason string, ok bool) {
	if e.catalog.Contains(enumKey, g.key) {
		return g.key, "Exact match with existing catalog value", true
	}

	best := g.best()
	if term, score := e.catalog.BestMatch(enumKey, best.Candidate.Original); score >= e.threshold {
		return term, fmt.Sprintf("High similarity match (score: %d)", score), true
	}

	if category == catalog.CategoryActivities {
		if term, found := e.qualifierTarget(enumKey, best.Candidate); found {
			return term, "Representable as existing activity plus conditions", true
		}
	}
	return "", "", false
}

// qualifierTarget checks whether a phrase is an existing activity plus
// a qualifier and names the base activity if so.
func (e *Engine) qualifierTarget(enumKey string, cand model.Candidate) (string, bool) {
	tokens := strings.Fields(textutil.Normalize(cand.Original))

	qualified := false
	for _, tok := range tokens {
		for _, pattern := range e.heuristics.QualifierPatterns {
			if tok == pattern {
				qualified = true
			}
		}
	}
	if !qualified {
		return "", false
	}

	// Best token-level match against the known activities.
	bestTerm, bestScore := "", -1
	for _, term := range e.catalog.Terms(enumKey) {
		normalizedTerm := textutil.Normalize(strings.ReplaceAll(term, "_", " "))
		for _, tok := range tokens {
			if score := textutil.Ratio(tok, normalizedTerm); score > bestScore {
				bestTerm, bestScore = term, score
			}
		}
	}
	if bestScore >= e.heuristics.BaseMatchThreshold {
		return bestTerm, true
	}

	for _, tok := range tokens {
		if target, found := e.heuristics.KeywordTargets[tok]; found && e.catalog.Contains(enumKey, target) {
			return target, true
		}
	}
	return "", false
}

// aggregate summarizes one group or cluster.
func (e *Engine) aggregate(category string, members []SourcedCandidate, decision, target, reason string) model.CandidateAggregate {
	docs := make(map[string]bool)
	var sum float64
	representative := members[0]
	exampleQuote := ""
	for _, m := range members {
		docs[m.DocID] = true
		sum += m.Candidate.Confidence
		if m.Candidate.Confidence > representative.Candidate.Confidence {
			representative = m
		}
		if q := m.Candidate.Quote; q != "" && (exampleQuote == "" || len(q) < len(exampleQuote)) {
			exampleQuote = q
		}
	}

	return model.CandidateAggregate{
		Category:       category,
		Candidate:      representative.Candidate.Original,
		Decision:       decision,
		TargetOrKey:    target,
		Reason:         reason,
		DocCount:       len(docs),
		ExampleQuote:   exampleQuote,
		MeanConfidence: sum / float64(len(members)),
	}
}
