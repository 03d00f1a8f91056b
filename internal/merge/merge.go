// Package merge folds the per-unit extraction results of one document
// into a single deduplicated DocumentResult. All operations are
// order-independent: units may arrive in any completion order.
package merge

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

// reasonSeparator joins distinct normalization reasons and quotes.
const reasonSeparator = "; "

// maxQuoteLen caps merged candidate quotes.
const maxQuoteLen = 500

// Document merges all unit results of one document. Nil entries
// (failed units) are skipped.
func Document(docID string, results []*model.UnitResult) model.DocumentResult {
	var rules []model.Rule
	var candidateSources []map[string][]model.Candidate
	for _, result := range results {
		if result == nil {
			continue
		}
		rules = append(rules, result.Rules...)
		if len(result.Candidates) > 0 {
			candidateSources = append(candidateSources, result.Candidates)
		}
	}

	return model.DocumentResult{
		DocID:      docID,
		Rules:      mergeRules(rules),
		Candidates: mergeCandidates(candidateSources),
	}
}

// mergeRules partitions rules by equivalence key and folds each group.
func mergeRules(rules []model.Rule) []model.Rule {
	groups := make(map[string][]model.Rule)
	for _, rule := range rules {
		key := rule.EquivalenceKey()
		groups[key] = append(groups[key], rule)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	merged := make([]model.Rule, 0, len(groups))
	for _, key := range keys {
		group := groups[key]
		if len(group) == 1 {
			merged = append(merged, group[0])
			continue
		}
		merged = append(merged, foldGroup(group))
	}
	return merged
}

// foldGroup combines rules that state the same thing: citations are
// set-unioned, confidence is the maximum, distinct reasons are joined,
// conditions are merged per type.
func foldGroup(group []model.Rule) model.Rule {
	out := group[0]

	citations := make(map[string]bool)
	reasons := make(map[string]bool)
	var conditions []model.Condition

	for _, rule := range group {
		for _, c := range rule.Citations {
			citations[c] = true
		}
		if rule.Confidence > out.Confidence {
			out.Confidence = rule.Confidence
		}
		if rule.NormalizationReason != "" {
			reasons[rule.NormalizationReason] = true
		}
		conditions = append(conditions, rule.Conditions...)
	}

	out.Citations = sortedKeys(citations)
	out.NormalizationReason = strings.Join(sortedKeys(reasons), reasonSeparator)
	out.Conditions = mergeConditions(conditions)
	return out
}

// mergeConditions folds conditions by type: interval types are
// coalesced, scalar types collapse only when every value agrees.
func mergeConditions(conditions []model.Condition) []model.Condition {
	if len(conditions) == 0 {
		return nil
	}

	byType := make(map[string][]model.Condition)
	for _, cond := range conditions {
		byType[cond.Type] = append(byType[cond.Type], cond)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var out []model.Condition
	for _, t := range types {
		group := byType[t]
		if group[0].IsRange() {
			out = append(out, coalesceRanges(group)...)
		} else {
			out = append(out, collapseScalars(group)...)
		}
	}
	return out
}

// coalesceRanges sweeps intervals in start order and joins any pair
// where the next start falls inside the current interval. When two
// intervals join, the higher-confidence one keeps its auxiliary fields.
func coalesceRanges(ranges []model.Condition) []model.Condition {
	sorted := make([]model.Condition, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].From != sorted[j].From {
			return sorted[i].From < sorted[j].From
		}
		return sorted[i].To < sorted[j].To
	})

	out := []model.Condition{sorted[0]}
	for _, next := range sorted[1:] {
		current := &out[len(out)-1]
		if next.From > current.To {
			out = append(out, next)
			continue
		}
		if next.To > current.To {
			current.To = next.To
		}
		if next.Confidence > current.Confidence {
			current.Value = next.Value
			current.Confidence = next.Confidence
		}
	}
	return out
}

// collapseScalars keeps one condition if all values agree, otherwise
// one per distinct value. Confidence is the maximum seen per value.
func collapseScalars(group []model.Condition) []model.Condition {
	byValue := make(map[string]model.Condition)
	for _, cond := range group {
		best, seen := byValue[cond.Value]
		if !seen || cond.Confidence > best.Confidence {
			byValue[cond.Value] = cond
		}
	}

	values := make([]string, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	sort.Strings(values)

	out := make([]model.Condition, 0, len(byValue))
	for _, v := range values {
		out = append(out, byValue[v])
	}
	return out
}

// mergeCandidates unions candidates across units per category and
// deduplicates by key within each category.
func mergeCandidates(sources []map[string][]model.Candidate) map[string][]model.Candidate {
	if len(sources) == 0 {
		return nil
	}

	type accumulator struct {
		cand    model.Candidate
		quotes  map[string]bool
		reasons map[string]bool
	}

	byCategory := make(map[string]map[string]*accumulator)
	for _, source := range sources {
		for category, candidates := range source {
			if byCategory[category] == nil {
				byCategory[category] = make(map[string]*accumulator)
			}
			for _, cand := range candidates {
				acc := byCategory[category][cand.Key]
				if acc == nil {
					acc = &accumulator{
						cand:    cand,
						quotes:  make(map[string]bool),
						reasons: make(map[string]bool),
					}
					byCategory[category][cand.Key] = acc
				}
				if cand.Confidence > acc.cand.Confidence {
					acc.cand = cand
				}
				if cand.Quote != "" {
					acc.quotes[cand.Quote] = true
				}
				if cand.WhyNew != "" {
					acc.reasons[cand.WhyNew] = true
				}
			}
		}
	}

	out := make(map[string][]model.Candidate, len(byCategory))
	for category, accs := range byCategory {
		keys := make([]string, 0, len(accs))
		for key := range accs {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		merged := make([]model.Candidate, 0, len(accs))
		for _, key := range keys {
			acc := accs[key]
			acc.cand.Quote = truncate(strings.Join(sortedKeys(acc.quotes), reasonSeparator), maxQuoteLen)
			acc.cand.WhyNew = strings.Join(sortedKeys(acc.reasons), reasonSeparator)
			merged = append(merged, acc.cand)
		}
		out[category] = merged
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
