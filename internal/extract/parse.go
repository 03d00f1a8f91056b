package extract

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

// responsePayload is the shape the service is instructed to return.
type responsePayload struct {
	Rules      []model.Rule                 `json:"rules"`
	Candidates map[string][]model.Candidate `json:"new_candidates"`
}

// ParseContent decodes a raw JSON response for the given unit into a
// UnitResult. Individual malformed entries are dropped with a warning;
// a structurally unreadable payload is a permanent ParseError. Used both
// for fresh responses and for cache replays.
func ParseContent(unit model.TextUnit, raw []byte) (*model.UnitResult, error) {
	var payload responsePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ParseError{Raw: string(raw), Err: err}
	}

	result := &model.UnitResult{
		DocID:  unit.DocID,
		UnitID: unit.UnitID,
		Rules:  make([]model.Rule, 0, len(payload.Rules)),
	}

	for i, rule := range payload.Rules {
		if rule.Activity == "" || rule.Place == "" || rule.Permission == "" {
			fmt.Fprintf(os.Stderr, "Warning: %s__%s dropping rule %d: missing activity, place or permission\n",
				unit.DocID, unit.UnitID, i)
			continue
		}
		rule.Confidence = clamp01(rule.Confidence)
		rule.Conditions = validConditions(unit, rule.Conditions)
		for j := range rule.Conditions {
			rule.Conditions[j].Confidence = clamp01(rule.Conditions[j].Confidence)
		}
		result.Rules = append(result.Rules, rule)
	}

	for category, candidates := range payload.Candidates {
		kept := make([]model.Candidate, 0, len(candidates))
		for i, cand := range candidates {
			if cand.Key == "" || cand.Original == "" {
				fmt.Fprintf(os.Stderr, "Warning: %s__%s dropping %s candidate %d: missing key or original\n",
					unit.DocID, unit.UnitID, category, i)
				continue
			}
			cand.Confidence = clamp01(cand.Confidence)
			kept = append(kept, cand)
		}
		if len(kept) > 0 {
			if result.Candidates == nil {
				result.Candidates = make(map[string][]model.Candidate)
			}
			result.Candidates[category] = kept
		}
	}

	return result, nil
}

// validConditions drops conditions that carry neither a value nor a
// usable range.
func validConditions(unit model.TextUnit, conditions []model.Condition) []model.Condition {
	kept := make([]model.Condition, 0, len(conditions))
	for i, cond := range conditions {
		switch {
		case cond.Type == "":
			fmt.Fprintf(os.Stderr, "Warning: %s__%s dropping condition %d: missing type\n",
				unit.DocID, unit.UnitID, i)
		case cond.IsRange() && (cond.From == "" || cond.To == ""):
			fmt.Fprintf(os.Stderr, "Warning: %s__%s dropping %s condition %d: incomplete range\n",
				unit.DocID, unit.UnitID, cond.Type, i)
		case !cond.IsRange() && cond.Value == "":
			fmt.Fprintf(os.Stderr, "Warning: %s__%s dropping %s condition %d: missing value\n",
				unit.DocID, unit.UnitID, cond.Type, i)
		default:
			kept = append(kept, cond)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
