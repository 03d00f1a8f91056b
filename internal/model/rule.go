package model

import "strings"

// Condition types that carry a range instead of a scalar value.
const (
	ConditionDateRange = "datumspanne"
	ConditionTimeRange = "tageszeit"
)

// Condition is a typed qualifier attached to a Rule. Scalar conditions
// carry Value; date/time span conditions carry From/To.
type Condition struct {
	Type       string  `json:"type"`
	Value      string  `json:"value,omitempty"`
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// IsRange reports whether the condition forms an interval.
func (c Condition) IsRange() bool {
	return c.Type == ConditionDateRange || c.Type == ConditionTimeRange
}

// Zone narrows a rule to a named sub-area of a protected site.
type Zone struct {
	Typ  string `json:"zone_typ"`
	Name string `json:"zone_name,omitempty"`
}

// Rule is one structured statement extracted from a regulation:
// an activity, where it applies, and whether it is permitted.
type Rule struct {
	Activity            string      `json:"activity"`
	Place               string      `json:"place"`
	Permission          string      `json:"permission"`
	Zone                *Zone       `json:"zone,omitempty"`
	Conditions          []Condition `json:"conditions"`
	Citations           []string    `json:"citations"`
	Confidence          float64     `json:"confidence"`
	NormalizationReason string      `json:"normalization_reason,omitempty"`
}

// EquivalenceKey identifies rules that state the same thing and must be
// merged rather than reported separately.
func (r Rule) EquivalenceKey() string {
	var b strings.Builder
	b.WriteString(r.Activity)
	b.WriteByte('\x1f')
	b.WriteString(r.Place)
	b.WriteByte('\x1f')
	b.WriteString(r.Permission)
	if r.Zone != nil {
		b.WriteByte('\x1f')
		b.WriteString(r.Zone.Typ)
		b.WriteByte('\x1f')
		b.WriteString(r.Zone.Name)
	}
	return b.String()
}

// Candidate is a vocabulary term observed in text that is not present in
// the known catalog. Decision is the extraction service's own judgement
// and may be empty or UNSURE; the propose stage makes the final call.
type Candidate struct {
	Key        string  `json:"key_snake"`
	Original   string  `json:"original"`
	Quote      string  `json:"quote"`
	Confidence float64 `json:"confidence"`
	WhyNew     string  `json:"why_new,omitempty"`
	Decision   string  `json:"decision,omitempty"`
}
