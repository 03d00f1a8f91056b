package model

// TextUnit is a bounded slice of document text submitted for extraction.
// Unit IDs are ordinal, zero-padded, and stable for a given document and
// segmentation parameters.
type TextUnit struct {
	DocID  string `json:"doc_id"`
	UnitID string `json:"unit_id"`
	Text   string `json:"text"`
}

// UnitResult is the outcome of processing one TextUnit.
type UnitResult struct {
	DocID      string                 `json:"doc_id"`
	UnitID     string                 `json:"unit_id"`
	Rules      []Rule                 `json:"rules"`
	Candidates map[string][]Candidate `json:"new_candidates,omitempty"`
}

// DocumentResult holds the merged UnitResults of one document.
type DocumentResult struct {
	DocID      string                 `json:"doc_id"`
	Rules      []Rule                 `json:"rules_merged"`
	Candidates map[string][]Candidate `json:"new_candidates,omitempty"`
}

// Decision values assigned to candidates and aggregates.
const (
	DecisionAddNew        = "ADD_NEW"
	DecisionMapToExisting = "MAP_TO_EXISTING"
	DecisionIgnore        = "IGNORE"
	DecisionUnsure        = "UNSURE"
)

// CandidateAggregate is the corpus-level cluster summary for one
// candidate term, ready for human review.
type CandidateAggregate struct {
	Category       string  `json:"category"`
	Candidate      string  `json:"candidate"`
	Decision       string  `json:"decision"`
	TargetOrKey    string  `json:"target_or_key"`
	Reason         string  `json:"reason"`
	DocCount       int     `json:"doc_count"`
	ExampleQuote   string  `json:"example_quote"`
	MeanConfidence float64 `json:"confidence_avg"`
}
