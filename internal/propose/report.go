package propose

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

// Totals summarizes a proposal run for the summary artifact.
type Totals struct {
	Aggregates    int `json:"aggregates"`
	AddNew        int `json:"add_new"`
	MapToExisting int `json:"map_to_existing"`
}

// Count tallies decisions across aggregates.
func Count(aggregates []model.CandidateAggregate) Totals {
	t := Totals{Aggregates: len(aggregates)}
	for _, agg := range aggregates {
		switch agg.Decision {
		case model.DecisionAddNew:
			t.AddNew++
		case model.DecisionMapToExisting:
			t.MapToExisting++
		}
	}
	return t
}

// WriteReviewCSV writes the tabular review export, one row per
// aggregate, in the aggregate order produced by Analyze.
func WriteReviewCSV(path string, aggregates []model.CandidateAggregate) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create review dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create review csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"category", "candidate", "decision", "target_or_key", "reason", "doc_count", "example_quote", "confidence_avg"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write review csv: %w", err)
	}
	for _, agg := range aggregates {
		row := []string{
			agg.Category,
			agg.Candidate,
			agg.Decision,
			agg.TargetOrKey,
			agg.Reason,
			strconv.Itoa(agg.DocCount),
			agg.ExampleQuote,
			strconv.FormatFloat(agg.MeanConfidence, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write review csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write review csv: %w", err)
	}
	return nil
}

// WriteChangelog writes the human-readable change summary for the
// ADD_NEW aggregates.
func WriteChangelog(path string, aggregates []model.CandidateAggregate, now time.Time) error {
	var added []model.CandidateAggregate
	for _, agg := range aggregates {
		if agg.Decision == model.DecisionAddNew {
			added = append(added, agg)
		}
	}

	var b strings.Builder
	b.WriteString("# Vocabulary Changes\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", now.Format("2006-01-02 15:04:05"))

	if len(added) == 0 {
		b.WriteString("## No new vocabulary\n\n")
		b.WriteString("All candidates were mapped to existing terms or ignored.\n")
	} else {
		fmt.Fprintf(&b, "## New Terms (%d)\n\n", len(added))

		byCategory := make(map[string][]model.CandidateAggregate)
		for _, agg := range added {
			byCategory[agg.Category] = append(byCategory[agg.Category], agg)
		}
		categories := make([]string, 0, len(byCategory))
		for category := range byCategory {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			fmt.Fprintf(&b, "### %s\n\n", category)
			entries := byCategory[category]
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].TargetOrKey < entries[j].TargetOrKey
			})
			for _, agg := range entries {
				fmt.Fprintf(&b, "**%s**\n", agg.TargetOrKey)
				fmt.Fprintf(&b, "- Original term: %s\n", agg.Candidate)
				fmt.Fprintf(&b, "- Found in %d documents\n", agg.DocCount)
				if agg.ExampleQuote != "" {
					fmt.Fprintf(&b, "- Example: %q\n", agg.ExampleQuote)
				}
				b.WriteString("\n")
			}
		}
	}

	totals := Count(aggregates)
	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Aggregates analyzed: %d\n", totals.Aggregates)
	fmt.Fprintf(&b, "- New terms: %d\n", totals.AddNew)
	fmt.Fprintf(&b, "- Mapped to existing terms: %d\n", totals.MapToExisting)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create changelog dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write changelog: %w", err)
	}
	return nil
}
