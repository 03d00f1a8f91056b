package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerimala/MKUEMRLP/internal/catalog"
	"github.com/kerimala/MKUEMRLP/internal/model"
	"github.com/kerimala/MKUEMRLP/internal/propose"
)

var (
	proposeDocsDir     string
	proposeOutputDir   string
	proposeCatalogFile string
	proposeMinDocs     int
)

// proposeCmd represents the propose command
var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Cluster new vocabulary into reviewable proposals",
	Long: `Collect the candidates from all merged documents, judge them against
the known vocabulary, cluster similar keys, and write the aggregates
for human review: proposals.json, review/candidates_review.csv and
CHANGELOG.md.

Example:
  nsgx propose
  nsgx propose --min-doc-count 3 --catalog prompts/known_enums.json`,
	RunE: runPropose,
}

func init() {
	rootCmd.AddCommand(proposeCmd)

	proposeCmd.Flags().StringVar(&proposeDocsDir, "docs", "out/docs", "directory of merged document results")
	proposeCmd.Flags().StringVar(&proposeOutputDir, "out", "out", "output directory")
	proposeCmd.Flags().StringVar(&proposeCatalogFile, "catalog", "prompts/known_enums.json", "known vocabulary file")
	proposeCmd.Flags().IntVar(&proposeMinDocs, "min-doc-count", 0, "documents required per proposal (default from config)")
}

func runPropose(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if proposeMinDocs > 0 {
		cfg.Propose.MinDocCount = proposeMinDocs
	}

	cat, err := catalog.Load(proposeCatalogFile)
	if err != nil {
		return err
	}

	docs, err := loadDocumentResults(proposeDocsDir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no document results in %s (run 'nsgx run' first)", proposeDocsDir)
	}

	all := propose.Collect(docs)
	candidates := 0
	for _, list := range all {
		candidates += len(list)
	}
	fmt.Fprintf(os.Stderr, "Analyzing %d candidates from %d documents (min doc count %d)\n",
		candidates, len(docs), cfg.Propose.MinDocCount)

	engine := propose.NewEngine(cat, cfg.Propose, propose.DefaultHeuristics())
	aggregates := engine.Analyze(all)

	if err := writeJSON(filepath.Join(proposeOutputDir, "proposals.json"), aggregates); err != nil {
		return err
	}
	if err := propose.WriteReviewCSV(filepath.Join(proposeOutputDir, "review", "candidates_review.csv"), aggregates); err != nil {
		return err
	}
	if err := propose.WriteChangelog(filepath.Join(proposeOutputDir, "CHANGELOG.md"), aggregates, time.Now()); err != nil {
		return err
	}

	totals := propose.Count(aggregates)
	summary := map[string]any{
		"documents":    len(docs),
		"candidates":   candidates,
		"totals":       totals,
		"generated_at": time.Now().Format(time.RFC3339),
	}
	if err := writeJSON(filepath.Join(proposeOutputDir, "propose_summary.json"), summary); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Wrote %d aggregates: %d new, %d mapped to existing terms\n",
		totals.Aggregates, totals.AddNew, totals.MapToExisting)
	return nil
}

// loadDocumentResults reads every docs/<doc>.json file.
func loadDocumentResults(dir string) ([]model.DocumentResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var docs []model.DocumentResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var doc model.DocumentResult
		if err := json.Unmarshal(data, &doc); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping unreadable document result %s: %v\n", path, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
