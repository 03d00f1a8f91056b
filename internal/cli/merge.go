package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerimala/MKUEMRLP/internal/merge"
	"github.com/kerimala/MKUEMRLP/internal/model"
)

var (
	mergeResultsDir string
	mergeOutputDir  string
)

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Fold per-unit results into per-document files",
	Long: `Re-merge the unit results under chunk_results/ into per-document
files. The run command already merges as it goes; this command exists to
rebuild docs/ after manual edits or partial runs without touching the
extraction service.

Example:
  nsgx merge
  nsgx merge --chunk-results out/chunk_results --out out`,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeResultsDir, "chunk-results", "out/chunk_results", "directory of per-unit result files")
	mergeCmd.Flags().StringVar(&mergeOutputDir, "out", "out", "output directory")
}

func runMerge(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(mergeResultsDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", mergeResultsDir, err)
	}

	byDoc := make(map[string][]*model.UnitResult)
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(mergeResultsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var result model.UnitResult
		if err := json.Unmarshal(data, &result); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping unreadable result %s: %v\n", path, err)
			continue
		}
		if result.DocID == "" {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: no document ID\n", path)
			continue
		}
		byDoc[result.DocID] = append(byDoc[result.DocID], &result)
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no unit results in %s (run 'nsgx run' first)", mergeResultsDir)
	}

	docIDs := make([]string, 0, len(byDoc))
	for docID := range byDoc {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)

	for _, docID := range docIDs {
		doc := merge.Document(docID, byDoc[docID])
		if err := writeJSON(filepath.Join(mergeOutputDir, "docs", docID+".json"), doc); err != nil {
			return err
		}
	}

	summary := map[string]any{
		"unit_results": loaded,
		"documents":    len(docIDs),
		"generated_at": time.Now().Format(time.RFC3339),
	}
	if err := writeJSON(filepath.Join(mergeOutputDir, "merge_summary.json"), summary); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Merged %d unit results into %d documents\n", loaded, len(docIDs))
	return nil
}
