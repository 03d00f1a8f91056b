package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerimala/MKUEMRLP/internal/source"
)

var (
	packOutputDir string
	packMaxChars  int
	packRulesOnly bool
)

// packCmd represents the pack command
var packCmd = &cobra.Command{
	Use:   "pack <directory>",
	Short: "Segment regulation texts into bounded units",
	Long: `Read all .txt files under the given directory, derive document IDs
from filenames (NSG-XXXX-XXX pattern, falling back to the file stem),
segment each text at semantic break points, and write the units to
<out>/chunks.jsonl for the run command.

With --rules-only, paragraphs that carry no rule language (preambles,
signatures, annex lists) are dropped before segmentation.

Example:
  nsgx pack ./texts
  nsgx pack ./texts --rules-only --max-chars 3000`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringVar(&packOutputDir, "out", "out", "output directory")
	packCmd.Flags().IntVar(&packMaxChars, "max-chars", 0, "maximum unit size in characters (default from config)")
	packCmd.Flags().BoolVar(&packRulesOnly, "rules-only", false, "keep only rule-bearing paragraphs")
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	maxChars := cfg.Segment.MaxUnitChars
	if packMaxChars > 0 {
		maxChars = packMaxChars
	}

	docs, err := source.ReadDocuments(args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no .txt documents found in %s", args[0])
	}

	units := source.Pack(docs, maxChars, packRulesOnly)
	chunksPath := filepath.Join(packOutputDir, "chunks.jsonl")
	if err := source.WriteChunks(chunksPath, units); err != nil {
		return err
	}

	summary := map[string]any{
		"documents":    len(docs),
		"units":        len(units),
		"max_chars":    maxChars,
		"rules_only":   packRulesOnly,
		"generated_at": time.Now().Format(time.RFC3339),
	}
	if err := writeJSON(filepath.Join(packOutputDir, "pack_summary.json"), summary); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Packed %d documents into %d units: %s\n", len(docs), len(units), chunksPath)
	return nil
}

// writeJSON writes v as indented JSON, creating parent directories.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
