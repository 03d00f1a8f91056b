package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerimala/MKUEMRLP/internal/cache"
	"github.com/kerimala/MKUEMRLP/internal/catalog"
	"github.com/kerimala/MKUEMRLP/internal/extract"
	"github.com/kerimala/MKUEMRLP/internal/merge"
	"github.com/kerimala/MKUEMRLP/internal/model"
	"github.com/kerimala/MKUEMRLP/internal/orchestrate"
	"github.com/kerimala/MKUEMRLP/internal/source"
	"github.com/kerimala/MKUEMRLP/internal/worker"
)

var (
	runChunksFile  string
	runOutputDir   string
	runMode        string
	runPromptFile  string
	runCatalogFile string
	runForce       bool
	runNoCache     bool
	runLimit       int
)

// defaultInstructions is used when no prompt file is present. The
// placeholder is replaced with the known vocabulary as JSON.
const defaultInstructions = `Du analysierst deutsche Naturschutzgebietsverordnungen. Extrahiere aus dem
Text alle Regeln als JSON-Objekt mit den Feldern "rules" und "new_candidates".

Jede Regel hat: activity, place, permission (verboten|erlaubt|genehmigungspflichtig),
optional zone {zone_typ, zone_name}, conditions (type, value oder from/to,
confidence), citations (Paragraphenangaben) und confidence (0-1).

Verwende nur Begriffe aus dem bekannten Katalog. Begriffe, die dort fehlen,
gehören nicht in rules, sondern als Kandidaten nach new_candidates unter
"activities", "zone_terms" oder "place_terms" mit key_snake, original, quote,
confidence und why_new. Qualifizierer (Zeiten, Größen, Antrieb) sind
conditions, keine neuen Aktivitäten.

Bekannter Katalog:
{{KNOWN_ENUMS_JSON}}`

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract rules for every packed text unit",
	Long: `Process all units from chunks.jsonl through the extraction service.
Results are cached per (document, unit text, model); a re-run over a
warm cache issues no network calls. In adaptive mode weak results are
escalated from the chat model to the reasoner model.

Writes per-unit results to <out>/chunk_results/, merged per-document
results to <out>/docs/, and a run summary.

Example:
  nsgx run
  nsgx run --mode thorough --force
  nsgx run --chunks out/chunks.jsonl --limit 50`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runChunksFile, "chunks", "out/chunks.jsonl", "input chunks file")
	runCmd.Flags().StringVar(&runOutputDir, "out", "out", "output directory")
	runCmd.Flags().StringVar(&runMode, "mode", string(orchestrate.ModeAdaptive), "processing mode (fast, thorough, adaptive)")
	runCmd.Flags().StringVar(&runPromptFile, "prompt", "prompts/extractor_system.txt", "system prompt template")
	runCmd.Flags().StringVar(&runCatalogFile, "catalog", "prompts/known_enums.json", "known vocabulary file")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reprocess units even when cached")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "disable the result cache entirely")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most this many units (0 = all)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	mode, err := orchestrate.ParseMode(runMode)
	if err != nil {
		return err
	}

	units, err := source.ReadChunks(runChunksFile)
	if err != nil {
		return err
	}
	if runLimit > 0 && len(units) > runLimit {
		units = units[:runLimit]
	}
	if len(units) == 0 {
		return fmt.Errorf("no units in %s (run 'nsgx pack' first)", runChunksFile)
	}

	instructions, err := loadInstructions(runPromptFile, runCatalogFile)
	if err != nil {
		return err
	}

	client, err := extract.NewClient(cfg.Service, cfg.Output.Verbose)
	if err != nil {
		return err
	}

	var store cache.Store
	if cfg.Cache.Enabled && !runNoCache {
		layered, err := cache.NewLayeredStore(cfg.Cache.Path, cfg.Cache.MemoryTTL)
		if err != nil {
			return err
		}
		defer layered.Close()
		store = layered
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Processing %d units (%s mode, %d workers)\n",
		len(units), mode, cfg.Concurrency.Workers)

	start := time.Now()
	orch := orchestrate.New(client, store, cfg, orchestrate.Options{
		Mode:         mode,
		Instructions: instructions,
		Force:        runForce,
		Verbose:      cfg.Output.Verbose,
	})
	outcomes, stats := orch.Process(ctx, units)

	if err := writeOutcomes(runOutputDir, outcomes); err != nil {
		return err
	}
	docs, err := writeMergedDocs(runOutputDir, outcomes)
	if err != nil {
		return err
	}

	summary := map[string]any{
		"mode":         string(mode),
		"stats":        stats,
		"documents":    docs,
		"duration":     time.Since(start).Round(time.Second).String(),
		"generated_at": time.Now().Format(time.RFC3339),
	}
	if err := writeJSON(filepath.Join(runOutputDir, "run_summary.json"), summary); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Done: %d units, %d cache hits, %d live calls, %d escalations, %d failed, %d documents\n",
		stats.Units, stats.CacheHits, stats.LiveCalls, stats.Escalations, stats.Failures, docs)
	if stats.Failures > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d units failed; see run_summary.json\n", stats.Failures)
	}
	return nil
}

// loadInstructions reads the prompt template and injects the known
// vocabulary. A missing prompt file falls back to the built-in
// template; a missing catalog is an error since extraction quality
// depends on it.
func loadInstructions(promptPath, catalogPath string) (string, error) {
	template := defaultInstructions
	if data, err := os.ReadFile(promptPath); err == nil {
		template = string(data)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read prompt: %w", err)
	}

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return "", err
	}
	vocab := make(map[string][]string)
	for _, key := range cat.Keys() {
		vocab[key] = cat.Terms(key)
	}
	vocabJSON, err := json.MarshalIndent(vocab, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal catalog: %w", err)
	}
	return strings.ReplaceAll(template, "{{KNOWN_ENUMS_JSON}}", string(vocabJSON)), nil
}

// writeOutcomes persists each successful unit result under
// chunk_results/, named <doc>__<unit>.json.
func writeOutcomes(outputDir string, outcomes []worker.Outcome) error {
	dir := filepath.Join(outputDir, "chunk_results")
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			fmt.Fprintf(os.Stderr, "Failed: %s__%s: %v\n",
				outcome.Unit.DocID, outcome.Unit.UnitID, outcome.Err)
			continue
		}
		name := fmt.Sprintf("%s__%s.json", outcome.Unit.DocID, outcome.Unit.UnitID)
		if err := writeJSON(filepath.Join(dir, name), outcome.Result); err != nil {
			return err
		}
	}
	return nil
}

// writeMergedDocs folds outcomes per document and writes docs/<doc>.json.
// Returns the number of documents written.
func writeMergedDocs(outputDir string, outcomes []worker.Outcome) (int, error) {
	byDoc := make(map[string][]*model.UnitResult)
	seen := make(map[string]bool)
	var order []string
	for _, outcome := range outcomes {
		docID := outcome.Unit.DocID
		if !seen[docID] {
			seen[docID] = true
			order = append(order, docID)
		}
		if outcome.Err == nil {
			byDoc[docID] = append(byDoc[docID], outcome.Result)
		}
	}

	written := 0
	for _, docID := range order {
		results := byDoc[docID]
		if len(results) == 0 {
			fmt.Fprintf(os.Stderr, "Warning: no usable results for %s, skipping merge\n", docID)
			continue
		}
		doc := merge.Document(docID, results)
		if err := writeJSON(filepath.Join(outputDir, "docs", docID+".json"), doc); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
