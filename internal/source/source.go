// Package source handles document intake and the chunks.jsonl exchange
// format between the pack and run stages. Text extraction from PDFs
// happens upstream; this package consumes plain text files.
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kerimala/MKUEMRLP/internal/model"
	"github.com/kerimala/MKUEMRLP/internal/segment"
)

var docIDRe = regexp.MustCompile(`NSG-\d{4}-\d{3}`)

// Paragraphs shorter than this are never rule-bearing.
const minRuleParagraph = 50

// Paragraphs worth sending to extraction mention prohibitions,
// permits or the operative sections of a regulation.
var ruleRe = regexp.MustCompile(`(?i)verboten|untersagt|zulässig|Ausnahme|Genehmigung|Befreiung|Ordnungswidrigkeit|§\s*[34]`)

// Preambles, signature blocks and annex lists carry no rules.
var skipRe = regexp.MustCompile(`(?i)Bekanntmachung|Verkündung|Amtsblatt|Unterschrift|gez\.|gezeichnet|Anlage|Anhang|Karte|Plan|Inhaltsverzeichnis|Gliederung`)

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// Document is one regulation text ready for segmentation.
type Document struct {
	ID   string
	Text string
}

// DocID derives the document identifier from a filename: the NSG
// pattern when present, otherwise the file stem.
func DocID(filename string) string {
	if match := docIDRe.FindString(filename); match != "" {
		return match
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadDocuments loads all .txt files under dir, recursively, sorted by
// path for deterministic unit numbering.
func ReadDocuments(dir string) ([]Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".txt") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			fmt.Fprintf(os.Stderr, "Warning: skipping empty document %s\n", path)
			continue
		}
		docs = append(docs, Document{ID: DocID(path), Text: text})
	}
	return docs, nil
}

// Pack segments documents into text units. With rulesOnly set, only
// rule-bearing paragraphs are kept before segmentation.
func Pack(docs []Document, maxChars int, rulesOnly bool) []model.TextUnit {
	var units []model.TextUnit
	for _, doc := range docs {
		text := doc.Text
		if rulesOnly {
			kept := RuleParagraphs(text)
			if len(kept) == 0 {
				fmt.Fprintf(os.Stderr, "Warning: no rule-bearing paragraphs in %s\n", doc.ID)
				continue
			}
			text = strings.Join(kept, "\n\n")
		}
		for i, chunk := range segment.Split(text, maxChars) {
			units = append(units, model.TextUnit{
				DocID:  doc.ID,
				UnitID: fmt.Sprintf("chunk_%03d", i),
				Text:   chunk,
			})
		}
	}
	return units
}

// RuleParagraphs filters a document to the paragraphs likely to carry
// rules, dropping boilerplate.
func RuleParagraphs(text string) []string {
	var kept []string
	for _, paragraph := range paragraphRe.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if len(paragraph) < minRuleParagraph || skipRe.MatchString(paragraph) {
			continue
		}
		if ruleRe.MatchString(paragraph) {
			kept = append(kept, paragraph)
		}
	}
	return kept
}

// WriteChunks writes units as JSONL, one unit per line.
func WriteChunks(path string, units []model.TextUnit) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, unit := range units {
		if err := enc.Encode(unit); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadChunks loads a JSONL units file. Blank lines are skipped; a
// malformed line is an error, since a truncated chunks file should stop
// a run rather than silently shrink it.
func ReadChunks(path string) ([]model.TextUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var units []model.TextUnit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var unit model.TextUnit
		if err := json.Unmarshal([]byte(raw), &unit); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		units = append(units, unit)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return units, nil
}
