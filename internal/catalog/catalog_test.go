package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testCatalog() *Catalog {
	return New(map[string][]string{
		"aktivitaet": {"zelten", "reiten", "drohnen_flugmodelle", "wasserfahrzeuge_motorisiert"},
		"zone_typ":   {"kernzone", "pufferzone"},
		"ort":        {"gesamtgebiet", "wege"},
	})
}

func TestEnumKey(t *testing.T) {
	key, ok := EnumKey(CategoryActivities)
	if !ok || key != "aktivitaet" {
		t.Errorf("EnumKey(activities) = %q, %v", key, ok)
	}
	if _, ok := EnumKey("unbekannt"); ok {
		t.Error("unknown category resolved")
	}
}

func TestContains(t *testing.T) {
	c := testCatalog()
	if !c.Contains("aktivitaet", "zelten") {
		t.Error("known term not found")
	}
	if c.Contains("aktivitaet", "kernzone") {
		t.Error("term found under wrong key")
	}
	if c.Contains("fehlt", "zelten") {
		t.Error("missing key reported a match")
	}
}

func TestTermsSorted(t *testing.T) {
	c := New(map[string][]string{"aktivitaet": {"zelten", "angeln", "reiten"}})
	want := []string{"angeln", "reiten", "zelten"}
	if got := c.Terms("aktivitaet"); !reflect.DeepEqual(got, want) {
		t.Errorf("Terms = %v, want %v", got, want)
	}
}

func TestBestMatchNormalizes(t *testing.T) {
	c := testCatalog()

	// Surface variant of a known term scores high.
	term, score := c.BestMatch("aktivitaet", "Zelten")
	if term != "zelten" || score != 100 {
		t.Errorf("BestMatch(Zelten) = %q/%d, want zelten/100", term, score)
	}

	// A clearly unrelated term scores low.
	_, score = c.BestMatch("aktivitaet", "Feuerwerk abbrennen")
	if score >= 80 {
		t.Errorf("unrelated term scored %d, want < 80", score)
	}

	// Missing key yields no match.
	if term, score := c.BestMatch("fehlt", "zelten"); term != "" || score != 0 {
		t.Errorf("missing key gave %q/%d", term, score)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "known_enums.json")
	os.WriteFile(jsonPath, []byte(`{"aktivitaet": ["zelten", "reiten"]}`), 0644)
	c, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if !c.Contains("aktivitaet", "reiten") {
		t.Error("json catalog missing term")
	}

	yamlPath := filepath.Join(dir, "known_enums.yaml")
	os.WriteFile(yamlPath, []byte("aktivitaet:\n  - zelten\nort:\n  - wege\n"), 0644)
	c, err = Load(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if !c.Contains("ort", "wege") {
		t.Error("yaml catalog missing term")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
