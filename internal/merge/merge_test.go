package merge

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

func rule(activity, place, permission string, confidence float64) model.Rule {
	return model.Rule{
		Activity:   activity,
		Place:      place,
		Permission: permission,
		Confidence: confidence,
	}
}

func unitResult(unitID string, rules ...model.Rule) *model.UnitResult {
	return &model.UnitResult{DocID: "NSG-7100-001", UnitID: unitID, Rules: rules}
}

func TestDocumentSingletonPassThrough(t *testing.T) {
	r := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	r.Citations = []string{"§ 3"}
	r.Conditions = []model.Condition{{Type: "ausnahme", Value: "jagdrecht", Confidence: 0.8}}

	doc := Document("NSG-7100-001", []*model.UnitResult{unitResult("0001", r)})
	if len(doc.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(doc.Rules))
	}
	if !reflect.DeepEqual(doc.Rules[0], r) {
		t.Errorf("singleton group modified:\ngot  %+v\nwant %+v", doc.Rules[0], r)
	}
}

func TestDocumentSkipsFailedUnits(t *testing.T) {
	doc := Document("NSG-7100-001", []*model.UnitResult{
		nil,
		unitResult("0002", rule("zelten", "gesamtgebiet", "verboten", 0.9)),
		nil,
	})
	if len(doc.Rules) != 1 {
		t.Errorf("got %d rules, want 1", len(doc.Rules))
	}
}

func TestMergeCombinesEquivalentRules(t *testing.T) {
	a := rule("zelten", "gesamtgebiet", "verboten", 0.7)
	a.Citations = []string{"§ 4", "§ 3"}
	a.NormalizationReason = "plural reduziert"

	b := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	b.Citations = []string{"§ 3", "§ 7"}
	b.NormalizationReason = "synonym ersetzt"

	doc := Document("NSG-7100-001", []*model.UnitResult{
		unitResult("0001", a),
		unitResult("0002", b),
	})
	if len(doc.Rules) != 1 {
		t.Fatalf("got %d rules, want 1 merged", len(doc.Rules))
	}
	merged := doc.Rules[0]

	if want := []string{"§ 3", "§ 4", "§ 7"}; !reflect.DeepEqual(merged.Citations, want) {
		t.Errorf("citations = %v, want sorted union %v", merged.Citations, want)
	}
	if merged.Confidence != 0.9 {
		t.Errorf("confidence = %v, want max 0.9", merged.Confidence)
	}
	if !strings.Contains(merged.NormalizationReason, "plural reduziert") ||
		!strings.Contains(merged.NormalizationReason, "synonym ersetzt") {
		t.Errorf("reasons lost: %q", merged.NormalizationReason)
	}
}

func TestZoneSeparatesRules(t *testing.T) {
	a := rule("befahren", "wege", "verboten", 0.9)
	b := rule("befahren", "wege", "verboten", 0.9)
	b.Zone = &model.Zone{Typ: "kernzone"}

	doc := Document("NSG-7100-001", []*model.UnitResult{unitResult("0001", a, b)})
	if len(doc.Rules) != 2 {
		t.Errorf("got %d rules, want 2 (zone changes identity)", len(doc.Rules))
	}
}

func TestOverlappingDateRangesCoalesce(t *testing.T) {
	a := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	a.Conditions = []model.Condition{{Type: model.ConditionDateRange, From: "1", To: "5", Confidence: 0.6}}
	b := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	b.Conditions = []model.Condition{{Type: model.ConditionDateRange, From: "4", To: "8", Confidence: 0.9, Value: "brutzeit"}}

	doc := Document("NSG-7100-001", []*model.UnitResult{unitResult("0001", a), unitResult("0002", b)})
	conds := doc.Rules[0].Conditions
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1 coalesced interval", len(conds))
	}
	got := conds[0]
	if got.From != "1" || got.To != "8" {
		t.Errorf("interval = [%s, %s], want [1, 8]", got.From, got.To)
	}
	// Auxiliary fields follow the higher-confidence member.
	if got.Value != "brutzeit" || got.Confidence != 0.9 {
		t.Errorf("aux fields = %q/%v, want brutzeit/0.9", got.Value, got.Confidence)
	}
}

func TestDisjointDateRangesStaySeparate(t *testing.T) {
	a := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	a.Conditions = []model.Condition{{Type: model.ConditionDateRange, From: "5", To: "6"}}
	b := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	b.Conditions = []model.Condition{{Type: model.ConditionDateRange, From: "1", To: "2"}}

	doc := Document("NSG-7100-001", []*model.UnitResult{unitResult("0001", a), unitResult("0002", b)})
	conds := doc.Rules[0].Conditions
	if len(conds) != 2 {
		t.Fatalf("got %d conditions, want 2 disjoint intervals", len(conds))
	}
	if conds[0].From != "1" || conds[1].From != "5" {
		t.Errorf("intervals not in start order: %+v", conds)
	}
}

func TestTimeRangesCoalesceLikeDateRanges(t *testing.T) {
	a := rule("laerm", "gesamtgebiet", "verboten", 0.9)
	a.Conditions = []model.Condition{{Type: model.ConditionTimeRange, From: "06:00", To: "12:00"}}
	b := rule("laerm", "gesamtgebiet", "verboten", 0.9)
	b.Conditions = []model.Condition{{Type: model.ConditionTimeRange, From: "10:00", To: "22:00"}}

	doc := Document("NSG-7100-001", []*model.UnitResult{unitResult("0001", a), unitResult("0002", b)})
	conds := doc.Rules[0].Conditions
	if len(conds) != 1 || conds[0].From != "06:00" || conds[0].To != "22:00" {
		t.Errorf("got %+v, want single interval [06:00, 22:00]", conds)
	}
}

func TestScalarConditionsCollapseOnlyWhenEqual(t *testing.T) {
	same := func(value string) model.Rule {
		r := rule("reiten", "wege", "erlaubt", 0.9)
		r.Conditions = []model.Condition{{Type: "ausnahme", Value: value, Confidence: 0.5}}
		return r
	}

	doc := Document("NSG-7100-001", []*model.UnitResult{
		unitResult("0001", same("jagdrecht")),
		unitResult("0002", same("jagdrecht")),
	})
	if conds := doc.Rules[0].Conditions; len(conds) != 1 {
		t.Errorf("identical scalar values: got %d conditions, want 1", len(conds))
	}

	doc = Document("NSG-7100-001", []*model.UnitResult{
		unitResult("0001", same("jagdrecht")),
		unitResult("0002", same("forstwirtschaft")),
	})
	if conds := doc.Rules[0].Conditions; len(conds) != 2 {
		t.Errorf("distinct scalar values: got %d conditions, want 2", len(conds))
	}
}

func TestCandidateDedupByKey(t *testing.T) {
	withCandidates := func(unitID string, cands ...model.Candidate) *model.UnitResult {
		return &model.UnitResult{
			DocID:      "NSG-7100-001",
			UnitID:     unitID,
			Candidates: map[string][]model.Candidate{"activities": cands},
		}
	}

	doc := Document("NSG-7100-001", []*model.UnitResult{
		withCandidates("0001", model.Candidate{
			Key: "drohnen_steigen_lassen", Original: "Drohnen steigen lassen",
			Quote: "erste Stelle", Confidence: 0.6, WhyNew: "nicht im Katalog",
		}),
		withCandidates("0002", model.Candidate{
			Key: "drohnen_steigen_lassen", Original: "Drohne steigen lassen",
			Quote: "zweite Stelle", Confidence: 0.8, WhyNew: "Fluggerät",
		}),
	})

	cands := doc.Candidates["activities"]
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1 deduplicated", len(cands))
	}
	got := cands[0]
	if got.Confidence != 0.8 {
		t.Errorf("confidence = %v, want max 0.8", got.Confidence)
	}
	if !strings.Contains(got.Quote, "erste Stelle") || !strings.Contains(got.Quote, "zweite Stelle") {
		t.Errorf("quotes not joined: %q", got.Quote)
	}
	if !strings.Contains(got.WhyNew, "nicht im Katalog") || !strings.Contains(got.WhyNew, "Fluggerät") {
		t.Errorf("reasons not joined: %q", got.WhyNew)
	}
}

func TestCandidateQuoteCapped(t *testing.T) {
	long := strings.Repeat("ä", 400) // 800 bytes
	results := []*model.UnitResult{
		{DocID: "d", UnitID: "0001", Candidates: map[string][]model.Candidate{
			"activities": {{Key: "k", Original: "K", Quote: long, Confidence: 0.5}},
		}},
		{DocID: "d", UnitID: "0002", Candidates: map[string][]model.Candidate{
			"activities": {{Key: "k", Original: "K", Quote: long + "x", Confidence: 0.6}},
		}},
	}

	doc := Document("d", results)
	quote := doc.Candidates["activities"][0].Quote
	if len(quote) > 500 {
		t.Errorf("quote length %d exceeds cap", len(quote))
	}
	if !strings.HasPrefix(quote, "ä") {
		t.Error("quote content lost")
	}
	for _, r := range quote {
		if r == '�' {
			t.Fatal("truncation split a rune")
		}
	}
}

func TestMergeOrderIndependence(t *testing.T) {
	a := rule("zelten", "gesamtgebiet", "verboten", 0.7)
	a.Citations = []string{"§ 3"}
	a.Conditions = []model.Condition{{Type: model.ConditionDateRange, From: "1", To: "5"}}
	b := rule("zelten", "gesamtgebiet", "verboten", 0.9)
	b.Citations = []string{"§ 7"}
	b.Conditions = []model.Condition{{Type: model.ConditionDateRange, From: "4", To: "8"}}
	c := rule("reiten", "wege", "erlaubt", 0.8)
	c.Citations = []string{"§ 5"}

	units := []*model.UnitResult{
		unitResult("0001", a),
		unitResult("0002", b),
		unitResult("0003", c),
	}

	want := Document("NSG-7100-001", units)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]*model.UnitResult, len(units))
		copy(shuffled, units)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := Document("NSG-7100-001", shuffled)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: merge depends on unit order:\ngot  %+v\nwant %+v", trial, got, want)
		}
	}
}
