package orchestrate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kerimala/MKUEMRLP/internal/cache"
	"github.com/kerimala/MKUEMRLP/internal/extract"
	"github.com/kerimala/MKUEMRLP/internal/model"
)

const (
	emptyRaw = `{"rules":[],"new_candidates":{}}`

	confidentRaw = `{"rules":[{"activity":"zelten","place":"gesamtgebiet","permission":"verboten","citations":["§ 3"],"confidence":0.9}],
		"new_candidates":{"activities":[{"key_snake":"grillen","original":"Grillen","quote":"q","confidence":0.9,"decision":"ADD_NEW"}]}}`

	unsureRaw = `{"rules":[],"new_candidates":{"activities":[{"key_snake":"drohnen_steigen_lassen","original":"Drohnen steigen lassen","quote":"q","confidence":0.5}]}}`

	reasonerRaw = `{"rules":[{"activity":"drohnen_steigen_lassen","place":"gesamtgebiet","permission":"verboten","citations":["§ 4"],"confidence":0.95}],
		"new_candidates":{}}`
)

// fakeExtractor serves canned raw responses keyed by unit and model and
// records every live call.
type fakeExtractor struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string
	errs      map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, unit model.TextUnit, instructions, modelName string) (*model.UnitResult, []byte, error) {
	key := unit.UnitID + "/" + modelName
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if err := f.errs[key]; err != nil {
		return nil, nil, err
	}
	raw, ok := f.responses[key]
	if !ok {
		raw = emptyRaw
	}
	result, err := extract.ParseContent(unit, []byte(raw))
	if err != nil {
		return nil, nil, err
	}
	return result, []byte(raw), nil
}

func (f *fakeExtractor) callCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Concurrency.Workers = 2
	cfg.Concurrency.RequestsPerSecond = 0 // no limiter in tests
	return cfg
}

func unitWith(id string) model.TextUnit {
	return model.TextUnit{DocID: "NSG-7100-001", UnitID: id, Text: "§ " + id + " text"}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"fast", "thorough", "adaptive"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q): %v", valid, err)
		}
	}
	if _, err := ParseMode("turbo"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestFastModeUsesChatModelOnly(t *testing.T) {
	ext := &fakeExtractor{responses: map[string]string{"0001/deepseek-chat": unsureRaw}}
	orch := New(ext, nil, testConfig(), Options{Mode: ModeFast})

	outcomes, stats := orch.Process(context.Background(), []model.TextUnit{unitWith("0001")})
	if outcomes[0].Err != nil {
		t.Fatalf("process: %v", outcomes[0].Err)
	}
	// Weak candidates must not escalate outside adaptive mode.
	if got := ext.callCount("deepseek-reasoner"); got != 0 {
		t.Errorf("%d reasoner calls in fast mode, want 0", got)
	}
	if stats.LiveCalls != 1 {
		t.Errorf("live calls = %d, want 1", stats.LiveCalls)
	}
}

func TestThoroughModeUsesReasonerDirectly(t *testing.T) {
	ext := &fakeExtractor{responses: map[string]string{"0001/deepseek-reasoner": reasonerRaw}}
	orch := New(ext, nil, testConfig(), Options{Mode: ModeThorough})

	outcomes, _ := orch.Process(context.Background(), []model.TextUnit{unitWith("0001")})
	if outcomes[0].Err != nil {
		t.Fatalf("process: %v", outcomes[0].Err)
	}
	if got := ext.callCount("deepseek-chat"); got != 0 {
		t.Errorf("%d chat calls in thorough mode, want 0", got)
	}
	if len(outcomes[0].Result.Rules) != 1 {
		t.Error("reasoner result not returned")
	}
}

func TestAdaptiveEscalatesOnWeakCandidate(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	defer store.Close()

	unit := unitWith("0001")
	ext := &fakeExtractor{responses: map[string]string{
		"0001/deepseek-chat":     unsureRaw,
		"0001/deepseek-reasoner": reasonerRaw,
	}}
	orch := New(ext, store, testConfig(), Options{Mode: ModeAdaptive})

	outcomes, stats := orch.Process(context.Background(), []model.TextUnit{unit})
	if outcomes[0].Err != nil {
		t.Fatalf("process: %v", outcomes[0].Err)
	}

	if got := ext.callCount("deepseek-reasoner"); got != 1 {
		t.Errorf("%d reasoner calls, want exactly 1", got)
	}
	if stats.Escalations != 1 {
		t.Errorf("escalations = %d, want 1", stats.Escalations)
	}
	// The expensive result replaces the cheap one.
	result := outcomes[0].Result
	if len(result.Rules) != 1 || result.Rules[0].Activity != "drohnen_steigen_lassen" {
		t.Errorf("final result is not the reasoner's: %+v", result)
	}
	// Both responses cached under their own model keys.
	if raw, found := store.Get(unit.DocID, unit.Text, "deepseek-reasoner"); !found || !bytes.Equal(raw, []byte(reasonerRaw)) {
		t.Error("reasoner response not cached under the reasoner key")
	}
	if _, found := store.Get(unit.DocID, unit.Text, "deepseek-chat"); !found {
		t.Error("chat response not cached under the chat key")
	}
}

func TestAdaptiveSkipsEscalationWhenConfident(t *testing.T) {
	ext := &fakeExtractor{responses: map[string]string{"0001/deepseek-chat": confidentRaw}}
	orch := New(ext, nil, testConfig(), Options{Mode: ModeAdaptive})

	_, stats := orch.Process(context.Background(), []model.TextUnit{unitWith("0001")})
	if got := ext.callCount("deepseek-reasoner"); got != 0 {
		t.Errorf("%d reasoner calls for confident result, want 0", got)
	}
	if stats.Escalations != 0 {
		t.Errorf("escalations = %d, want 0", stats.Escalations)
	}
}

func TestAdaptiveEscalatesOnUnsureDecision(t *testing.T) {
	raw := `{"rules":[],"new_candidates":{"activities":[{"key_snake":"x","original":"X","quote":"q","confidence":0.9,"decision":"UNSURE"}]}}`
	ext := &fakeExtractor{responses: map[string]string{
		"0001/deepseek-chat":     raw,
		"0001/deepseek-reasoner": reasonerRaw,
	}}
	orch := New(ext, nil, testConfig(), Options{Mode: ModeAdaptive})

	_, stats := orch.Process(context.Background(), []model.TextUnit{unitWith("0001")})
	if stats.Escalations != 1 {
		t.Errorf("escalations = %d, want 1 for UNSURE decision", stats.Escalations)
	}
}

func TestEscalationFailureKeepsCheapResult(t *testing.T) {
	ext := &fakeExtractor{
		responses: map[string]string{"0001/deepseek-chat": unsureRaw},
		errs:      map[string]error{"0001/deepseek-reasoner": errors.New("boom")},
	}
	orch := New(ext, nil, testConfig(), Options{Mode: ModeAdaptive})

	outcomes, stats := orch.Process(context.Background(), []model.TextUnit{unitWith("0001")})
	if outcomes[0].Err != nil {
		t.Fatalf("unit failed despite usable cheap result: %v", outcomes[0].Err)
	}
	if len(outcomes[0].Result.Candidates["activities"]) != 1 {
		t.Error("cheap result lost")
	}
	if stats.Failures != 0 {
		t.Errorf("failures = %d, want 0", stats.Failures)
	}
}

func TestWarmCacheSecondRunIsOffline(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	defer store.Close()

	units := []model.TextUnit{unitWith("0001"), unitWith("0002"), unitWith("0003")}
	ext := &fakeExtractor{responses: map[string]string{"0001/deepseek-chat": confidentRaw}}

	first := New(ext, store, testConfig(), Options{Mode: ModeFast})
	firstOutcomes, firstStats := first.Process(context.Background(), units)
	if firstStats.LiveCalls != 3 {
		t.Fatalf("first run live calls = %d, want 3", firstStats.LiveCalls)
	}

	second := New(ext, store, testConfig(), Options{Mode: ModeFast})
	secondOutcomes, secondStats := second.Process(context.Background(), units)
	if secondStats.LiveCalls != 0 {
		t.Errorf("second run live calls = %d, want 0", secondStats.LiveCalls)
	}
	if secondStats.CacheHits != 3 {
		t.Errorf("second run cache hits = %d, want 3", secondStats.CacheHits)
	}
	for i := range units {
		if firstOutcomes[i].Err != nil || secondOutcomes[i].Err != nil {
			t.Fatalf("unit %d failed", i)
		}
		if len(firstOutcomes[i].Result.Rules) != len(secondOutcomes[i].Result.Rules) {
			t.Errorf("unit %d: cached replay differs from live result", i)
		}
	}
}

func TestForceBypassesCacheReads(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	defer store.Close()

	units := []model.TextUnit{unitWith("0001")}
	ext := &fakeExtractor{responses: map[string]string{"0001/deepseek-chat": confidentRaw}}

	warm := New(ext, store, testConfig(), Options{Mode: ModeFast})
	warm.Process(context.Background(), units)

	forced := New(ext, store, testConfig(), Options{Mode: ModeFast, Force: true})
	_, stats := forced.Process(context.Background(), units)
	if stats.LiveCalls != 1 {
		t.Errorf("forced run live calls = %d, want 1", stats.LiveCalls)
	}
	if stats.CacheHits != 0 {
		t.Errorf("forced run cache hits = %d, want 0", stats.CacheHits)
	}
}

func TestFailedUnitDoesNotAbortBatch(t *testing.T) {
	units := []model.TextUnit{unitWith("0001"), unitWith("0002"), unitWith("0003")}
	ext := &fakeExtractor{
		responses: map[string]string{"0001/deepseek-chat": confidentRaw},
		errs:      map[string]error{"0002/deepseek-chat": errors.New("permanent failure")},
	}
	orch := New(ext, nil, testConfig(), Options{Mode: ModeFast})

	outcomes, stats := orch.Process(context.Background(), units)
	if stats.Failures != 1 {
		t.Errorf("failures = %d, want 1", stats.Failures)
	}
	if outcomes[1].Err == nil {
		t.Error("failed unit not recorded")
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Error("healthy units affected by the failing one")
	}
}
