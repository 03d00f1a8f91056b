package cache

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("§ 3 Verboten ist das Zelten.")
	b := Fingerprint("§ 3 Verboten ist das Zelten.")
	c := Fingerprint("§ 4 Erlaubt ist das Wandern.")

	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}
	if a != b {
		t.Error("identical text produced different fingerprints")
	}
	if a == c {
		t.Error("different text produced identical fingerprints")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if _, found := store.Get("NSG-7100-001", "text", "deepseek-chat"); found {
		t.Fatal("unexpected hit on empty store")
	}

	payload := []byte(`{"rules":[]}`)
	if err := store.Put("NSG-7100-001", "text", "deepseek-chat", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found := store.Get("NSG-7100-001", "text", "deepseek-chat")
	if !found {
		t.Fatal("expected hit after put")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %s, want %s", got, payload)
	}
}

func TestSQLiteStoreKeyIsolation(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.Put("doc-a", "same text", "deepseek-chat", []byte("a")); err != nil {
		t.Fatal(err)
	}

	// Different document, same text.
	if _, found := store.Get("doc-b", "same text", "deepseek-chat"); found {
		t.Error("hit across document boundary")
	}
	// Same document, different model.
	if _, found := store.Get("doc-a", "same text", "deepseek-reasoner"); found {
		t.Error("hit across model boundary")
	}
	// Same document, different text.
	if _, found := store.Get("doc-a", "other text", "deepseek-chat"); found {
		t.Error("hit across content boundary")
	}
}

func TestSQLiteStoreUpsert(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.Put("doc", "text", "m", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("doc", "text", "m", []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get("doc", "text", "m")
	if string(got) != "second" {
		t.Errorf("got %s, want second (last writer wins)", got)
	}
}

func TestSQLiteStoreConcurrentWriters(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", i%4)
			text := fmt.Sprintf("unit text %d", i)
			if err := store.Put(doc, text, "deepseek-chat", []byte("r")); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent put: %v", err)
	}
}

func TestLayeredStorePromotion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")

	// Seed the durable layer directly.
	disk, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := disk.Put("doc", "text", "m", []byte("seeded")); err != nil {
		t.Fatal(err)
	}
	disk.Close()

	layered, err := NewLayeredStore(path, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer layered.Close()

	got, found := layered.Get("doc", "text", "m")
	if !found || string(got) != "seeded" {
		t.Fatalf("durable entry not visible through layered store: %q %v", got, found)
	}

	// Second read must come from the memory layer.
	if val, found := layered.memory.Get("doc", "text", "m"); !found || string(val) != "seeded" {
		t.Error("hit was not promoted to memory layer")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	defer store.Close()

	if err := store.Put("doc", "text", "m", []byte("v")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, found := store.Get("doc", "text", "m"); found {
		t.Error("entry survived past TTL")
	}
}
