package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeyDeterministic(t *testing.T) {
	tests := []struct {
		name  string
		model string
		dims  int
		text  string
	}{
		{"base", "text-embedding-3-small", 1536, "Positioning workflow"},
		{"different model", "text-embedding-3-large", 1536, "Positioning workflow"},
		{"different dims", "text-embedding-3-small", 512, "Positioning workflow"},
		{"different text", "text-embedding-3-small", 1536, "Pricing workflow"},
	}

	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k1 := Key(tt.model, tt.dims, tt.text)
			k2 := Key(tt.model, tt.dims, tt.text)
			if k1 != k2 {
				t.Errorf("same inputs produced different keys: %s vs %s", k1, k2)
			}
			if len(k1) != 64 {
				t.Errorf("key length = %d, want 64", len(k1))
			}
			if prev, ok := seen[k1]; ok {
				t.Errorf("key collides with %q", prev)
			}
			seen[k1] = tt.name
		})
	}
}

func TestKeySeparatesFields(t *testing.T) {
	if Key("ab", 1, "c") == Key("a", 1, "bc") {
		t.Error("field boundaries must affect the key")
	}
}

func TestDirPutGet(t *testing.T) {
	d := NewDir(t.TempDir())
	key := Key("m", 3, "hello")

	if _, ok := d.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	want := []float32{0.25, -1, 3.5}
	if err := d.Put(key, want); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok := d.Get(key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if filepath.Base(filepath.Dir(d.Path(key))) != key[:2] {
		t.Errorf("entry not sharded: %s", d.Path(key))
	}
}

func TestDirCorruptEntryIsMiss(t *testing.T) {
	d := NewDir(t.TempDir())
	key := Key("m", 3, "x")
	if err := os.MkdirAll(filepath.Dir(d.Path(key)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.Path(key), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get(key); ok {
		t.Error("corrupt entry should be a miss")
	}
}

func TestNewDirExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if got := NewDir("~/vectors").Root(); got != "/home/tester/vectors" {
		t.Errorf("Root() = %q", got)
	}
	if got := NewDir("").Root(); got != "/home/tester/.cache/solvx/embeddings" {
		t.Errorf("Root() = %q", got)
	}
}
