package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	ResetForTest(t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if c.Agent != "claude-haiku-4-5" {
		t.Errorf("Expected default agent 'claude-haiku-4-5', got '%s'", c.Agent)
	}
	if c.Embedding.Model != "text-embedding-3-small" || c.Embedding.Dimensions != 1536 {
		t.Errorf("unexpected embedding defaults: %+v", c.Embedding)
	}
	if c.Corpus.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %q", c.Corpus.Driver)
	}
	if c.Ingest.EmbedBatchSize != 20 || c.Ingest.LoadBatchSize != 50 {
		t.Errorf("unexpected batch sizes: %+v", c.Ingest)
	}
	if c.Ingest.RateLimitWait != time.Minute || c.Ingest.BatchPause != 500*time.Millisecond {
		t.Errorf("unexpected ingest timings: %+v", c.Ingest)
	}
}

func TestDefaultProfiles(t *testing.T) {
	ResetForTest(t.TempDir())
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		threshold float64
		limit     int
	}{
		{ProfileConversation, 0.65, 3},
		{ProfileDocument, 0.65, 4},
		{ProfileSearch, 0.70, 3},
		{ProfileVerify, 0.50, 5},
	}
	for _, tt := range tests {
		p, err := c.Profile(tt.name)
		if err != nil {
			t.Errorf("Profile(%q) error: %v", tt.name, err)
			continue
		}
		if p.Threshold != tt.threshold || p.Limit != tt.limit {
			t.Errorf("Profile(%q) = %+v, want %v/%d", tt.name, p, tt.threshold, tt.limit)
		}
	}

	if _, err := c.Profile("nope"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestSetAndGet(t *testing.T) {
	dir := t.TempDir()
	ResetForTest(dir)

	if err := Set("agent", "gemini-2.5-flash"); err != nil {
		t.Fatalf("Set agent error: %v", err)
	}
	if err := Set("match.profiles.search.threshold", "0.8"); err != nil {
		t.Fatalf("Set threshold error: %v", err)
	}
	if err := Set("ingest.rate_limit_wait", "30s"); err != nil {
		t.Fatalf("Set duration error: %v", err)
	}

	// Reload from file
	ResetForTest(dir)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	agent, err := Get("agent")
	if err != nil {
		t.Fatalf("Get agent error: %v", err)
	}
	if agent != "gemini-2.5-flash" {
		t.Errorf("Expected agent 'gemini-2.5-flash', got '%s'", agent)
	}

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := c.Profile(ProfileSearch)
	if p.Threshold != 0.8 || p.Limit != 3 {
		t.Errorf("expected search profile 0.8/3, got %+v", p)
	}
	if c.Ingest.RateLimitWait != 30*time.Second {
		t.Errorf("expected 30s, got %v", c.Ingest.RateLimitWait)
	}

	data, err := os.ReadFile(Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "embedding") {
		t.Errorf("defaults should not be written to file:\n%s", data)
	}
}

func TestSetInvalid(t *testing.T) {
	ResetForTest(t.TempDir())

	tests := []struct {
		key, value string
	}{
		{"invalid_key", "value"},
		{"ingest.embed_batch_size", "zero"},
		{"ingest.embed_batch_size", "-1"},
		{"match.profiles.search.threshold", "1.5"},
		{"ingest.batch_pause", "soon"},
		{"corpus.driver", "mysql"},
	}
	for _, tt := range tests {
		if err := Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%q, %q) expected error", tt.key, tt.value)
		}
	}
}

func TestGetInvalidKey(t *testing.T) {
	ResetForTest(t.TempDir())

	if _, err := Get("invalid_key"); err == nil {
		t.Error("Expected error for invalid key, got nil")
	}
}

func TestEnvOverride(t *testing.T) {
	ResetForTest(t.TempDir())
	t.Setenv("SOLVX_CORPUS_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/solvx")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Corpus.Driver != "postgres" {
		t.Errorf("expected env driver override, got %q", c.Corpus.Driver)
	}
	if c.Corpus.DSN != "postgres://localhost/solvx" {
		t.Errorf("expected DATABASE_URL, got %q", c.Corpus.DSN)
	}
}

func TestEnvCredential(t *testing.T) {
	t.Setenv("SOLVX_TEST_KEY", "")
	if _, err := Env("SOLVX_TEST_KEY"); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
	t.Setenv("SOLVX_TEST_KEY", " sk-123 ")
	got, err := Env("SOLVX_TEST_KEY")
	if err != nil || got != "sk-123" {
		t.Errorf("Env() = %q, %v", got, err)
	}
}

func TestKeysSorted(t *testing.T) {
	k := Keys()
	for i := 1; i < len(k); i++ {
		if k[i-1] > k[i] {
			t.Fatalf("keys not sorted at %d: %q > %q", i, k[i-1], k[i])
		}
	}
}
