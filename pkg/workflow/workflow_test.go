package workflow

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    Domain
		wantErr bool
	}{
		{"strategy", Strategy, false},
		{"  Marketing ", Marketing, false},
		{"HR", HR, false},
		{"unknown", "", true},
		{"legal", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDomain(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDomain(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDomainsOrderAndCopy(t *testing.T) {
	got := Domains()
	if len(got) != 7 || got[0] != Strategy || got[6] != Finance {
		t.Fatalf("unexpected domain order: %v", got)
	}
	got[0] = "tampered"
	if Domains()[0] != Strategy {
		t.Error("Domains() must return a copy")
	}
	if DomainUnknown.Valid() {
		t.Error("unknown must not be a valid domain")
	}
}

func TestHasEmbedding(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want bool
	}{
		{"nil", nil, false},
		{"short", make([]float32, 3), false},
		{"exact", make([]float32, EmbeddingDimensions), true},
		{"long", make([]float32, EmbeddingDimensions+1), false},
	}
	for _, tt := range tests {
		r := Record{Embedding: tt.vec}
		if got := r.HasEmbedding(); got != tt.want {
			t.Errorf("%s: HasEmbedding() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRecordJSONOmitsMissingEmbedding(t *testing.T) {
	data, err := json.Marshal(Record{Name: "Position Audit", Domain: Strategy})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if strings.Contains(s, "embedding") {
		t.Errorf("expected no embedding key, got %s", s)
	}
	if !strings.Contains(s, `"sub_domain"`) || !strings.Contains(s, `"task_summary"`) {
		t.Errorf("expected snake_case keys, got %s", s)
	}
}

func TestNewMatch(t *testing.T) {
	r := Record{ID: "1", Name: "n", Domain: Sales, FullPrompt: "long prompt"}

	m := NewMatch(r, 0.9, false)
	if m.FullPrompt != "" {
		t.Error("prompt should be omitted")
	}
	if m.KeyQuestions == nil {
		t.Error("key questions should be an empty slice, not nil")
	}

	m = NewMatch(r, 0.9, true)
	if m.FullPrompt != "long prompt" {
		t.Errorf("expected prompt, got %q", m.FullPrompt)
	}
}

func TestClassificationDomains(t *testing.T) {
	c := Classification{
		PrimaryDomain:    Marketing,
		SecondaryDomains: []Domain{Strategy, Marketing, "legal", Sales},
	}
	got := c.Domains()
	want := []Domain{Marketing, Strategy, Sales}
	if len(got) != len(want) {
		t.Fatalf("Domains() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Domains()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if d := DefaultClassification().Domains(); len(d) != 0 {
		t.Errorf("default classification should have no domains, got %v", d)
	}
}

func TestDistribution(t *testing.T) {
	dist := Distribution([]Record{{Domain: Sales}, {Domain: Sales}, {Domain: HR}})
	if dist[Sales] != 2 || dist[HR] != 1 || len(dist) != 2 {
		t.Errorf("unexpected distribution: %v", dist)
	}
}
