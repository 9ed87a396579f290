package workflow

import (
	"fmt"
	"strings"
)

// EmbeddingDimensions is the vector size of every stored embedding.
const EmbeddingDimensions = 1536

// Domain is a business domain.
type Domain string

const (
	Strategy   Domain = "strategy"
	Marketing  Domain = "marketing"
	Sales      Domain = "sales"
	Operations Domain = "operations"
	Innovation Domain = "innovation"
	HR         Domain = "hr"
	Finance    Domain = "finance"

	DomainUnknown Domain = "unknown"
)

var domains = []Domain{Strategy, Marketing, Sales, Operations, Innovation, HR, Finance}

// Domains returns the valid domains in their canonical order.
func Domains() []Domain {
	out := make([]Domain, len(domains))
	copy(out, domains)
	return out
}

// Valid reports whether d is one of the seven business domains.
func (d Domain) Valid() bool {
	for _, v := range domains {
		if d == v {
			return true
		}
	}
	return false
}

func (d Domain) String() string { return string(d) }

// ParseDomain normalizes s and returns the matching domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown domain %q (valid: %s)", s, strings.Join(DomainNames(), ", "))
	}
	return d, nil
}

// ParseDomains parses a list of domain names, failing on the first invalid one.
func ParseDomains(names []string) ([]Domain, error) {
	out := make([]Domain, 0, len(names))
	for _, n := range names {
		d, err := ParseDomain(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DomainNames returns the valid domain names.
func DomainNames() []string {
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = string(d)
	}
	return names
}

// Intent is what the user wants to do with a problem.
type Intent string

const (
	Explore Intent = "explore"
	Decide  Intent = "decide"
	Execute Intent = "execute"
	Monitor Intent = "monitor"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case Explore, Decide, Execute, Monitor:
		return true
	}
	return false
}

// Complexity is a coarse estimate of workflow size.
type Complexity string

const (
	Low    Complexity = "low"
	Medium Complexity = "medium"
	High   Complexity = "high"
)

// Valid reports whether c is a known complexity level.
func (c Complexity) Valid() bool {
	return c == Low || c == Medium || c == High
}

// Record is a workflow template.
type Record struct {
	ID                   string     `json:"id,omitempty"`
	Name                 string     `json:"name"`
	Domain               Domain     `json:"domain"`
	SubDomain            string     `json:"sub_domain"`
	SourceBook           string     `json:"source_book"`
	TaskSummary          string     `json:"task_summary"`
	FullPrompt           string     `json:"full_prompt"`
	KeyQuestions         []string   `json:"key_questions"`
	ProblemPatterns      []string   `json:"problem_patterns"`
	SynergyTriggers      []Domain   `json:"synergy_triggers"`
	Complexity           Complexity `json:"complexity"`
	EstimatedDurationMin *int       `json:"estimated_duration_min,omitempty"`
	FilePath             string     `json:"file_path,omitempty"`
	Embedding            []float32  `json:"embedding,omitempty"`
}

// Key identifies a record for deduplication.
type Key struct {
	Name   string
	Domain Domain
}

func (k Key) String() string { return string(k.Domain) + "/" + k.Name }

// Key returns the record's (name, domain) dedup key.
func (r Record) Key() Key {
	return Key{Name: r.Name, Domain: r.Domain}
}

// HasEmbedding reports whether r carries a vector of the expected size.
func (r Record) HasEmbedding() bool {
	return len(r.Embedding) == EmbeddingDimensions
}

// Match is a ranked search result handed to downstream consumers.
type Match struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Domain       Domain   `json:"domain"`
	SubDomain    string   `json:"sub_domain"`
	TaskSummary  string   `json:"task_summary"`
	FullPrompt   string   `json:"full_prompt,omitempty"`
	KeyQuestions []string `json:"key_questions"`
	Similarity   float64  `json:"similarity"`
}

// NewMatch converts a record and its similarity into a Match.
func NewMatch(r Record, similarity float64, includePrompt bool) Match {
	m := Match{
		ID:           r.ID,
		Name:         r.Name,
		Domain:       r.Domain,
		SubDomain:    r.SubDomain,
		TaskSummary:  r.TaskSummary,
		KeyQuestions: r.KeyQuestions,
		Similarity:   similarity,
	}
	if m.KeyQuestions == nil {
		m.KeyQuestions = []string{}
	}
	if includePrompt {
		m.FullPrompt = r.FullPrompt
	}
	return m
}

// Distribution counts records per domain.
func Distribution(records []Record) map[Domain]int {
	dist := make(map[Domain]int)
	for _, r := range records {
		dist[r.Domain]++
	}
	return dist
}
