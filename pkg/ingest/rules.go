package ingest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xrsl/solvx/pkg/workflow"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules holds the keyword tables and limits used to derive record metadata.
type Rules struct {
	ProblemKeywords []string      `yaml:"problem_keywords"`
	NamePatterns    []NamePattern `yaml:"name_patterns"`
	Synergy         []SynergyRule `yaml:"synergy"`
	Limits          Limits        `yaml:"limits"`
	Complexity      Thresholds    `yaml:"complexity"`
}

type NamePattern struct {
	Contains string   `yaml:"contains"`
	Patterns []string `yaml:"patterns"`
}

type SynergyRule struct {
	Domain   workflow.Domain `yaml:"domain"`
	Keywords []string        `yaml:"keywords"`
}

type Limits struct {
	KeyQuestions         int `yaml:"key_questions"`
	ProblemPatterns      int `yaml:"problem_patterns"`
	SynergyTriggers      int `yaml:"synergy_triggers"`
	SynergyMinHits       int `yaml:"synergy_min_hits"`
	SummaryChars         int `yaml:"summary_chars"`
	FallbackSummaryChars int `yaml:"fallback_summary_chars"`
	MinSummaryChars      int `yaml:"min_summary_chars"`
	MinQuestionChars     int `yaml:"min_question_chars"`
	MinSentenceChars     int `yaml:"min_sentence_chars"`
	MaxSentenceChars     int `yaml:"max_sentence_chars"`
	MaxNameChars         int `yaml:"max_name_chars"`
}

type Thresholds struct {
	HighSteps   int `yaml:"high_steps"`
	HighWords   int `yaml:"high_words"`
	MediumSteps int `yaml:"medium_steps"`
	MediumWords int `yaml:"medium_words"`
}

// DefaultRules returns the embedded rules.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml is invalid: %v", err))
	}
	return r
}

// LoadRules reads rules from path, or returns DefaultRules when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	for i, kw := range r.ProblemKeywords {
		r.ProblemKeywords[i] = strings.ToLower(kw)
	}
	for i := range r.NamePatterns {
		r.NamePatterns[i].Contains = strings.ToLower(r.NamePatterns[i].Contains)
	}
	for i := range r.Synergy {
		for j, kw := range r.Synergy[i].Keywords {
			r.Synergy[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	return &r, nil
}

func (r *Rules) validate() error {
	var errs []error
	for _, s := range r.Synergy {
		if !s.Domain.Valid() {
			errs = append(errs, fmt.Errorf("synergy: unknown domain %q", s.Domain))
		}
	}
	l := r.Limits
	for name, v := range map[string]int{
		"key_questions":          l.KeyQuestions,
		"problem_patterns":       l.ProblemPatterns,
		"synergy_triggers":       l.SynergyTriggers,
		"synergy_min_hits":       l.SynergyMinHits,
		"summary_chars":          l.SummaryChars,
		"fallback_summary_chars": l.FallbackSummaryChars,
		"min_summary_chars":      l.MinSummaryChars,
		"max_sentence_chars":     l.MaxSentenceChars,
		"max_name_chars":         l.MaxNameChars,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s must be positive", name))
		}
	}
	if r.Complexity.HighSteps < r.Complexity.MediumSteps || r.Complexity.HighWords < r.Complexity.MediumWords {
		errs = append(errs, errors.New("complexity: high thresholds must not be below medium thresholds"))
	}
	return errors.Join(errs...)
}
