// Package classify maps a free-text business problem onto the four-layer
// taxonomy (symptoms, challenges, domains, intent) using a completion
// provider.
//
// The instructions sent to the provider are embedded from prompt.md and can
// be overridden by a file on disk (see LoadPrompt). Responses are parsed as
// strict JSON after removing Markdown code fences and validated before they
// are returned; anything else is reported as ErrClassificationFailed so
// callers can fall back to DefaultClassification.
package classify

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xrsl/solvx/pkg/ai"
	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/workflow"
)

//go:embed prompt.md
var DefaultPrompt string

var (
	// ErrClassificationFailed matches every error returned by Classify.
	ErrClassificationFailed = errors.New("classification failed")
	// ErrEmptyProblem is returned for blank input.
	ErrEmptyProblem = errors.New("problem statement is required")
)

// Error describes a failed classification. Raw holds the provider's reply,
// if one was received.
type Error struct {
	Stage string // "input", "complete", "parse" or "validate"
	Raw   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("classification failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrClassificationFailed, e.Err}
}

// DefaultTimeout bounds ClassifyOrDefault.
const DefaultTimeout = 10 * time.Second

type Classifier struct {
	client   ai.Client
	prompt   string
	timeout  time.Duration
	log      *slog.Logger
	validate *validator.Validate
}

type Option func(*Classifier)

// WithPrompt replaces the embedded instructions.
func WithPrompt(prompt string) Option {
	return func(c *Classifier) {
		if strings.TrimSpace(prompt) != "" {
			c.prompt = prompt
		}
	}
}

// WithTimeout sets the deadline used by ClassifyOrDefault.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.log = l }
}

func New(client ai.Client, opts ...Option) *Classifier {
	c := &Classifier{
		client:   client,
		prompt:   DefaultPrompt,
		timeout:  DefaultTimeout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = clog.Component(c.log, "classifier")
	return c
}

// LoadPrompt returns the contents of path when it exists, else DefaultPrompt.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return DefaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %s: %w", path, err)
	}
	return string(data), nil
}

// Input formats the user message sent alongside the instructions.
func Input(problem string) string {
	return "Problem to classify:\n" + problem
}

// Classify calls the provider once and returns a validated classification.
func (c *Classifier) Classify(ctx context.Context, problem string) (workflow.Classification, error) {
	if strings.TrimSpace(problem) == "" {
		return workflow.Classification{}, &Error{Stage: "input", Err: ErrEmptyProblem}
	}

	raw, err := c.client.Complete(ctx, c.prompt, Input(problem))
	if err != nil {
		return workflow.Classification{}, &Error{Stage: "complete", Err: err}
	}

	out, err := c.parse(raw)
	if err != nil {
		return workflow.Classification{}, err
	}
	c.log.Debug("classified problem",
		"primary_domain", out.PrimaryDomain,
		"intent", out.Intent,
		"confidence", out.Confidence,
	)
	return out, nil
}

// ClassifyOrDefault applies the configured timeout and never fails: on any
// error it logs the cause and returns DefaultClassification and false.
func (c *Classifier) ClassifyOrDefault(ctx context.Context, problem string) (workflow.Classification, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.Classify(ctx, problem)
	if err != nil {
		c.log.Warn("classification unavailable, using default", "error", err)
		return workflow.DefaultClassification(), false
	}
	return out, true
}

type response struct {
	Symptoms         *[]string `json:"symptoms" validate:"required"`
	Challenges       *[]string `json:"challenges" validate:"required"`
	PrimaryDomain    string    `json:"primary_domain" validate:"required,oneof=strategy marketing sales operations innovation hr finance"`
	SecondaryDomains []string  `json:"secondary_domains"`
	Intent           string    `json:"intent" validate:"required,oneof=explore decide execute monitor"`
	Confidence       *float64  `json:"confidence" validate:"required,gte=0,lte=1"`
}

func (c *Classifier) parse(raw string) (workflow.Classification, error) {
	var resp response
	if err := json.Unmarshal([]byte(StripFences(raw)), &resp); err != nil {
		return workflow.Classification{}, &Error{Stage: "parse", Raw: raw, Err: err}
	}

	resp.PrimaryDomain = normalize(resp.PrimaryDomain)
	resp.Intent = normalize(resp.Intent)

	if err := c.validate.Struct(resp); err != nil {
		return workflow.Classification{}, &Error{Stage: "validate", Raw: raw, Err: err}
	}

	out := workflow.Classification{
		Symptoms:         nonNil(*resp.Symptoms),
		Challenges:       nonNil(*resp.Challenges),
		PrimaryDomain:    workflow.Domain(resp.PrimaryDomain),
		SecondaryDomains: []workflow.Domain{},
		Intent:           workflow.Intent(resp.Intent),
		Confidence:       *resp.Confidence,
	}
	seen := map[workflow.Domain]bool{out.PrimaryDomain: true}
	for _, s := range resp.SecondaryDomains {
		d := workflow.Domain(normalize(s))
		if !d.Valid() {
			c.log.Warn("dropping unknown secondary domain", "domain", s)
			continue
		}
		if !seen[d] {
			seen[d] = true
			out.SecondaryDomains = append(out.SecondaryDomains, d)
		}
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// StripFences removes a surrounding Markdown code fence (``` or ```json)
// and any text outside the outermost JSON object.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}
