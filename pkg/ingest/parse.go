package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	clog "github.com/xrsl/solvx/pkg/log"
	"github.com/xrsl/solvx/pkg/workflow"
)

// UnknownSource is the source_book of units with no preceding section header.
const UnknownSource = "Unknown Source"

var (
	// ErrNoSourceFiles is returned when the source tree holds no readable files.
	ErrNoSourceFiles = errors.New("no source files found")
	// ErrNoRecords is returned when parsing produced no workflow records.
	ErrNoRecords = errors.New("no workflows parsed")
)

// FileError is a per-file failure collected during parsing.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// ParseReport is the outcome of parsing a source tree.
type ParseReport struct {
	Records   []workflow.Record
	Files     int
	Errors    []FileError
	Unknown   []string // files whose domain could not be determined
	Discarded int      // units dropped for a too-short task summary
}

// Parser turns workflow documents into records.
type Parser struct {
	rules *Rules
	log   *slog.Logger
}

type ParserOption func(*Parser)

// WithRules replaces the embedded heuristics.
func WithRules(r *Rules) ParserOption {
	return func(p *Parser) {
		if r != nil {
			p.rules = r
		}
	}
}

func WithParserLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) { p.log = l }
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{rules: DefaultRules()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = clog.Component(p.log, "parser")
	return p
}

// Parse discovers and parses every source file under root. Files that fail
// to read are recorded in the report and skipped.
func (p *Parser) Parse(ctx context.Context, root string) (*ParseReport, error) {
	sources, err := Discover(root)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSourceFiles, root)
	}

	report := &ParseReport{Records: []workflow.Record{}, Files: len(sources)}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		text, err := ReadSource(src.Path)
		if err != nil {
			p.log.Warn("failed to read source", "path", src.Path, "error", err)
			report.Errors = append(report.Errors, FileError{Path: src.Path, Err: err})
			continue
		}
		if src.Domain == workflow.DomainUnknown {
			report.Unknown = append(report.Unknown, src.Path)
		}

		records, discarded := p.ParseDocument(text, src)
		p.log.Debug("parsed source", "path", src.Path, "domain", src.Domain,
			"workflows", len(records), "discarded", discarded)
		report.Records = append(report.Records, records...)
		report.Discarded += discarded
	}
	return report, nil
}

// unit is one workflow's span of tokens.
type unit struct {
	name   string
	source string
	tokens []token
	// fallback marks a whole document parsed without task markers.
	fallback bool
}

// ParseDocument splits text into workflow units and extracts a record from
// each. Units whose task summary is too short are discarded and counted.
func (p *Parser) ParseDocument(text string, src Source) ([]workflow.Record, int) {
	tokens := lex(cleanText(text))
	units := p.split(tokens, src)

	records := make([]workflow.Record, 0, len(units))
	discarded := 0
	for _, u := range units {
		rec := p.extract(u, src)
		if utf8.RuneCountInString(rec.TaskSummary) < p.rules.Limits.MinSummaryChars {
			discarded++
			continue
		}
		records = append(records, rec)
	}
	return records, discarded
}

func (p *Parser) split(tokens []token, src Source) []unit {
	var tasks []int
	sources := make(map[int]string)
	current := UnknownSource
	for i, t := range tokens {
		switch t.kind {
		case tokSectionHeader:
			current = sourceName(t.value)
		case tokTask:
			tasks = append(tasks, i)
			sources[i] = current
		}
	}

	if len(tasks) == 0 {
		return []unit{{
			name:     fileTitle(src.Path),
			source:   current,
			tokens:   tokens,
			fallback: true,
		}}
	}

	units := make([]unit, 0, len(tasks))
	for n, start := range tasks {
		lower := 0
		if n > 0 {
			lower = tasks[n-1] + 1
		}
		end := len(tokens)
		if n+1 < len(tasks) {
			end = preambleStart(tokens, tasks[n+1], start+1)
		}

		name := p.findName(tokens, lower, start)
		if name == "" {
			name = fmt.Sprintf("%s Workflow %d", src.Domain, n+1)
		}
		units = append(units, unit{
			name:   name,
			source: sources[start],
			tokens: tokens[start:end],
		})
	}
	return units
}

// preambleStart walks back from a task marker over the title lines that
// introduce it, so they are not counted as part of the previous unit.
func preambleStart(tokens []token, task, lower int) int {
	i := task
	for i > lower && isPreamble(tokens[i-1].kind) {
		i--
	}
	return i
}

func isPreamble(k tokenKind) bool {
	switch k {
	case tokBlank, tokBold, tokTitle, tokSectionHeader:
		return true
	}
	return false
}

// findName returns the closest acceptable bold or heading title within the
// 500 characters preceding a task marker.
func (p *Parser) findName(tokens []token, lower, task int) string {
	const window = 500
	seen := 0
	for i := task - 1; i >= lower && seen <= window; i-- {
		t := tokens[i]
		seen += len(t.line) + 1
		if t.kind != tokBold && t.kind != tokTitle {
			continue
		}
		name := strings.TrimSpace(t.value)
		if name == "" || strings.Contains(name, "—") || strings.Contains(name, "--") {
			continue
		}
		if utf8.RuneCountInString(name) >= p.rules.Limits.MaxNameChars {
			continue
		}
		return name
	}
	return ""
}

func (p *Parser) extract(u unit, src Source) workflow.Record {
	body := joinLines(u.tokens)

	rec := workflow.Record{
		Name:            collapseSpace(u.name),
		Domain:          src.Domain,
		SubDomain:       src.SubDomain,
		SourceBook:      u.source,
		TaskSummary:     p.summary(u, body),
		FullPrompt:      body,
		KeyQuestions:    p.keyQuestions(u.tokens, body),
		ProblemPatterns: p.problemPatterns(u.name, u.tokens),
		SynergyTriggers: p.synergyTriggers(src.Domain, body),
		Complexity:      p.complexity(u.tokens, body),
		FilePath:        src.Path,
	}
	for _, t := range u.tokens {
		if t.kind == tokDuration {
			if v, err := strconv.Atoi(t.value); err == nil {
				rec.EstimatedDurationMin = &v
			}
			break
		}
	}
	return rec
}

// summary is the text between the task marker and the first step or section
// heading. Only units without a task marker fall back to the start of the
// body; an empty task section yields "" and the unit is discarded.
func (p *Parser) summary(u unit, body string) string {
	if !u.fallback {
		var parts []string
		if v := u.tokens[0].value; v != "" {
			parts = append(parts, v)
		}
		var lines []token
		for _, t := range u.tokens[1:] {
			if t.kind == tokStep || t.kind == tokSection {
				break
			}
			if t.kind == tokContext || t.kind == tokDuration {
				continue
			}
			lines = append(lines, t)
		}
		if s := joinLines(lines); s != "" {
			parts = append(parts, s)
		}
		return truncate(strings.TrimSpace(strings.Join(parts, "\n")), p.rules.Limits.SummaryChars)
	}
	return strings.TrimSpace(truncate(body, p.rules.Limits.FallbackSummaryChars))
}

var (
	askPrefixRe = regexp.MustCompile(`(?i)^ask\s+(?:me\s+)?(?:for|about|to|what|how|which|if)\b\s*`)
	askWordRe   = regexp.MustCompile(`(?i)\bask\b`)
	askQuoteRe  = regexp.MustCompile(`(?i)\bask\b[,:]?[ \t]*["'“]?([^"'“”\n]+\?)`)
)

func (p *Parser) keyQuestions(tokens []token, body string) []string {
	minChars := p.rules.Limits.MinQuestionChars
	var qs []string

	for _, t := range tokens {
		if t.kind != tokContext || !askWordRe.MatchString(t.value) {
			continue
		}
		q := strings.TrimSpace(askPrefixRe.ReplaceAllString(t.value, ""))
		q = strings.TrimRight(q, ".?! ")
		if utf8.RuneCountInString(q) <= minChars {
			continue
		}
		qs = append(qs, capitalize(q)+"?")
	}

	for _, m := range askQuoteRe.FindAllStringSubmatch(body, -1) {
		q := strings.TrimSpace(m[1])
		if utf8.RuneCountInString(q) > minChars {
			qs = append(qs, q)
		}
	}

	return limit(dedupe(qs), p.rules.Limits.KeyQuestions)
}

var sentenceRe = regexp.MustCompile(`[.!?]+`)

func (p *Parser) problemPatterns(name string, tokens []token) []string {
	l := p.rules.Limits
	var patterns []string

	for _, t := range tokens {
		if t.kind != tokText {
			continue
		}
		for _, s := range sentenceRe.Split(t.line, -1) {
			s = collapseSpace(strings.Trim(s, "*_ \t"))
			n := utf8.RuneCountInString(s)
			if n <= l.MinSentenceChars || n >= l.MaxSentenceChars {
				continue
			}
			lower := strings.ToLower(s)
			for _, kw := range p.rules.ProblemKeywords {
				if strings.Contains(lower, kw) {
					patterns = append(patterns, s)
					break
				}
			}
		}
	}

	lowerName := strings.ToLower(name)
	for _, np := range p.rules.NamePatterns {
		if np.Contains != "" && strings.Contains(lowerName, np.Contains) {
			patterns = append(patterns, np.Patterns...)
		}
	}

	return limit(dedupe(patterns), l.ProblemPatterns)
}

func (p *Parser) synergyTriggers(own workflow.Domain, body string) []workflow.Domain {
	lower := strings.ToLower(body)
	keywords := make(map[workflow.Domain][]string, len(p.rules.Synergy))
	for _, r := range p.rules.Synergy {
		keywords[r.Domain] = append(keywords[r.Domain], r.Keywords...)
	}

	triggers := []workflow.Domain{}
	for _, d := range workflow.Domains() {
		if d == own {
			continue
		}
		hits := 0
		for _, kw := range keywords[d] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits >= p.rules.Limits.SynergyMinHits {
			triggers = append(triggers, d)
		}
		if len(triggers) == p.rules.Limits.SynergyTriggers {
			break
		}
	}
	return triggers
}

func (p *Parser) complexity(tokens []token, body string) workflow.Complexity {
	steps := 0
	for _, t := range tokens {
		if t.kind == tokStep {
			steps++
		}
	}
	words := len(strings.Fields(body))

	c := p.rules.Complexity
	switch {
	case steps > c.HighSteps || words > c.HighWords:
		return workflow.High
	case steps > c.MediumSteps || words > c.MediumWords:
		return workflow.Medium
	default:
		return workflow.Low
	}
}

// sourceName turns "Positioning -- Al Ries" into "Positioning by Al Ries".
func sourceName(s string) string {
	s = strings.NewReplacer("—", " by ", "--", " by ").Replace(s)
	return collapseSpace(s)
}

// fileTitle turns "category-design_notes.md" into "category design notes".
func fileTitle(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return collapseSpace(strings.NewReplacer("-", " ", "_", " ").Replace(base))
}

// joinLines joins the raw lines of tokens, trimming the result and
// collapsing runs of blank lines.
func joinLines(tokens []token) string {
	var b strings.Builder
	blank := false
	for _, t := range tokens {
		if t.kind == tokBlank {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
			if blank {
				b.WriteByte('\n')
			}
		}
		blank = false
		b.WriteString(strings.TrimRightFunc(t.line, unicode.IsSpace))
	}
	return strings.TrimSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func limit(vals []string, n int) []string {
	if len(vals) > n {
		return vals[:n]
	}
	return vals
}
