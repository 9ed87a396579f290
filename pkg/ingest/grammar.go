package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokBlank
	tokSectionHeader // "3. __Positioning -- Al Ries__": source attribution
	tokBold          // a line holding only __x__ or **x**
	tokTitle         // a mixed-case heading such as "## Category Design"
	tokTask          // "# TASK"
	tokStep          // "# STEP 2"
	tokSection       // any other all-caps heading ("# INTRODUCTION")
	tokContext       // "// Context: ..."
	tokDuration      // "Estimated time: 45 min"
)

func (k tokenKind) String() string {
	switch k {
	case tokBlank:
		return "blank"
	case tokSectionHeader:
		return "section-header"
	case tokBold:
		return "bold"
	case tokTitle:
		return "title"
	case tokTask:
		return "task"
	case tokStep:
		return "step"
	case tokSection:
		return "section"
	case tokContext:
		return "context"
	case tokDuration:
		return "duration"
	default:
		return "text"
	}
}

type token struct {
	kind  tokenKind
	value string // payload: title, context text, minutes, text after TASK
	line  string // raw line
}

var (
	contextRe       = regexp.MustCompile(`(?i)^\s*//\s*context:\s*(.+?)\s*$`)
	headingRe       = regexp.MustCompile(`^\s*#{1,6}\s*(.*?)\s*#*\s*$`)
	taskRe          = regexp.MustCompile(`(?i)^task\b[\s:.\-]*(.*)$`)
	stepRe          = regexp.MustCompile(`(?i)^step\s*\d`)
	sectionHeaderRe = regexp.MustCompile(`^\s*\d+\.\s+(?:__(.+?)__|\*\*(.+?)\*\*)\s*$`)
	boldRe          = regexp.MustCompile(`^\s*(?:__([^_\n]+)__|\*\*([^*\n]+)\*\*)\s*$`)
	durationRe      = regexp.MustCompile(`(?i)^\s*(?:estimated\s+)?(?:time|duration)\s*:\s*~?\s*(\d+)\s*(minutes?|mins?|m|hours?|hrs?|h)\b`)
)

var escapeReplacer = strings.NewReplacer(
	`\.`, ".",
	`\-`, "-",
	`\_`, "_",
	`\'`, "'",
	`\"`, `"`,
	"\r\n", "\n",
	"\r", "\n",
)

// cleanText removes Markdown escapes left by document converters,
// normalizes line endings and trims.
func cleanText(s string) string {
	return strings.TrimSpace(escapeReplacer.Replace(s))
}

// lex splits cleaned document text into one token per line.
func lex(text string) []token {
	lines := strings.Split(text, "\n")
	tokens := make([]token, 0, len(lines))
	for _, line := range lines {
		tokens = append(tokens, classifyLine(line))
	}
	return tokens
}

func classifyLine(line string) token {
	t := token{kind: tokText, line: line}

	if strings.TrimSpace(line) == "" {
		t.kind = tokBlank
		return t
	}
	if m := contextRe.FindStringSubmatch(line); m != nil {
		t.kind, t.value = tokContext, m[1]
		return t
	}
	if m := headingRe.FindStringSubmatch(line); m != nil && m[1] != "" {
		heading := m[1]
		switch {
		case taskRe.MatchString(heading):
			t.kind, t.value = tokTask, strings.TrimSpace(taskRe.FindStringSubmatch(heading)[1])
		case stepRe.MatchString(heading):
			t.kind, t.value = tokStep, heading
		case isUpper(heading):
			t.kind, t.value = tokSection, heading
		default:
			t.kind, t.value = tokTitle, stripEmphasis(heading)
		}
		return t
	}
	if m := sectionHeaderRe.FindStringSubmatch(line); m != nil {
		t.kind, t.value = tokSectionHeader, firstNonEmpty(m[1], m[2])
		return t
	}
	if m := boldRe.FindStringSubmatch(line); m != nil {
		t.kind, t.value = tokBold, strings.TrimSpace(firstNonEmpty(m[1], m[2]))
		return t
	}
	if m := durationRe.FindStringSubmatch(line); m != nil {
		if minutes, ok := parseMinutes(m[1], m[2]); ok {
			t.kind, t.value = tokDuration, strconv.Itoa(minutes)
		}
		return t
	}
	return t
}

func parseMinutes(n, unit string) (int, bool) {
	v, err := strconv.Atoi(n)
	if err != nil || v <= 0 {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(unit), "h") {
		v *= 60
	}
	return v, true
}

// isUpper reports whether s has letters and none of them are lower case.
func isUpper(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters = true
		}
	}
	return letters
}

func stripEmphasis(s string) string {
	s = strings.TrimSpace(s)
	for _, mark := range []string{"__", "**"} {
		if len(s) > 2*len(mark) && strings.HasPrefix(s, mark) && strings.HasSuffix(s, mark) {
			s = strings.TrimSpace(s[len(mark) : len(s)-len(mark)])
		}
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
