package ingest

import "testing"

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line  string
		kind  tokenKind
		value string
	}{
		{"", tokBlank, ""},
		{"   ", tokBlank, ""},
		{"# TASK", tokTask, ""},
		{"#TASK: Build the plan", tokTask, "Build the plan"},
		{"# Task", tokTask, ""},
		{"# STEP 3", tokStep, "STEP 3"},
		{"#STEP2: Draft", tokStep, "STEP2: Draft"},
		{"# INTRODUCTION", tokSection, "INTRODUCTION"},
		{"## OUTPUT FORMAT", tokSection, "OUTPUT FORMAT"},
		{"## Category Design", tokTitle, "Category Design"},
		{"# **Pricing Review**", tokTitle, "Pricing Review"},
		{"2. __Crossing the Chasm — Geoffrey Moore__", tokSectionHeader, "Crossing the Chasm — Geoffrey Moore"},
		{"3. **Blue Ocean**", tokSectionHeader, "Blue Ocean"},
		{"__Positioning Audit__", tokBold, "Positioning Audit"},
		{"  **Positioning Audit**  ", tokBold, "Positioning Audit"},
		{"The __bold__ word is inline", tokText, ""},
		{"// Context: ask me about pricing", tokContext, "ask me about pricing"},
		{"//context:   budget owner", tokContext, "budget owner"},
		{"Estimated time: 30 minutes", tokDuration, "30"},
		{"Duration: 2 hours", tokDuration, "120"},
		{"Time: ~15 min", tokDuration, "15"},
		{"Time: 0 min", tokText, ""},
		{"Time to market matters", tokText, ""},
		{"1. Do the thing", tokText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := classifyLine(tt.line)
			if got.kind != tt.kind {
				t.Errorf("kind = %s, want %s", got.kind, tt.kind)
			}
			if got.value != tt.value {
				t.Errorf("value = %q, want %q", got.value, tt.value)
			}
			if got.line != tt.line {
				t.Errorf("line = %q", got.line)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	in := "  Step 1\\. Review\\_notes \\- don\\'t \\\"skip\\\"\r\nnext\rlast  "
	want := "Step 1. Review_notes - don't \"skip\"\nnext\nlast"
	if got := cleanText(in); got != want {
		t.Errorf("cleanText() = %q, want %q", got, want)
	}
}

func TestSourceName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Positioning -- Al Ries", "Positioning by Al Ries"},
		{"Crossing the Chasm — Geoffrey Moore", "Crossing the Chasm by Geoffrey Moore"},
		{"Blue Ocean", "Blue Ocean"},
	}
	for _, tt := range tests {
		if got := sourceName(tt.in); got != tt.want {
			t.Errorf("sourceName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinLinesCollapsesBlanks(t *testing.T) {
	tokens := lex("\n\nfirst  \n\n\n\nsecond\n\n")
	if got := joinLines(tokens); got != "first\n\nsecond" {
		t.Errorf("joinLines() = %q", got)
	}
}
