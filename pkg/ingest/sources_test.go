package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xrsl/solvx/pkg/workflow"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"Marketing/positioning.md",
		"Marketing/Brand Strategy/naming.md",
		"Marketing/Brand Strategy/Deep/tone.txt",
		"Marketing/~$positioning.md",
		"Marketing/scan.pdf",
		"books/finance-basics.md",
		"books/misc.html",
		"sales/Sales/pipeline.md",
		".git/config.md",
	}
	for _, f := range files {
		writeFile(t, filepath.Join(root, f), "x")
	}

	sources, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	got := make(map[string]Source)
	for _, s := range sources {
		rel, _ := filepath.Rel(root, s.Path)
		got[filepath.ToSlash(rel)] = s
	}

	want := map[string]struct {
		domain workflow.Domain
		sub    string
	}{
		"Marketing/positioning.md":               {workflow.Marketing, "general"},
		"Marketing/Brand Strategy/naming.md":     {workflow.Marketing, "brand-strategy"},
		"Marketing/Brand Strategy/Deep/tone.txt": {workflow.Marketing, "deep"},
		"books/finance-basics.md":                {workflow.Finance, "general"},
		"books/misc.html":                        {workflow.DomainUnknown, "general"},
		"sales/Sales/pipeline.md":                {workflow.Sales, "general"},
	}
	if len(got) != len(want) {
		t.Errorf("discovered %d files, want %d: %v", len(got), len(want), got)
	}
	for path, w := range want {
		s, ok := got[path]
		if !ok {
			t.Errorf("%s not discovered", path)
			continue
		}
		if s.Domain != w.domain || s.SubDomain != w.sub {
			t.Errorf("%s: got %s/%s, want %s/%s", path, s.Domain, s.SubDomain, w.domain, w.sub)
		}
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestInferDomainOrder(t *testing.T) {
	// "strategy" comes before "sales" in enum order
	if got := inferDomain("sales-strategy.md"); got != workflow.Strategy {
		t.Errorf("inferDomain() = %s", got)
	}
	if got := inferDomain("notes.md"); got != workflow.DomainUnknown {
		t.Errorf("inferDomain() = %s", got)
	}
}

func TestReadSourceHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positioning.html")
	writeFile(t, path, `<html><head><style>p{}</style></head><body>
<p>1. <strong>Positioning -- Al Ries</strong></p>
<p><b>Positioning Audit</b></p>
<h1>TASK</h1>
<p>Assess how the company is perceived in its market by buyers today.</p>
<h2>STEP 1</h2>
<p>Interview customers.<br>Summarize findings.</p>
<script>alert(1)</script>
</body></html>`)

	text, err := ReadSource(path)
	if err != nil {
		t.Fatalf("ReadSource() error: %v", err)
	}
	for _, want := range []string{
		"1. __Positioning -- Al Ries__",
		"__Positioning Audit__",
		"# TASK",
		"# STEP 1",
		"Interview customers.\nSummarize findings.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "p{}") {
		t.Errorf("script or style leaked:\n%s", text)
	}

	records, _ := NewParser().ParseDocument(text, Source{Path: path, Domain: workflow.Marketing, SubDomain: "general"})
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Name != "Positioning Audit" || records[0].SourceBook != "Positioning by Al Ries" {
		t.Errorf("record = %q from %q", records[0].Name, records[0].SourceBook)
	}
}

func TestReadSourceUnsupported(t *testing.T) {
	if _, err := ReadSource("notes.docx"); err == nil {
		t.Error("expected error for unsupported type")
	}
}
