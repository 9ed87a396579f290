package ingest

import (
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xrsl/solvx/pkg/workflow"
)

// DefaultSubDomain is used for files not nested under a sub-domain folder.
const DefaultSubDomain = "general"

// Source is a document discovered under the source root.
type Source struct {
	Path      string
	Domain    workflow.Domain
	SubDomain string
}

var textExts = map[string]bool{".md": true, ".markdown": true, ".txt": true}

var htmlExts = map[string]bool{".html": true, ".htm": true}

// Supported reports whether ReadSource can read path.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return textExts[ext] || htmlExts[ext]
}

// Discover walks root and returns every supported document with the domain
// and sub-domain implied by its location. A folder named after a domain is
// authoritative for everything beneath it; a non-domain folder inside a
// domain folder names the sub-domain. Files outside any domain folder infer
// their domain from the file name.
func Discover(root string) ([]Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read source dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", root)
	}

	var out []Source
	if err := walk(root, "", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(dir string, domain workflow.Domain, subDomain string, out *[]Source) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)

		if e.IsDir() {
			if strings.HasPrefix(name, ".") {
				continue
			}
			switch d := workflow.Domain(strings.ToLower(name)); {
			case d.Valid():
				err = walk(path, d, "", out)
			case domain != "":
				err = walk(path, domain, name, out)
			default:
				err = walk(path, domain, subDomain, out)
			}
			if err != nil {
				return err
			}
			continue
		}

		if strings.HasPrefix(name, "~$") || !Supported(name) {
			continue
		}

		d := domain
		if d == "" {
			d = inferDomain(name)
		}
		*out = append(*out, Source{
			Path:      path,
			Domain:    d,
			SubDomain: normalizeSubDomain(subDomain),
		})
	}
	return nil
}

// inferDomain returns the first domain whose name appears in the file name.
func inferDomain(filename string) workflow.Domain {
	lower := strings.ToLower(filename)
	for _, d := range workflow.Domains() {
		if strings.Contains(lower, string(d)) {
			return d
		}
	}
	return workflow.DomainUnknown
}

func normalizeSubDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultSubDomain
	}
	return strings.Join(strings.Fields(s), "-")
}

// ReadSource returns the text of a supported document. HTML is reduced to
// text with bold runs rendered as __x__ and headings as "# x".
func ReadSource(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case textExts[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case htmlExts[ext]:
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return htmlText(f)
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

func htmlText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find("strong, b").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			s.Remove()
			return
		}
		s.ReplaceWithHtml("__" + html.EscapeString(text) + "__")
	})
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("<p>\n# " + html.EscapeString(strings.TrimSpace(s.Text())) + "\n</p>")
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
		s.AppendHtml("\n")
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.TrimSpace(body.Text()), nil
}
