package headless

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxPageSize bounds a single page file
const MaxPageSize = 10 << 20

// minCharsetConfidence is the chardet score needed to override the
// windows-1252 default
const minCharsetConfidence = 50

// Page is a document to open in a window
type Page struct {
	Label string
	URL   string
	HTML  []byte
}

// BlankPage is opened as the main window when no pages are configured
func BlankPage() Page {
	return Page{
		Label: "main",
		URL:   "about:blank",
		HTML:  []byte("<!DOCTYPE html><html><head><title>debugbridge</title></head><body></body></html>"),
	}
}

// FindPages returns one page per file in fsys matching the doublestar
// pattern, labeled by file stem. A file named index becomes "main".
func FindPages(fsys fs.FS, pattern string) ([]Page, error) {
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	pages := make([]Page, 0, len(matches))
	seen := make(map[string]string, len(matches))
	for _, match := range matches {
		data, err := fs.ReadFile(fsys, match)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", match, err)
		}
		if len(data) > MaxPageSize {
			return nil, fmt.Errorf("page %s exceeds %d bytes", match, MaxPageSize)
		}

		label := strings.TrimSuffix(path.Base(match), path.Ext(match))
		if label == "index" {
			label = "main"
		}
		if prev, dup := seen[label]; dup {
			return nil, fmt.Errorf("pages %s and %s both map to window %q", prev, match, label)
		}
		seen[label] = match

		pages = append(pages, Page{Label: label, URL: "file:///" + match, HTML: data})
	}
	return pages, nil
}

// Parse decodes page bytes to UTF-8 and parses them. A BOM or a meta
// charset wins; otherwise the encoding is guessed.
func Parse(data []byte) (*html.Node, error) {
	r, err := decode(data)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func decode(data []byte) (io.Reader, error) {
	if utf8.Valid(data) {
		return bytes.NewReader(data), nil
	}

	// Without a BOM or meta declaration the prescan falls back to
	// windows-1252, which is also what guessing defaults to
	enc, name, certain := charset.DetermineEncoding(data, "text/html")
	if certain || name != "windows-1252" {
		return enc.NewDecoder().Reader(bytes.NewReader(data)), nil
	}

	label := name
	if result, err := chardet.NewHtmlDetector().DetectBest(data); err == nil && result != nil && result.Confidence >= minCharsetConfidence {
		label = strings.ToLower(result.Charset)
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page as %s: %w", label, err)
	}
	return r, nil
}
