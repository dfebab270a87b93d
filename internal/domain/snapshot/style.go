package snapshot

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Style is the subset of computed style that decides visibility
type Style struct {
	Display    string
	Visibility string
	Opacity    string
}

var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Button: true, atom.Code: true,
	atom.Em: true, atom.I: true, atom.Img: true, atom.Input: true, atom.Label: true,
	atom.Select: true, atom.Small: true, atom.Span: true, atom.Strong: true,
	atom.Sub: true, atom.Sup: true, atom.Textarea: true, atom.U: true,
}

// hiddenTags are never rendered
var hiddenTags = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Template: true,
	atom.Noscript: true, atom.Title: true, atom.Meta: true, atom.Link: true,
	atom.Base: true,
}

// ComputedStyle resolves display, visibility and opacity for an element from
// its tag defaults, the hidden attribute and its inline style. Visibility is
// inherited from the nearest ancestor that declares it.
func ComputedStyle(n *html.Node) Style {
	style := Style{Display: "block", Visibility: "visible", Opacity: "1"}
	if n == nil || n.Type != html.ElementNode {
		return style
	}

	if inlineTags[n.DataAtom] {
		style.Display = "inline"
	}
	if hiddenTags[n.DataAtom] || hasAttr(n, "hidden") ||
		(n.DataAtom == atom.Input && strings.EqualFold(attr(n, "type"), "hidden")) {
		style.Display = "none"
	}

	decl := parseInlineStyle(attr(n, "style"))
	if v, ok := decl["display"]; ok {
		style.Display = v
	}
	if v, ok := decl["opacity"]; ok {
		style.Opacity = normalizeOpacity(v)
	}

	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if v, ok := parseInlineStyle(attr(p, "style"))["visibility"]; ok {
			style.Visibility = v
			break
		}
	}

	return style
}

// Rendered reports whether the element takes part in layout: neither it nor
// any ancestor has display none. This is what a non-null offsetParent means
// for ordinary elements.
func Rendered(n *html.Node) bool {
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if ComputedStyle(p).Display == "none" {
			return false
		}
	}
	return true
}

// Visible applies the walker's visibility test to an element. The document
// body and root element always count as visible.
func Visible(n *html.Node) bool {
	if n.DataAtom == atom.Body || n.DataAtom == atom.Html {
		return true
	}
	style := ComputedStyle(n)
	return style.Display != "none" &&
		style.Visibility != "hidden" &&
		style.Opacity != "0" &&
		Rendered(n)
}

func parseInlineStyle(s string) map[string]string {
	decl := make(map[string]string)
	if s == "" {
		return decl
	}
	for _, part := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.ToLower(strings.TrimSpace(value))
		value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))
		if key != "" && value != "" {
			decl[key] = value
		}
	}
	return decl
}

// normalizeOpacity mirrors how browsers serialize computed opacity, so
// "0.0" and "0%" compare equal to "0".
func normalizeOpacity(v string) string {
	switch strings.TrimRight(strings.TrimSuffix(v, "%"), "0") {
	case "", "0.", ".":
		return "0"
	}
	return v
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}
