package snapshot

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RefAttribute marks the element a ref was assigned to
const RefAttribute = "data-debug-ref"

var interactiveTags = map[atom.Atom]bool{
	atom.A:        true,
	atom.Button:   true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Textarea: true,
	atom.Details:  true,
	atom.Summary:  true,
	atom.Label:    true,
	atom.Option:   true,
}

var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"textbox":          true,
	"checkbox":         true,
	"radio":            true,
	"combobox":         true,
	"listbox":          true,
	"menuitem":         true,
	"tab":              true,
	"switch":           true,
	"slider":           true,
	"spinbutton":       true,
	"searchbox":        true,
	"option":           true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"treeitem":         true,
}

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Options tune a walk
type Options struct {
	// URL is reported as the document location
	URL string

	// MarkRefs writes each assigned ref onto its element as RefAttribute and
	// clears refs left over from earlier walks
	MarkRefs bool

	// ClickHandler reports handlers attached by script, which the markup
	// alone cannot show. The onclick attribute is always honored.
	ClickHandler func(n *html.Node) bool

	// Value overrides the current value of form elements, for hosts that
	// track values changed after parsing
	Value func(n *html.Node) (string, bool)
}

// walker holds the per-walk ref counter
type walker struct {
	opts    Options
	counter int
}

// Walk converts a parsed document into an accessibility snapshot.
//
// Refs are numbered e1, e2, ... in depth-first pre-order, so walking an
// unchanged document twice yields the same refs on the same elements.
func Walk(doc *html.Node, opts Options) Response {
	resp := Response{
		Title:    Title(doc),
		URL:      opts.URL,
		Elements: []Node{},
	}

	if opts.MarkRefs {
		clearRefs(doc)
	}

	body := findFirst(doc, atom.Body)
	if body == nil {
		return resp
	}

	w := &walker{opts: opts}
	tree := w.walk(body)
	if tree == nil {
		return resp
	}
	if len(tree.Children) > 0 {
		resp.Elements = tree.Children
	} else {
		resp.Elements = []Node{*tree}
	}
	return resp
}

// walk returns nil for elided elements
func (w *walker) walk(n *html.Node) *Node {
	if n.Type != html.ElementNode {
		return nil
	}
	tag := strings.ToLower(n.Data)
	if skippedTags[tag] {
		return nil
	}
	if !Visible(n) {
		return nil
	}

	interactive := w.isInteractive(n)
	ref := ""
	if interactive {
		w.counter++
		ref = "e" + strconv.Itoa(w.counter)
		if w.opts.MarkRefs {
			setAttr(n, RefAttribute, ref)
		}
	}

	var children []Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := w.walk(c); child != nil {
			children = append(children, *child)
		}
	}

	text := DirectText(n)
	role := attr(n, "role")

	// Structural wrappers collapse into their only child.
	if !interactive && text == "" && len(children) <= 1 && role == "" {
		if len(children) == 1 {
			return &children[0]
		}
		return nil
	}

	node := &Node{
		Tag:         tag,
		Ref:         ref,
		Role:        role,
		Text:        text,
		Name:        AccessibleName(n),
		Interactive: interactive,
		Children:    children,
	}
	if v, ok := w.value(n); ok && v != "" {
		node.Value = v
	}
	return node
}

func (w *walker) isInteractive(n *html.Node) bool {
	if interactiveTags[n.DataAtom] {
		return true
	}
	if role := attr(n, "role"); role != "" && interactiveRoles[role] {
		return true
	}
	if hasAttr(n, "tabindex") {
		return true
	}
	if attr(n, "onclick") != "" {
		return true
	}
	return w.opts.ClickHandler != nil && w.opts.ClickHandler(n)
}

func (w *walker) value(n *html.Node) (string, bool) {
	if w.opts.Value != nil {
		if v, ok := w.opts.Value(n); ok {
			return v, true
		}
	}
	return ElementValue(n)
}

// IsInteractive applies the default classification with no script hooks
func IsInteractive(n *html.Node) bool {
	return (&walker{}).isInteractive(n)
}

// DirectText joins the trimmed text of an element's immediate text
// children with single spaces
func DirectText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(c.Data); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// AccessibleName returns aria-label, name or placeholder, first non-empty wins
func AccessibleName(n *html.Node) string {
	for _, key := range []string{"aria-label", "name", "placeholder"} {
		if v := attr(n, key); v != "" {
			return v
		}
	}
	return ""
}

// ElementValue returns the value an element holds as parsed, and whether
// the element has a value property at all
func ElementValue(n *html.Node) (string, bool) {
	switch n.DataAtom {
	case atom.Input:
		if hasAttr(n, "value") {
			return attr(n, "value"), true
		}
		switch strings.ToLower(attr(n, "type")) {
		case "checkbox", "radio":
			return "on", true
		}
		return "", true
	case atom.Textarea:
		return TextContent(n), true
	case atom.Button:
		return attr(n, "value"), true
	case atom.Option:
		if hasAttr(n, "value") {
			return attr(n, "value"), true
		}
		return strings.Join(strings.Fields(TextContent(n)), " "), true
	case atom.Select:
		return selectValue(n), true
	}
	return "", false
}

func selectValue(n *html.Node) string {
	var first, selected *html.Node
	var visit func(*html.Node)
	visit = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Option {
				if first == nil {
					first = c
				}
				if selected == nil && hasAttr(c, "selected") {
					selected = c
				}
			}
			visit(c)
		}
	}
	visit(n)

	if selected == nil {
		selected = first
	}
	if selected == nil {
		return ""
	}
	v, _ := ElementValue(selected)
	return v
}

// TextContent concatenates all descendant text
func TextContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(p *html.Node) {
		if p.Type == html.TextNode {
			b.WriteString(p.Data)
			return
		}
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// Title returns the trimmed text of the first title element
func Title(doc *html.Node) string {
	if t := findFirst(doc, atom.Title); t != nil {
		return strings.Join(strings.Fields(TextContent(t)), " ")
	}
	return ""
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func clearRefs(n *html.Node) {
	if n.Type == html.ElementNode {
		removeAttr(n, RefAttribute)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clearRefs(c)
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}
