package snapshot

// Node is one element of the accessibility tree. A node carries a Ref if and
// only if it is interactive.
type Node struct {
	Tag         string `json:"tag"`
	Ref         string `json:"ref,omitempty"`
	Role        string `json:"role,omitempty"`
	Text        string `json:"text,omitempty"`
	Name        string `json:"name,omitempty"`
	Value       string `json:"value,omitempty"`
	Interactive bool   `json:"interactive"`
	Children    []Node `json:"children,omitempty"`
}

// Response is a full snapshot of one document
type Response struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Elements []Node `json:"elements"`
}

// Refs returns every ref in the tree in traversal order
func (r Response) Refs() []string {
	var refs []string
	var visit func(nodes []Node)
	visit = func(nodes []Node) {
		for _, n := range nodes {
			if n.Ref != "" {
				refs = append(refs, n.Ref)
			}
			visit(n.Children)
		}
	}
	visit(r.Elements)
	return refs
}

// Find returns the node carrying ref
func (r Response) Find(ref string) (Node, bool) {
	var found Node
	var ok bool
	var visit func(nodes []Node)
	visit = func(nodes []Node) {
		for _, n := range nodes {
			if ok {
				return
			}
			if n.Ref == ref {
				found, ok = n, true
				return
			}
			visit(n.Children)
		}
	}
	visit(r.Elements)
	return found, ok
}

// InteractiveOnly returns a copy of the response reduced to interactive
// elements. Non-interactive nodes are replaced by their interactive
// descendants, so document order is preserved.
func (r Response) InteractiveOnly() Response {
	return Response{
		Title:    r.Title,
		URL:      r.URL,
		Elements: FilterInteractive(r.Elements),
	}
}

// FilterInteractive keeps interactive nodes and hoists the interactive
// descendants of everything else
func FilterInteractive(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		kept := FilterInteractive(n.Children)
		if !n.Interactive {
			out = append(out, kept...)
			continue
		}
		n.Children = nil
		if len(kept) > 0 {
			n.Children = kept
		}
		out = append(out, n)
	}
	return out
}
