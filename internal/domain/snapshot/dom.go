package snapshot

import "golang.org/x/net/html"

// Attr returns the value of an un-namespaced attribute
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an un-namespaced attribute
func SetAttr(n *html.Node, key, val string) {
	setAttr(n, key, val)
}

// RemoveAttr deletes an un-namespaced attribute if present
func RemoveAttr(n *html.Node, key string) {
	removeAttr(n, key)
}

// InlineStyle returns the declarations of the element's style attribute
// with lowercased keys and values
func InlineStyle(n *html.Node) map[string]string {
	return parseInlineStyle(attr(n, "style"))
}
