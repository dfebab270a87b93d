package headless

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
)

// nodeObject exposes an *html.Node to script. Wrappers are cached per node
// so the same element always compares identical.
type nodeObject struct {
	w       *window
	n       *html.Node
	props   map[string]goja.Value
	methods map[string]goja.Value
}

func (w *window) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if n == w.global {
		return w.vm.GlobalObject()
	}
	if obj, ok := w.objects[n]; ok {
		return obj
	}
	obj := w.vm.NewDynamicObject(&nodeObject{
		w:       w,
		n:       n,
		props:   make(map[string]goja.Value),
		methods: make(map[string]goja.Value),
	})
	w.objects[n] = obj
	w.nodes[obj] = n
	return obj
}

// nodeOf maps a script value back to its node. The window object maps to
// the listener key used for window events.
func (w *window) nodeOf(v goja.Value) (*html.Node, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	if obj == w.vm.GlobalObject() {
		return w.global, true
	}
	n, ok := w.nodes[obj]
	return n, ok
}

func (w *window) mustNode(v goja.Value, what string) *html.Node {
	n, ok := w.nodeOf(v)
	if !ok {
		panic(w.newError("TypeError", what+" is not a node"))
	}
	return n
}

func (w *window) wrapAll(nodes []*html.Node) goja.Value {
	items := make([]any, len(nodes))
	for i, n := range nodes {
		items[i] = w.wrap(n)
	}
	return w.vm.NewArray(items...)
}

// ============================================================================
// goja.DynamicObject
// ============================================================================

func (o *nodeObject) Get(key string) goja.Value {
	if v, ok := o.props[key]; ok {
		return v
	}
	if strings.HasPrefix(key, "on") && len(key) > 2 {
		if h, ok := o.w.handlers[o.n][key[2:]]; ok {
			return h
		}
		return goja.Null()
	}
	if v := o.common(key); v != nil {
		return v
	}
	switch o.n.Type {
	case html.DocumentNode:
		if v := o.document(key); v != nil {
			return v
		}
	case html.ElementNode:
		if v := o.element(key); v != nil {
			return v
		}
	}
	return goja.Undefined()
}

func (o *nodeObject) Set(key string, val goja.Value) bool {
	w, n := o.w, o.n

	if strings.HasPrefix(key, "on") && len(key) > 2 {
		if w.handlers[n] == nil {
			w.handlers[n] = make(map[string]goja.Value)
		}
		if _, ok := goja.AssertFunction(val); ok {
			w.handlers[n][key[2:]] = val
		} else {
			delete(w.handlers[n], key[2:])
		}
		return true
	}

	switch key {
	case "textContent":
		replaceChildren(n, &html.Node{Type: html.TextNode, Data: val.String()})
		return true
	}

	if n.Type == html.DocumentNode && key == "title" {
		w.setTitle(val.String())
		return true
	}

	if n.Type == html.ElementNode {
		switch key {
		case "value":
			w.values[n] = val.String()
			return true
		case "checked":
			w.checked[n] = val.ToBoolean()
			return true
		case "disabled":
			setBoolAttr(n, "disabled", val.ToBoolean())
			return true
		case "hidden":
			setBoolAttr(n, "hidden", val.ToBoolean())
			return true
		case "id", "title", "name", "type", "placeholder", "href", "src", "role", "tabIndex":
			snapshot.SetAttr(n, strings.ToLower(key), val.String())
			return true
		case "className":
			snapshot.SetAttr(n, "class", val.String())
			return true
		case "innerHTML":
			nodes, err := html.ParseFragment(strings.NewReader(val.String()), n)
			if err != nil {
				panic(w.newError("SyntaxError", err.Error()))
			}
			replaceChildren(n, nodes...)
			return true
		case "innerText":
			replaceChildren(n, &html.Node{Type: html.TextNode, Data: val.String()})
			return true
		}
	}

	o.props[key] = val
	return true
}

func (o *nodeObject) Has(key string) bool {
	return !goja.IsUndefined(o.Get(key))
}

func (o *nodeObject) Delete(key string) bool {
	delete(o.props, key)
	return true
}

func (o *nodeObject) Keys() []string {
	keys := make([]string, 0, len(o.props))
	for k := range o.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================================
// Properties
// ============================================================================

// common covers Node members shared by documents, elements and text
func (o *nodeObject) common(key string) goja.Value {
	w, n, vm := o.w, o.n, o.w.vm

	switch key {
	case "nodeType":
		return vm.ToValue(nodeType(n))
	case "nodeName":
		switch n.Type {
		case html.ElementNode:
			return vm.ToValue(strings.ToUpper(n.Data))
		case html.TextNode:
			return vm.ToValue("#text")
		case html.CommentNode:
			return vm.ToValue("#comment")
		case html.DocumentNode:
			return vm.ToValue("#document")
		}
		return vm.ToValue("")
	case "ownerDocument":
		if n.Type == html.DocumentNode {
			return goja.Null()
		}
		return w.wrap(w.doc)
	case "parentNode":
		return w.wrap(n.Parent)
	case "parentElement":
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return w.wrap(n.Parent)
	case "childNodes":
		var kids []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			kids = append(kids, c)
		}
		return w.wrapAll(kids)
	case "firstChild":
		return w.wrap(n.FirstChild)
	case "lastChild":
		return w.wrap(n.LastChild)
	case "nextSibling":
		return w.wrap(n.NextSibling)
	case "previousSibling":
		return w.wrap(n.PrevSibling)
	case "textContent":
		if n.Type == html.DocumentNode {
			return goja.Null()
		}
		if n.Type != html.ElementNode {
			return vm.ToValue(n.Data)
		}
		return vm.ToValue(snapshot.TextContent(n))
	case "data", "nodeValue":
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return vm.ToValue(n.Data)
		}
		return goja.Null()
	}

	switch key {
	case "addEventListener", "removeEventListener", "dispatchEvent",
		"appendChild", "removeChild", "insertBefore", "remove", "contains",
		"hasChildNodes":
		return o.method(key)
	}
	if n.Type == html.ElementNode || n.Type == html.DocumentNode {
		switch key {
		case "querySelector", "querySelectorAll", "getElementsByTagName", "children":
			if key == "children" {
				return w.wrapAll(elementChildren(n))
			}
			return o.method(key)
		}
	}
	return nil
}

func (o *nodeObject) document(key string) goja.Value {
	w, vm := o.w, o.w.vm

	switch key {
	case "title":
		return vm.ToValue(snapshot.Title(w.doc))
	case "documentElement":
		return w.wrap(findElement(w.doc, atom.Html))
	case "head":
		return w.wrap(findElement(w.doc, atom.Head))
	case "body":
		return w.wrap(findElement(w.doc, atom.Body))
	case "activeElement":
		if w.focused != nil && isAttached(w.doc, w.focused) {
			return w.wrap(w.focused)
		}
		return w.wrap(findElement(w.doc, atom.Body))
	case "readyState":
		return vm.ToValue("complete")
	case "location":
		return vm.Get("location")
	case "defaultView":
		return vm.GlobalObject()
	case "URL":
		return vm.ToValue(w.url)
	case "createElement", "createTextNode", "createComment", "getElementById", "evaluate":
		return o.method(key)
	}
	return nil
}

func (o *nodeObject) element(key string) goja.Value {
	w, n, vm := o.w, o.n, o.w.vm

	switch key {
	case "tagName":
		return vm.ToValue(strings.ToUpper(n.Data))
	case "localName":
		return vm.ToValue(n.Data)
	case "id":
		v, _ := snapshot.Attr(n, "id")
		return vm.ToValue(v)
	case "className":
		v, _ := snapshot.Attr(n, "class")
		return vm.ToValue(v)
	case "name", "type", "placeholder", "href", "src", "role", "title":
		v, _ := snapshot.Attr(n, key)
		return vm.ToValue(v)
	case "value":
		if v, ok := w.values[n]; ok {
			return vm.ToValue(v)
		}
		if v, ok := snapshot.ElementValue(n); ok {
			return vm.ToValue(v)
		}
		return goja.Undefined()
	case "checked":
		return vm.ToValue(w.isChecked(n))
	case "disabled":
		_, ok := snapshot.Attr(n, "disabled")
		return vm.ToValue(ok)
	case "hidden":
		_, ok := snapshot.Attr(n, "hidden")
		return vm.ToValue(ok)
	case "innerHTML":
		var buf bytes.Buffer
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			_ = html.Render(&buf, c)
		}
		return vm.ToValue(buf.String())
	case "outerHTML":
		var buf bytes.Buffer
		_ = html.Render(&buf, n)
		return vm.ToValue(buf.String())
	case "innerText":
		return vm.ToValue(strings.Join(strings.Fields(snapshot.TextContent(n)), " "))
	case "offsetParent":
		if n.DataAtom == atom.Body || !snapshot.Rendered(n) {
			return goja.Null()
		}
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return w.wrap(findElement(w.doc, atom.Body))
	case "style":
		return vm.NewDynamicObject(&styleObject{w: w, n: n})
	case "firstElementChild":
		kids := elementChildren(n)
		if len(kids) == 0 {
			return goja.Null()
		}
		return w.wrap(kids[0])
	case "childElementCount":
		return vm.ToValue(len(elementChildren(n)))
	case "getAttribute", "setAttribute", "removeAttribute", "hasAttribute",
		"matches", "closest", "click", "focus", "blur", "scrollIntoView",
		"getBoundingClientRect", "getContext":
		return o.method(key)
	}
	return nil
}

// method returns the cached native function for key
func (o *nodeObject) method(key string) goja.Value {
	if m, ok := o.methods[key]; ok {
		return m
	}
	fn := o.native(key)
	if fn == nil {
		return goja.Undefined()
	}
	m := o.w.vm.ToValue(fn)
	o.methods[key] = m
	return m
}

func (o *nodeObject) native(key string) func(goja.FunctionCall) goja.Value {
	w, n, vm := o.w, o.n, o.w.vm

	switch key {
	case "addEventListener":
		return func(call goja.FunctionCall) goja.Value {
			w.addListener(n, call)
			return goja.Undefined()
		}
	case "removeEventListener":
		return func(call goja.FunctionCall) goja.Value {
			w.removeListener(n, call)
			return goja.Undefined()
		}
	case "dispatchEvent":
		return func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(w.dispatch(n, call.Argument(0).ToObject(vm)))
		}
	case "appendChild":
		return func(call goja.FunctionCall) goja.Value {
			child := w.mustNode(call.Argument(0), "appendChild argument")
			detach(child)
			n.AppendChild(child)
			return call.Argument(0)
		}
	case "insertBefore":
		return func(call goja.FunctionCall) goja.Value {
			child := w.mustNode(call.Argument(0), "insertBefore argument")
			ref, ok := w.nodeOf(call.Argument(1))
			detach(child)
			if !ok || ref.Parent != n {
				n.AppendChild(child)
			} else {
				n.InsertBefore(child, ref)
			}
			return call.Argument(0)
		}
	case "removeChild":
		return func(call goja.FunctionCall) goja.Value {
			child := w.mustNode(call.Argument(0), "removeChild argument")
			if child.Parent != n {
				panic(w.newError("Error", "node is not a child"))
			}
			n.RemoveChild(child)
			return call.Argument(0)
		}
	case "remove":
		return func(goja.FunctionCall) goja.Value {
			detach(n)
			return goja.Undefined()
		}
	case "contains":
		return func(call goja.FunctionCall) goja.Value {
			other, ok := w.nodeOf(call.Argument(0))
			return vm.ToValue(ok && isAttached(n, other))
		}
	case "hasChildNodes":
		return func(goja.FunctionCall) goja.Value {
			return vm.ToValue(n.FirstChild != nil)
		}
	case "querySelector":
		return func(call goja.FunctionCall) goja.Value {
			found := w.query(n, call.Argument(0).String())
			if len(found) == 0 {
				return goja.Null()
			}
			return w.wrap(found[0])
		}
	case "querySelectorAll":
		return func(call goja.FunctionCall) goja.Value {
			return w.wrapAll(w.query(n, call.Argument(0).String()))
		}
	case "getElementsByTagName":
		return func(call goja.FunctionCall) goja.Value {
			tag := call.Argument(0).String()
			if tag != "*" {
				tag = strings.ToLower(tag)
			}
			return w.wrapAll(goquery.NewDocumentFromNode(n).Find(tag).Nodes)
		}
	case "createElement":
		return func(call goja.FunctionCall) goja.Value {
			tag := strings.ToLower(call.Argument(0).String())
			return w.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
		}
	case "createTextNode":
		return func(call goja.FunctionCall) goja.Value {
			return w.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
		}
	case "createComment":
		return func(call goja.FunctionCall) goja.Value {
			return w.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
		}
	case "getElementById":
		return func(call goja.FunctionCall) goja.Value {
			return w.wrap(findByID(w.doc, call.Argument(0).String()))
		}
	case "evaluate":
		return func(call goja.FunctionCall) goja.Value {
			root := n
			if ctx, ok := w.nodeOf(call.Argument(1)); ok && ctx != w.global {
				root = ctx
			}
			return w.evaluate(root, call.Argument(0).String())
		}
	case "getAttribute":
		return func(call goja.FunctionCall) goja.Value {
			if v, ok := snapshot.Attr(n, strings.ToLower(call.Argument(0).String())); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		}
	case "setAttribute":
		return func(call goja.FunctionCall) goja.Value {
			snapshot.SetAttr(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
			return goja.Undefined()
		}
	case "removeAttribute":
		return func(call goja.FunctionCall) goja.Value {
			snapshot.RemoveAttr(n, strings.ToLower(call.Argument(0).String()))
			return goja.Undefined()
		}
	case "hasAttribute":
		return func(call goja.FunctionCall) goja.Value {
			_, ok := snapshot.Attr(n, strings.ToLower(call.Argument(0).String()))
			return vm.ToValue(ok)
		}
	case "matches":
		return func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(w.compile(call.Argument(0).String()).Match(n))
		}
	case "closest":
		return func(call goja.FunctionCall) goja.Value {
			sel := w.compile(call.Argument(0).String())
			for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
				if sel.Match(p) {
					return w.wrap(p)
				}
			}
			return goja.Null()
		}
	case "click":
		return func(goja.FunctionCall) goja.Value {
			w.click(n)
			return goja.Undefined()
		}
	case "focus":
		return func(goja.FunctionCall) goja.Value {
			if w.focused != n {
				w.focused = n
				w.fire(n, "focus", false)
			}
			return goja.Undefined()
		}
	case "blur":
		return func(goja.FunctionCall) goja.Value {
			if w.focused == n {
				w.focused = nil
				w.fire(n, "blur", false)
			}
			return goja.Undefined()
		}
	case "scrollIntoView":
		return func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	case "getBoundingClientRect":
		return func(goja.FunctionCall) goja.Value {
			rect := vm.NewObject()
			for _, k := range []string{"x", "y", "top", "left", "right", "bottom", "width", "height"} {
				_ = rect.Set(k, 0)
			}
			return rect
		}
	case "getContext":
		// No rendering backend, so canvases never yield a context
		return func(goja.FunctionCall) goja.Value { return goja.Null() }
	}
	return nil
}

// styleObject reads and writes the inline style attribute
type styleObject struct {
	w *window
	n *html.Node
}

func (s *styleObject) Get(key string) goja.Value {
	if key == "cssText" {
		v, _ := snapshot.Attr(s.n, "style")
		return s.w.vm.ToValue(v)
	}
	return s.w.vm.ToValue(snapshot.InlineStyle(s.n)[cssProperty(key)])
}

func (s *styleObject) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		snapshot.SetAttr(s.n, "style", val.String())
		return true
	}
	decl := snapshot.InlineStyle(s.n)
	if v := val.String(); v == "" {
		delete(decl, cssProperty(key))
	} else {
		decl[cssProperty(key)] = v
	}
	writeInlineStyle(s.n, decl)
	return true
}

func (s *styleObject) Has(key string) bool { return true }

func (s *styleObject) Delete(key string) bool {
	decl := snapshot.InlineStyle(s.n)
	delete(decl, cssProperty(key))
	writeInlineStyle(s.n, decl)
	return true
}

func (s *styleObject) Keys() []string {
	decl := snapshot.InlineStyle(s.n)
	keys := make([]string, 0, len(decl))
	for k := range decl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (w *window) getComputedStyle(call goja.FunctionCall) goja.Value {
	n := w.mustNode(call.Argument(0), "getComputedStyle argument")
	style := snapshot.ComputedStyle(n)

	obj := w.vm.NewObject()
	props := map[string]string{
		"display":    style.Display,
		"visibility": style.Visibility,
		"opacity":    style.Opacity,
	}
	for k, v := range props {
		_ = obj.Set(k, v)
	}
	_ = obj.Set("getPropertyValue", func(c goja.FunctionCall) goja.Value {
		return w.vm.ToValue(props[c.Argument(0).String()])
	})
	return obj
}

// ============================================================================
// Queries
// ============================================================================

func (w *window) compile(selector string) cascadia.Selector {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		panic(w.newError("SyntaxError", fmt.Sprintf("'%s' is not a valid selector", selector)))
	}
	return sel
}

func (w *window) query(root *html.Node, selector string) []*html.Node {
	return goquery.NewDocumentFromNode(root).FindMatcher(w.compile(selector)).Nodes
}

// evaluate implements the slice of document.evaluate the element locator
// uses: first match and ordered snapshots
func (w *window) evaluate(root *html.Node, expr string) goja.Value {
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		panic(w.newError("SyntaxError", fmt.Sprintf("'%s' is not a valid XPath expression", expr)))
	}

	result := w.vm.NewObject()
	var first goja.Value = goja.Null()
	if len(nodes) > 0 {
		first = w.wrap(nodes[0])
	}
	_ = result.Set("singleNodeValue", first)
	_ = result.Set("snapshotLength", len(nodes))
	_ = result.Set("snapshotItem", func(call goja.FunctionCall) goja.Value {
		i := call.Argument(0).ToInteger()
		if i < 0 || int(i) >= len(nodes) {
			return goja.Null()
		}
		return w.wrap(nodes[i])
	})
	return result
}

// ============================================================================
// Events
// ============================================================================

func (w *window) addListener(n *html.Node, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	if _, ok := goja.AssertFunction(fn); !ok {
		return
	}
	if w.listeners[n] == nil {
		w.listeners[n] = make(map[string][]goja.Value)
	}
	for _, l := range w.listeners[n][typ] {
		if l.SameAs(fn) {
			return
		}
	}
	w.listeners[n][typ] = append(w.listeners[n][typ], fn)
}

func (w *window) removeListener(n *html.Node, call goja.FunctionCall) {
	typ := call.Argument(0).String()
	fn := call.Argument(1)
	list := w.listeners[n][typ]
	for i, l := range list {
		if l.SameAs(fn) {
			w.listeners[n][typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// dispatch delivers ev at target and, for bubbling events, every ancestor
// up to the window. It reports false when a listener prevented the default.
func (w *window) dispatch(target *html.Node, ev *goja.Object) bool {
	typ := ev.Get("type").String()
	_ = ev.Set("target", w.wrap(target))

	path := []*html.Node{target}
	if ev.Get("bubbles").ToBoolean() && target != w.global {
		for p := target.Parent; p != nil; p = p.Parent {
			path = append(path, p)
		}
		if path[len(path)-1] == w.doc {
			path = append(path, w.global)
		}
	}

	for _, node := range path {
		current := w.wrap(node)
		_ = ev.Set("currentTarget", current)

		for _, l := range append([]goja.Value(nil), w.listeners[node][typ]...) {
			fn, _ := goja.AssertFunction(l)
			if _, err := fn(current, ev); err != nil {
				w.reportError(err)
			}
		}
		if h := w.handler(node, typ); h != nil {
			if _, err := h(current, ev); err != nil {
				w.reportError(err)
			}
		}

		if ev.Get("__stop").ToBoolean() {
			break
		}
	}

	_ = ev.Set("currentTarget", goja.Null())
	return !ev.Get("defaultPrevented").ToBoolean()
}

// handler resolves the on<type> handler of a node, preferring one set by
// script over the markup attribute
func (w *window) handler(n *html.Node, typ string) goja.Callable {
	if h, ok := w.handlers[n][typ]; ok {
		fn, _ := goja.AssertFunction(h)
		return fn
	}
	if n == w.global || n.Type != html.ElementNode {
		return nil
	}
	code, ok := snapshot.Attr(n, "on"+typ)
	if !ok || strings.TrimSpace(code) == "" {
		return nil
	}
	v, err := w.vm.RunString("(function (event) {\n" + code + "\n})")
	if err != nil {
		w.reportError(err)
		return nil
	}
	fn, _ := goja.AssertFunction(v)
	return fn
}

// hasClickHandler reports a click handler attached by script
func (w *window) hasClickHandler(n *html.Node) bool {
	_, ok := w.handlers[n]["click"]
	return ok
}

func (w *window) newEvent(class, typ string, bubbles, cancelable bool) *goja.Object {
	init := w.vm.NewObject()
	_ = init.Set("bubbles", bubbles)
	_ = init.Set("cancelable", cancelable)

	ctor, ok := goja.AssertConstructor(w.vm.Get(class))
	if !ok {
		panic(fmt.Sprintf("event class %s missing from prelude", class))
	}
	ev, err := ctor(nil, w.vm.ToValue(typ), init)
	if err != nil {
		panic(err)
	}
	return ev
}

func (w *window) fire(n *html.Node, typ string, bubbles bool) bool {
	return w.dispatch(n, w.newEvent("Event", typ, bubbles, false))
}

// click runs activation behavior: disabled controls ignore clicks and
// checkable inputs toggle unless a listener cancels the click
func (w *window) click(n *html.Node) {
	if _, disabled := snapshot.Attr(n, "disabled"); disabled {
		return
	}

	kind := ""
	if n.DataAtom == atom.Input {
		t, _ := snapshot.Attr(n, "type")
		kind = strings.ToLower(t)
	}
	before := w.isChecked(n)
	switch kind {
	case "checkbox":
		w.checked[n] = !before
	case "radio":
		w.checked[n] = true
	}

	if !w.dispatch(n, w.newEvent("MouseEvent", "click", true, true)) {
		if kind == "checkbox" || kind == "radio" {
			w.checked[n] = before
		}
		return
	}

	if (kind == "checkbox" || kind == "radio") && w.isChecked(n) != before {
		w.fire(n, "input", true)
		w.fire(n, "change", true)
	}
}

func (w *window) isChecked(n *html.Node) bool {
	if v, ok := w.checked[n]; ok {
		return v
	}
	_, ok := snapshot.Attr(n, "checked")
	return ok
}

func (w *window) setTitle(title string) {
	t := findElement(w.doc, atom.Title)
	if t == nil {
		head := findElement(w.doc, atom.Head)
		if head == nil {
			return
		}
		t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(t)
	}
	replaceChildren(t, &html.Node{Type: html.TextNode, Data: title})
}

// ============================================================================
// Tree helpers
// ============================================================================

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func elementChildren(n *html.Node) []*html.Node {
	var kids []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			kids = append(kids, c)
		}
	}
	return kids
}

func replaceChildren(n *html.Node, kids ...*html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, k := range kids {
		detach(k)
		n.AppendChild(k)
	}
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func isAttached(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := snapshot.Attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func setBoolAttr(n *html.Node, key string, on bool) {
	if on {
		snapshot.SetAttr(n, key, "")
	} else {
		snapshot.RemoveAttr(n, key)
	}
}

// cssProperty converts a camelCase style property to its CSS name
func cssProperty(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func writeInlineStyle(n *html.Node, decl map[string]string) {
	if len(decl) == 0 {
		snapshot.RemoveAttr(n, "style")
		return
	}
	keys := make([]string, 0, len(decl))
	for k := range decl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + decl[k]
	}
	snapshot.SetAttr(n, "style", strings.Join(parts, "; "))
}
