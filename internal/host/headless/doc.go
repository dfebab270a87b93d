// Package headless is a host that runs pages in embedded JavaScript
// runtimes instead of a real webview.
//
// Each window parses its page into a DOM and owns one goja runtime driven
// by a single goroutine, so script, timers, events and IPC replies for a
// window never run concurrently. Injected code reaches the host through the
// same IPC function a webview would expose:
//
//	h := headless.New(headless.DefaultConfig())
//	_ = h.LoadPages(os.DirFS("./pages"))
//	b := bridge.New(h, relay, framer.New(framer.DefaultConfig()), bridge.DefaultConfig())
//
// Layout is not modeled. Visibility follows tag defaults, the hidden
// attribute and inline style, and canvases have no 2d context, so
// screenshots fail inside the sandbox.
package headless
