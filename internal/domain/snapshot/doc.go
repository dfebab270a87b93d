// Package snapshot builds ref-annotated accessibility trees from HTML
// documents. The same rules run in the sandbox as injected code; Walk is the
// Go rendition used for offline documents and for checking the two agree.
package snapshot
