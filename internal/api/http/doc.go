// Package http exposes the bridge over HTTP with gin.
//
// Every failure is {"error": category, "detail": text} with the status
// from StatusFor. A script that throws is not a failure of the bridge: its
// call answers 200 with {"success": false, "error": "..."}.
package http
