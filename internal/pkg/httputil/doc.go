// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler file should use these helpers instead of writing raw
// http.ResponseWriter calls. All JSON responses share one envelope:
// {"success": true, "data": ...} or {"success": false, "error": {...}}.
// Digest endpoints serve raw HTML via the HTML helper.
package httputil
