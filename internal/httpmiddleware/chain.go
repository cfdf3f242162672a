package httpmiddleware

import "net/http"

// Option wraps a handler with one layer of middleware.
type Option func(http.Handler) http.Handler

// Apply composes options around handler, with the first option becoming
// the outermost layer — the same order a reader expects from the call
// site's top-to-bottom list.
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}
