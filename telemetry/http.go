package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WrapHandler instruments h with otelhttp, creating one server span per request named
// operation. cmd/server uses this to wrap the gin engine before handing it to
// http.Server, so every HTTP request gets a root span even before api.Server's own
// requestLogger middleware starts a child span for route-level attributes.
func WrapHandler(operation string, h http.Handler) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
