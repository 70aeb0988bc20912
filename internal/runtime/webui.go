package runtime

import (
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/drblury/opsflow/internal/runtime/boundary"
	loggingpkg "github.com/drblury/opsflow/internal/runtime/logging"
)

const defaultWebUIPort = 8081

// StartWebUIServer mounts the read-only introspection API when enabled.
func (b *Bus) StartWebUIServer() {
	if !b.Conf.WebUIEnabled {
		return
	}

	port := b.Conf.WebUIPort
	if port == 0 {
		port = defaultWebUIPort
	}

	b.RegisterHTTPHandler(port, "/api/handlers", http.HandlerFunc(b.handleGetHandlers))
	b.RegisterHTTPHandler(port, "/api/traces/failed", http.HandlerFunc(b.handleGetFailedTraces))
	b.RegisterHTTPHandler(port, "/api/load", http.HandlerFunc(b.handleGetLoad))
}

func (b *Bus) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, r, b.Handlers())
}

func (b *Bus) handleGetLoad(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, r, b.Load())
}

func (b *Bus) handleGetFailedTraces(w http.ResponseWriter, r *http.Request) {
	failures := b.guard.Failures()
	if failures == nil {
		failures = []boundary.Failure{}
	}
	b.writeJSON(w, r, failures)
}

func (b *Bus) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if len(b.Conf.WebUICORSAllowedOrigins) > 0 {
		if allowed := b.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		b.Logger.Error("Failed to encode response", err, loggingpkg.LogFields{"path": r.URL.Path})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (b *Bus) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range b.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
