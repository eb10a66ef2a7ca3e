// Package http is a thin bearer-auth chi router fronting the Tool
// Dispatcher. The tool-call protocol itself is an external-collaborator
// concern; this package exists so the Dispatcher has a concrete HTTP
// caller to run behind, not a protocol implementation.
package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/8agana/unified-intelligence/internal/dispatch"
	"github.com/8agana/unified-intelligence/internal/observability"
)

// Config configures the router's auth and request bounds.
type Config struct {
	BearerToken    string
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP surface: an always-open /health, and a bearer
// (or ?access_token=) protected /tools/{tool} endpoint that decodes the
// JSON body as dispatch.Params and routes it through d.Dispatch.
func NewRouter(d *dispatch.Dispatcher, cfg Config, log *observability.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"unified-intelligence"}`))
	})

	r.Route("/tools", func(r chi.Router) {
		r.Use(bearerAuth(cfg.BearerToken))
		r.Post("/{tool}", handleTool(d, log))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if presented(r) == token {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, dispatch.TransportError{Code: "unauthorized", Message: "missing or invalid bearer token"})
		})
	}
}

// presented extracts the bearer token from the Authorization header, or
// falls back to the ?access_token= query parameter.
func presented(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("access_token")
}

func handleTool(d *dispatch.Dispatcher, log *observability.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool := chi.URLParam(r, "tool")
		instance := r.Header.Get("X-Instance-ID")
		if instance == "" {
			instance = r.URL.Query().Get("instance_id")
		}

		var params dispatch.Params
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil && err.Error() != "EOF" {
				writeError(w, http.StatusBadRequest, dispatch.TransportError{Code: "invalid_params", Message: "malformed JSON body"})
				return
			}
		}
		if params == nil {
			params = dispatch.Params{}
		}

		result, err := d.Dispatch(r.Context(), instance, tool, params)
		if err != nil {
			te := dispatch.MapError(err)
			log.WithInstance(instance).WithTool(tool).Warn().Err(err).Msg("tool dispatch failed")
			status := http.StatusInternalServerError
			if te.Code == "invalid_params" {
				status = http.StatusBadRequest
			}
			writeError(w, status, te)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

func writeError(w http.ResponseWriter, status int, te dispatch.TransportError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(te)
}
