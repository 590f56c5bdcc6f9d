// SPDX-License-Identifier: MPL-2.0

package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// DefaultName is reported when Env.Name is empty.
	DefaultName = "appboot"
	// DefaultVersion is reported when Env.Version is empty.
	DefaultVersion = "1.0.0"
)

// DefaultRef is the reference served when none is configured.
var DefaultRef = Ref{Module: "main", Attr: "app"}

type (
	rootResponse struct {
		Message string `json:"message"`
	}

	healthResponse struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
)

// Default returns a registry holding the built-in main:app.
func Default() *Registry {
	r := NewRegistry()
	r.Register(DefaultRef, NewDefaultHandler)
	return r
}

// NewDefaultHandler builds the liveness application: GET / and GET /health.
func NewDefaultHandler(env Env) (http.Handler, error) {
	name := env.Name
	if name == "" {
		name = DefaultName
	}
	version := env.Version
	if version == "" {
		version = DefaultVersion
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if env.Logger != nil {
		r.Use(requestLogger(env))
	}

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rootResponse{Message: name + " API"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: version})
	})

	return r, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(env Env) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			env.Logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
