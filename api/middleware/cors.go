package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// corsHeaders are the request headers browsers may send cross-origin.
var corsHeaders = []string{
	"Accept",
	"Authorization",
	"Content-Type",
	IdempotencyHeader,
	RequestIDHeader,
}

// CORS allows credentialed requests from origins. Preflight results are
// cached for maxAge, rounded down to whole seconds.
func CORS(origins []string, maxAge time.Duration) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   corsHeaders,
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: len(origins) > 0,
		MaxAge:           int(maxAge / time.Second),
	})
}
