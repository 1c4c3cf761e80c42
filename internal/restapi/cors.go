package restapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/switchdb/restd/internal/obslog"
)

// compressionMiddleware is ported from core/backend/compress.go's
// handleCompression: gorilla/handlers.CompressHandler gzip-encodes
// responses for clients that accept it.
func compressionMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.CompressHandler(h).ServeHTTP(w, r)
	})
}

// corsMiddleware is ported from core/backend/cors.go's handleCORS: CORS is
// hand-rolled here, not delegated to github.com/gorilla/handlers (that
// library is wired in this repo for response compression instead, per
// core/backend/compress.go).
func (s *Server) corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, If-Match, If-None-Match, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, Link")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			obslog.FromContext(r.Context()).Debug("handled by CORS middleware")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.ServeHTTP(w, r)
	})
}
