package restapi

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/resource"
)

// writeError maps err to a status code and JSON error body, per spec.md
// §4.8 step 7's exception table. A *apierr.Error carries its own Kind;
// resource.ErrNotFound (wrapped by internal/resource on every unresolved
// path segment) maps to 404; anything else is an uncaught 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		writeAPIError(w, r, apiErr)
		return
	}
	if errors.Is(err, resource.ErrNotFound) {
		writeAPIError(w, r, apierr.NotFound(r.URL.Path))
		return
	}
	writeAPIError(w, r, apierr.New(apierr.TransactionFailed, "internal error: %v", err))
}

func writeAPIError(w http.ResponseWriter, r *http.Request, e *apierr.Error) {
	status := e.Kind.Status()
	if e.Kind == apierr.NotAuthenticated || e.Kind == apierr.AuthenticationFailed {
		w.Header().Set("Link", `/login; rel="login"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"error": e.Message, "kind": string(e.Kind)}
	if e.Code != 0 {
		body["code"] = e.Code
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	_ = json.NewEncoder(w).Encode(body)
}
