package restapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
)

// handleResource dispatches GET/POST/PUT/PATCH/DELETE against a resolved
// resource path, per spec.md §4.8. Every such path has the fixed literal
// form /rest/v1/system[/…] (spec.md §4.3); resource.Resolver never consumes
// a segment for the root itself, so the "/rest/v1/system" prefix and any
// leading slash on the remainder are stripped before resolving.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/rest/v1/system"), "/")

	res, err := s.Resolver.Resolve(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, res)
	case http.MethodPost:
		s.handlePost(w, r, res)
	case http.MethodPut:
		s.handlePut(w, r, res)
	case http.MethodPatch:
		s.handlePatch(w, r, res)
	case http.MethodDelete:
		s.handleDelete(w, r, res)
	default:
		writeError(w, r, apierr.New(apierr.MethodNotAllowed, "method %s not allowed", r.Method))
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, res *resource.Resource) {
	p, err := read.ParseParams(r.URL.Query(), res.IsCollection())
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := s.Read.Serialize(r.Context(), res, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		writeError(w, r, apierr.New(apierr.TransactionFailed, "encoding response: %v", err))
		return
	}

	etag := bytesToEtag(encoded)
	if checkIfNoneMatch(r, etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(encoded)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, res *resource.Resource) {
	body, err := decodeJSONBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	uri, err := s.Write.Create(r.Context(), res, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	emitAuditForMutation(r)
	w.Header().Set("Location", "/rest/v1/system"+uri)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"resource": uri})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, res *resource.Resource) {
	body, err := decodeJSONBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// spec.md §4.8 step 6: if the submitted body already equals the current
	// state, the request succeeds with 200 regardless of If-Match. The PUT
	// body (spec.md §6) is a bare {"configuration": {...}} document, not the
	// three-bucket {"configuration":..., "status":..., "statistics":...}
	// shape read.Engine.Serialize's unselected form returns, so the equality
	// check compares configuration against configuration, leaving out the
	// parent back-reference a PUT body never sets; the If-Match etag
	// below still covers the full GET document, per spec.md §4.8's "ETag
	// (SHA-1 over the canonical JSON of the same GET)".
	current, currentErr := s.Read.Serialize(r.Context(), res, &read.Params{Selector: ""})
	if currentErr == nil {
		if currentEncoded, err := json.Marshal(current); err == nil {
			if currentConfig, ok := current.(map[string]any)["configuration"].(map[string]any); ok {
				writable := make(map[string]any, len(currentConfig))
				for k, v := range currentConfig {
					if ref, isRef := res.Tail().Table.Refs[k]; isRef && ref.RelKind == schema.RelationParent {
						continue
					}
					writable[k] = v
				}
				configEncoded, _ := json.Marshal(map[string]any{"configuration": writable})
				bodyEncoded, _ := json.Marshal(map[string]any{"configuration": body["configuration"]})
				if string(configEncoded) == string(bodyEncoded) {
					w.WriteHeader(http.StatusOK)
					return
				}
			}
			if _, matched := checkIfMatch(r, currentEncoded); !matched {
				writeError(w, r, apierr.New(apierr.PreconditionFailed, "If-Match precondition failed"))
				return
			}
		}
	}

	if err := s.Write.Put(r.Context(), res, body); err != nil {
		writeError(w, r, err)
		return
	}
	emitAuditForMutation(r)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, res *resource.Resource) {
	patchDoc, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, apierr.New(apierr.DataValidationFailed, "reading patch body: %v", err))
		return
	}
	if err := s.Write.Patch(r.Context(), res, patchDoc); err != nil {
		writeError(w, r, err)
		return
	}
	emitAuditForMutation(r)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, res *resource.Resource) {
	if err := s.Write.Delete(r.Context(), res); err != nil {
		writeError(w, r, err)
		return
	}
	emitAuditForMutation(r)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSONBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	body := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, apierr.New(apierr.DataValidationFailed, "malformed JSON body: %v", err)
	}
	return body, nil
}

func emitAuditForMutation(r *http.Request) {
	if class, ok := classifyAuditForMethod(r.Method); ok {
		emitAudit(r.Context(), class, "%s %s", r.Method, r.URL.Path)
	}
}
