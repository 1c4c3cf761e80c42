package restapi

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/write"
)

// handleFullConfiguration implements GET/PUT/PATCH
// /rest/v1/system/full-configuration?type=running|startup, per spec.md
// §4.8's routing table. PATCH is accepted as a synonym for PUT here since
// the declarative full-configuration document is always a whole-document
// replace, not an RFC 6902 patch (internal/write.Engine.Patch is for
// per-resource patches only).
func (s *Server) handleFullConfiguration(w http.ResponseWriter, r *http.Request) {
	target, err := parseFullConfigTarget(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleFullConfigurationGet(w, r, target)
	case http.MethodPut, http.MethodPatch:
		s.handleFullConfigurationPut(w, r, target)
	default:
		writeError(w, r, apierr.New(apierr.MethodNotAllowed, "method %s not allowed", r.Method))
	}
}

func parseFullConfigTarget(r *http.Request) (write.FullConfigTarget, error) {
	switch t := r.URL.Query().Get("type"); t {
	case "", "running":
		return write.Running, nil
	case "startup":
		return write.Startup, nil
	default:
		return "", apierr.New(apierr.ParameterNotAllowed, "unknown full-configuration type %q", t)
	}
}

func (s *Server) handleFullConfigurationGet(w http.ResponseWriter, r *http.Request, target write.FullConfigTarget) {
	if target == write.Startup {
		doc := s.Write.StartupDocument()
		if doc == nil {
			doc = map[string]any{"configuration": map[string]any{}}
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			writeError(w, r, apierr.New(apierr.TransactionFailed, "encoding startup configuration: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(encoded)
		return
	}

	root, err := s.Resolver.Resolve(r.Context(), "/")
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := s.Read.Serialize(r.Context(), root, &read.Params{Selector: "configuration"})
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		writeError(w, r, apierr.New(apierr.TransactionFailed, "encoding running configuration: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(encoded)
}

func (s *Server) handleFullConfigurationPut(w http.ResponseWriter, r *http.Request, target write.FullConfigTarget) {
	doc, err := decodeJSONBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Write.ApplyFullConfiguration(r.Context(), target, doc); err != nil {
		writeError(w, r, err)
		return
	}
	emitAudit(r.Context(), auditSysConfig, "full-configuration (%s) replaced", target)
	w.WriteHeader(http.StatusOK)
}
