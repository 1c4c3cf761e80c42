package restapi

import (
	"io"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/xeipuuv/gojsonschema"
)

// CustomEndpoint is a named, schema-validated request/response hook outside
// the declarative resource tree, per spec.md §4.8's "GET/PUT /account" and
// the account-schema-path environment setting, generalized so a second
// endpoint (e.g. password_policy, per SPEC_FULL.md's supplemented features)
// can register the same way. Grounded on core/schema/schema.go's
// gojsonschema.Validator: bodies are compiled once at registration and
// validated per-request via the same library.
type CustomEndpoint struct {
	Get func(r *http.Request) (any, error)
	Put func(r *http.Request, body map[string]any) error

	schema *gojsonschema.Schema
}

// CustomEndpoints is the registry handleCustom consults by name.
type CustomEndpoints struct {
	mu        sync.RWMutex
	endpoints map[string]*CustomEndpoint
}

// NewCustomEndpoints returns an empty registry.
func NewCustomEndpoints() *CustomEndpoints {
	return &CustomEndpoints{endpoints: make(map[string]*CustomEndpoint)}
}

// Register compiles schemaJSON (may be empty to skip body validation on PUT)
// and adds the endpoint under name.
func (c *CustomEndpoints) Register(name string, schemaJSON []byte, ep *CustomEndpoint) error {
	if len(schemaJSON) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
		if err != nil {
			return err
		}
		ep.schema = compiled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[name] = ep
	return nil
}

func (c *CustomEndpoints) get(name string) (*CustomEndpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.endpoints[name]
	return ep, ok
}

// handleCustom returns a handler for one registered custom endpoint name.
func (s *Server) handleCustom(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ep, ok := s.Custom.get(name)
		if !ok {
			writeError(w, r, apierr.NotFound(r.URL.Path))
			return
		}
		switch r.Method {
		case http.MethodGet:
			if ep.Get == nil {
				writeError(w, r, apierr.New(apierr.MethodNotAllowed, "GET not supported on %q", name))
				return
			}
			body, err := ep.Get(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			encoded, err := json.Marshal(body)
			if err != nil {
				writeError(w, r, apierr.New(apierr.TransactionFailed, "encoding response: %v", err))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(encoded)
		case http.MethodPut:
			if ep.Put == nil {
				writeError(w, r, apierr.New(apierr.MethodNotAllowed, "PUT not supported on %q", name))
				return
			}
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, r, apierr.New(apierr.DataValidationFailed, "reading body: %v", err))
				return
			}
			if ep.schema != nil {
				result, err := ep.schema.Validate(gojsonschema.NewBytesLoader(raw))
				if err != nil || !result.Valid() {
					writeError(w, r, apierr.New(apierr.DataValidationFailed, "%q does not satisfy its schema", name))
					return
				}
			}
			body := map[string]any{}
			if err := json.Unmarshal(raw, &body); err != nil {
				writeError(w, r, apierr.New(apierr.DataValidationFailed, "malformed JSON body: %v", err))
				return
			}
			if err := ep.Put(r, body); err != nil {
				writeError(w, r, err)
				return
			}
			emitAudit(r.Context(), auditSysConfig, "custom endpoint %q updated", name)
			w.WriteHeader(http.StatusOK)
		default:
			writeError(w, r, apierr.New(apierr.MethodNotAllowed, "method %s not allowed on %q", r.Method, name))
		}
	}
}
