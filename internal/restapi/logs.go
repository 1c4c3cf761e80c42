package restapi

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/switchdb/restd/internal/apierr"
)

// LogQuerier is the external log collaborator GET /logs delegates to, per
// spec.md §1 ("audit/event logging storage and query: only hook points are
// specified"). A Server with no LogQuerier set answers 404, since log
// storage is explicitly out of this package's scope.
type LogQuerier interface {
	QueryLogs(r *http.Request) (any, error)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.Logs == nil {
		writeError(w, r, apierr.NotFound(r.URL.Path))
		return
	}
	body, err := s.Logs.QueryLogs(r)
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
}
