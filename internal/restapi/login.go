package restapi

import (
	"context"
	"net/http"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/obslog"
)

// handleLogin implements POST /login, per spec.md §4.8's routing table:
// form-encoded username+password, set session cookie on success.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, apierr.New(apierr.DataValidationFailed, "malformed form body"))
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, r, apierr.New(apierr.AuthenticationFailed, "username and password are required"))
		return
	}

	roles, ok := s.Credentials.Check(r.Context(), username, password)
	if !ok {
		emitAudit(r.Context(), auditUserLogin, "login failed for %q", username)
		writeError(w, r, apierr.New(apierr.AuthenticationFailed, "invalid credentials"))
		return
	}

	if err := IssueSessionCookie(w, s.SessionSecret, username, roles, s.Config.ForceHTTPS); err != nil {
		writeError(w, r, apierr.New(apierr.TransactionFailed, "issuing session: %v", err))
		return
	}
	emitAudit(r.Context(), auditUserLogin, "login succeeded for %q", username)
	obslog.FromContext(r.Context()).WithField("identity", username).Info("session established")
	w.WriteHeader(http.StatusNoContent)
}

// handleLogout implements POST /logout: clear the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w, s.Config.ForceHTTPS)
	w.WriteHeader(http.StatusNoContent)
}

// Account is one entry of a StaticCredentials map.
type Account struct {
	Password string
	Roles    []string
}

// StaticCredentials is the trivial CredentialChecker this package ships by
// default; real deployments supply their own, per spec.md §1's framing of
// authentication as an external collaborator. It exists so the front door
// is runnable/testable without a real account store.
type StaticCredentials map[string]Account

// Check implements CredentialChecker.
func (c StaticCredentials) Check(ctx context.Context, username, password string) (roles []string, ok bool) {
	a, found := c[username]
	if !found || a.Password != password {
		return nil, false
	}
	return a.Roles, true
}
