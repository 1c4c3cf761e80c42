package restapi

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// sessionCookieName is the cookie POST /login issues and the auth gate
// reads back, named after core/access/jwt.go's "Kurbisio-JWT" cookie
// convention but scoped to this service.
const sessionCookieName = "restd_session"

// Authorization is the per-request identity/role set, mirroring
// core/access/authorization.go's Authorization struct: a role list plus
// an identity string, threaded through the context by the auth gate.
type Authorization struct {
	Identity string   `json:"identity"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether a carries the named role.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{ name string }

var authContextKey = &contextKey{"authorization"}

// ContextWithAuthorization attaches an Authorization to ctx.
func ContextWithAuthorization(ctx context.Context, a *Authorization) context.Context {
	return context.WithValue(ctx, authContextKey, a)
}

// AuthorizationFromContext returns the Authorization a prior auth gate
// attached to ctx, or nil if the request was never authenticated (e.g.
// auth is disabled, or the route is public).
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, _ := ctx.Value(authContextKey).(*Authorization)
	return a
}

// Authenticator validates a request's session and returns the resulting
// Authorization. Per spec.md §1's Non-goals ("enforcing authorization
// beyond delegating to a pluggable permission check"), this package
// specifies only the hook; CookieAuthenticator below is the one concrete
// implementation it ships, grounded on core/access/jwt.go's
// cookie-carried JWT pattern.
type Authenticator interface {
	Authenticate(r *http.Request) (*Authorization, error)
}

// PermissionChecker consults an RBAC mapping for one request, per spec.md
// §4.8 step 4. The default AllowAll always permits, since full RBAC
// enforcement is explicitly out of scope (spec.md §1) beyond this hook.
type PermissionChecker interface {
	Allowed(ctx context.Context, auth *Authorization, method, path string) bool
}

// AllowAll is the default PermissionChecker.
type AllowAll struct{}

// Allowed always returns true.
func (AllowAll) Allowed(ctx context.Context, auth *Authorization, method, path string) bool {
	return true
}

// CredentialChecker validates a username/password pair for POST /login,
// returning the resulting role set. Pluggable for the same reason
// Authenticator is: spec.md treats credential storage as external.
type CredentialChecker interface {
	Check(ctx context.Context, username, password string) (roles []string, ok bool)
}

type sessionClaims struct {
	Identity string   `json:"identity"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// CookieAuthenticator verifies the HMAC-signed session cookie POST /login
// issued, the Go equivalent of core/access/jwt.go's cookie-carried JWT
// check (there, an externally-issued RS256 token off a JWKS endpoint;
// here, a self-issued HS256 token since this service is its own issuer).
type CookieAuthenticator struct {
	Secret []byte
}

// Authenticate implements Authenticator.
func (a *CookieAuthenticator) Authenticate(r *http.Request) (*Authorization, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, errNoSession
	}
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errNoSession
	}
	return &Authorization{Identity: claims.Identity, Roles: claims.Roles}, nil
}

// IssueSessionCookie builds and sets the session cookie for a successful
// POST /login, valid for sessionTTL.
func IssueSessionCookie(w http.ResponseWriter, secret []byte, identity string, roles []string, secure bool) error {
	claims := sessionClaims{
		Identity: identity,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionTTL),
	})
	return nil
}

// ClearSessionCookie implements POST /logout.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

const sessionTTL = 12 * time.Hour

var errNoSession = &noSessionError{}

type noSessionError struct{}

func (*noSessionError) Error() string { return "no valid session" }
