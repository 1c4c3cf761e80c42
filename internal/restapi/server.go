// Package restapi is the HTTP/WS Front Door, per spec.md §4.8-§4.9: routing,
// auth/permission gates, conditional requests, error-to-status mapping, the
// WebSocket notification lifecycle, and CORS. Routing uses
// github.com/gorilla/mux exactly as core/backend/backend.go does
// (UseEncodedPath, a PathPrefix route for the resource paths);
// response compression uses github.com/gorilla/handlers.CompressHandler, the
// same library core/backend/compress.go wires in for the same purpose.
package restapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/switchdb/restd/internal/conn"
	"github.com/switchdb/restd/internal/config"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/notify"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/write"
)

// Server wires every Front Door dependency together and builds the
// gorilla/mux router the process binds to its listen address.
type Server struct {
	Schema   *schema.Schema
	DB       *idl.DB
	Resolver *resource.Resolver
	Read     *read.Engine
	Write    *write.Engine
	Notify   *notify.Engine
	Conn     *conn.Manager
	Config   *config.Config
	WS       *WSDispatcher

	Authenticator Authenticator
	Permissions   PermissionChecker
	Credentials   CredentialChecker
	SessionSecret []byte
	Custom        *CustomEndpoints
	Logs          LogQuerier
}

// NewServer builds a Server with sane defaults for the pluggable hooks
// (AllowAll permissions, no custom endpoints) the caller hasn't set. ne's
// Dispatcher should be the same ws returned this call wraps, so that the
// Notification Engine's Tick calls reach the very connections this Server
// accepts; see cmd/restd/main.go's wiring order.
func NewServer(s *schema.Schema, db *idl.DB, rz *resource.Resolver, re *read.Engine, we *write.Engine, ne *notify.Engine, cm *conn.Manager, cfg *config.Config, ws *WSDispatcher) *Server {
	return &Server{
		Schema: s, DB: db, Resolver: rz, Read: re, Write: we, Notify: ne, Conn: cm, Config: cfg, WS: ws,
		Permissions:   AllowAll{},
		Custom:        NewCustomEndpoints(),
		SessionSecret: []byte(cfg.SessionCookieSecret),
	}
}

// Router builds the full route tree and middleware pipeline, per spec.md
// §4.8's routing table.
func (s *Server) Router() *mux.Router {
	if s.Authenticator == nil {
		s.Authenticator = &CookieAuthenticator{Secret: s.SessionSecret}
	}
	if s.Credentials == nil {
		s.Credentials = StaticCredentials{}
	}

	router := mux.NewRouter()
	router.UseEncodedPath()
	router.Use(s.corsMiddleware)
	router.Use(compressionMiddleware)

	router.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/account", s.handleCustom("account")).Methods(http.MethodGet, http.MethodPut, http.MethodOptions)

	api := router.PathPrefix("/rest/v1").Subrouter()
	api.Use(s.readyGateMiddleware)
	api.Use(s.authGateMiddleware)
	api.Use(s.permissionGateMiddleware)
	api.Use(s.cacheControlMiddleware)

	api.HandleFunc("/ws/notifications", s.handleWebSocket).Methods(http.MethodGet)
	api.HandleFunc("/system/full-configuration", s.handleFullConfiguration).
		Methods(http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodOptions)
	// spec.md §4.3: every resource path has the fixed literal form
	// /rest/v1/system[/…] — "system" names the schema's singleton root
	// table and is never itself a dynamically-resolved path segment (see
	// SPEC_FULL.md's Open Question 6). handleResource strips it before
	// handing the remainder to internal/resource.Resolver, whose own
	// Resolve contract never consumes a segment for the root.
	api.PathPrefix("/system").HandlerFunc(s.handleResource).
		Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions)

	return s.withPathNormalization(router)
}
