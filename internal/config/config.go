// Package config loads process configuration from environment variables,
// the Go equivalent of ops/settings.py / opsrest/settings.py, using the same
// github.com/joeshaw/envdecode library services/basic/basic.go's Service
// struct uses for its POSTGRES connection string.
package config

import (
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds every environment-derived setting this service needs, per
// SPEC_FULL.md §2.
type Config struct {
	// ListenAddress is the HTTP/WS bind address, e.g. ":8443".
	ListenAddress string `env:"LISTEN_ADDRESS,optional,default=:8443" description:"HTTP/WS bind address"`

	// SchemaPath points at the JSON schema document internal/schema.Load
	// parses at startup.
	SchemaPath string `env:"SCHEMA_PATH,required" description:"path to the schema JSON document"`

	// ForceHTTPS, when set, makes the front door 301-redirect any plain
	// HTTP request to HTTPS, per spec.md §4.8 step 2.
	ForceHTTPS bool `env:"FORCE_HTTPS,optional,default=false" description:"redirect HTTP to HTTPS"`

	// CreateSSL, when set and no cert/key pair exists at TLSCertPath/
	// TLSKeyPath, generates a default self-signed pair, per spec.md §6.
	CreateSSL   bool   `env:"CREATE_SSL,optional,default=false" description:"generate a self-signed TLS pair if missing"`
	TLSCertPath string `env:"TLS_CERT_PATH,optional,default=/etc/ssl/certs/server.crt" description:"TLS certificate path"`
	TLSKeyPath  string `env:"TLS_KEY_PATH,optional,default=/etc/ssl/private/server-private.key" description:"TLS private key path"`

	// PluginDir is the configurable validator plugin directory of spec.md
	// §6. It is loaded but nothing in the process reads it: validators are
	// registered in code through internal/validate's Registry.
	PluginDir string `env:"PLUGIN_DIR,optional,default=/etc/restd/plugins" description:"validator plugin directory"`

	// AccountSchemaPath is the JSON schema the custom /account endpoint
	// validates request bodies against, per spec.md §4.8/§6.
	AccountSchemaPath string `env:"ACCOUNT_SCHEMA_PATH,optional,default=/etc/restd/account-schema.json" description:"JSON schema for the /account endpoint"`

	// SessionCookieSecret signs the session cookie POST /login issues.
	SessionCookieSecret string `env:"SESSION_COOKIE_SECRET,required" description:"HMAC secret for signing session cookies"`

	// AuthEnabled toggles the authentication/permission gates of spec.md
	// §4.8 steps 3-4; disabled only for local development and tests.
	AuthEnabled bool `env:"AUTH_ENABLED,optional,default=true" description:"enable the authentication/permission gates"`

	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string `env:"LOG_LEVEL,optional,default=info" description:"logrus level name"`

	// IDLConnectTimeout is the per-attempt (re)connect timeout setting. It
	// is loaded but nothing in the process reads it; the Connection Manager
	// does not bound a reconnect attempt.
	IDLConnectTimeout time.Duration `env:"IDL_CONNECT_TIMEOUT,optional,default=5s" description:"timeout for one IDL (re)connect attempt"`

	// IDLReconnectInterval is the fixed retry cadence while disconnected.
	IDLReconnectInterval time.Duration `env:"IDL_RECONNECT_INTERVAL,optional,default=2s" description:"retry cadence while the IDL connection is down"`

	// IDLTickInterval is how often the Connection Manager checks the
	// replica for forward progress while connected.
	IDLTickInterval time.Duration `env:"IDL_TICK_INTERVAL,optional,default=200ms" description:"IDL progress-check cadence while connected"`
}

// Load reads Config from the process environment, per spec.md §6's
// environment section.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
