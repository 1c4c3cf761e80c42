// Package obslog provides request-scoped structured logging, adapted from
// core/logger/logger.go: a logrus.Entry carrying a request id and (once
// authenticated) an identity, threaded through context.Context so every
// layer from internal/restapi down to internal/write logs with the same
// fields without passing a logger explicitly.
package obslog

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type contextKey struct{}

var loggerKey = &contextKey{}

const (
	fieldRequestID = "requestID"
	fieldIdentity  = "identity"
)

// Init configures the package-wide logrus formatter and level, per
// spec.md's ambient logging requirements.
func Init(level logrus.Level) {
	f := new(logrus.TextFormatter)
	f.TimestampFormat = "2006-01-02T15:04:05.000Z07:00"
	f.FullTimestamp = true
	logrus.SetFormatter(f)
	logrus.SetLevel(level)
}

// Middleware attaches a fresh request-id logger to every request's context
// that doesn't already carry one, mirroring core/logger/logger.go's
// AddRequestID.
func Middleware(router *mux.Router) {
	router.Use(func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := WithLogger(r.Context())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	})
}

// Default returns a logger carrying no request context, for use outside a
// request (startup, background tickers).
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithLogger returns a context carrying a request-id logger, reusing any
// logger the context already carries.
func WithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else if rlog := fromContext(ctx); rlog != nil {
		return ctx, rlog
	}
	id, _ := uuid.NewUUID()
	rlog := logrus.WithField(fieldRequestID, id.String())
	return context.WithValue(ctx, loggerKey, rlog), rlog
}

// WithIdentity attaches an authenticated identity to the context's logger,
// for requests that have passed the auth gate.
func WithIdentity(ctx context.Context, identity string) (context.Context, *logrus.Entry) {
	ctx, rlog := WithLogger(ctx)
	rlog = rlog.WithField(fieldIdentity, identity)
	return context.WithValue(ctx, loggerKey, rlog), rlog
}

// FromContext returns the context's logger, or the default logger if none
// is present.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return Default()
	}
	if rlog := fromContext(ctx); rlog != nil {
		return rlog
	}
	return Default()
}

// RequestID returns the request id carried by the context's logger, or ""
// if none is present. Used for audit-log correlation (spec.md §4.8).
func RequestID(ctx context.Context) string {
	rlog := fromContext(ctx)
	if rlog == nil {
		return ""
	}
	v, _ := rlog.Data[fieldRequestID].(string)
	return v
}

func fromContext(ctx context.Context) *logrus.Entry {
	rlog, _ := ctx.Value(loggerKey).(*logrus.Entry)
	return rlog
}
