package restapi

import (
	"context"
	"net/http"

	"github.com/switchdb/restd/internal/obslog"
)

// auditClass is the two-way audit classification spec.md §4.8 step 9
// names: USYS_CONFIG for anything that mutates system configuration,
// USER_LOGIN for authentication events.
type auditClass string

const (
	auditSysConfig auditClass = "USYS_CONFIG"
	auditUserLogin auditClass = "USER_LOGIN"
)

// emitAudit logs one audit record through the request's obslog entry.
// Audit-log persistence itself is an external collaborator per spec.md §1
// ("audit logging: only hook points are specified") — this is that hook,
// grounded on core/logger/logger.go's field-structured logging.
func emitAudit(ctx context.Context, class auditClass, format string, args ...any) {
	obslog.FromContext(ctx).WithField("audit_class", string(class)).Infof(format, args...)
}

// classifyAuditForMethod returns the audit class a /rest/v1 request of the
// given method falls under: mutations are USYS_CONFIG, everything else
// (reads) is not audited at all (spec.md names only these two classes).
func classifyAuditForMethod(method string) (auditClass, bool) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return auditSysConfig, true
	default:
		return "", false
	}
}
