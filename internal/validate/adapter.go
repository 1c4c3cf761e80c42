package validate

import (
	"context"
	"fmt"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// Adapter runs a ledger's mutations through the registered validators, in
// the delete-then-modify order of spec.md §4.6: DELETE validators first (so
// they see every row's pre-state, before CREATE/UPDATE validators from the
// same write might otherwise shadow it), then CREATE, then UPDATE.
type Adapter struct {
	Registry *Registry
}

// NewAdapter builds an Adapter over reg. A nil reg is valid and approves
// everything (no validators registered).
func NewAdapter(reg *Registry) *Adapter {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Adapter{Registry: reg}
}

// Run validates every mutation in l against s/db. If any validator reports
// an error, Run returns a *apierr.Error of kind DataValidationFailed
// wrapping the first one (errors accumulate internally; spec.md §4.6 says
// the caller sees "the first error").
func (a *Adapter) Run(ctx context.Context, l *Ledger, s *schema.Schema, db *idl.DB) error {
	var errs []*ValidationError

	for _, m := range l.ByOp(OpDelete) {
		for _, v := range a.Registry.deletion[m.Table.Name] {
			if err := v(ctx, m, s, db); err != nil {
				errs = append(errs, asValidationError(err))
			}
		}
	}
	for _, m := range l.ByOp(OpCreate) {
		for _, v := range a.Registry.modification[m.Table.Name] {
			if err := v(ctx, m, s, db); err != nil {
				errs = append(errs, asValidationError(err))
			}
		}
	}
	for _, m := range l.ByOp(OpUpdate) {
		for _, v := range a.Registry.modification[m.Table.Name] {
			if err := v(ctx, m, s, db); err != nil {
				errs = append(errs, asValidationError(err))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	return apierr.New(apierr.DataValidationFailed, "%s", first.Error()).WithCode(first.Code)
}

// ValidationError is a validator plugin's raised failure, per spec.md §4.6:
// "A validator raises ValidationError(code, message)".
type ValidationError struct {
	Code    int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError; code is one of
// internal/apierr's business codes (10001-10006) or 0 for an unclassified
// failure.
func NewValidationError(code int, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func asValidationError(err error) *ValidationError {
	if ve, ok := err.(*ValidationError); ok {
		return ve
	}
	return &ValidationError{Message: err.Error()}
}
