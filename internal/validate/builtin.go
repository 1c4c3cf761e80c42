package validate

import (
	"context"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
)

// Table names the Notification Engine's own tables are expected to use;
// internal/notify's schema wiring and these validators agree on them.
const (
	SubscriberTable   = "subscriber"
	SubscriptionTable = "subscription"
)

type internalOriginKey struct{}

// ContextAllowInternalMutation marks ctx as coming from the WS lifecycle
// (§4.9) rather than an ordinary REST request, so the "no explicit add/
// delete of websocket subscribers" validator lets it through.
func ContextAllowInternalMutation(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalOriginKey{}, true)
}

func isInternalMutation(ctx context.Context) bool {
	v, _ := ctx.Value(internalOriginKey{}).(bool)
	return v
}

// RegisterBuiltins installs the pre-registered validators of spec.md §4.6:
// subscribers can only be created/deleted by the WS lifecycle, a subscriber
// may not hold two subscriptions to the same resource URI, and a
// subscription's resource URI must resolve at creation time. rz is used
// only by the third validator.
func RegisterBuiltins(reg *Registry, rz *resource.Resolver) {
	reg.RegisterModification(SubscriberTable, noExplicitSubscriberModification)
	reg.RegisterDeletion(SubscriberTable, noExplicitSubscriberDeletion)

	reg.RegisterModification(SubscriptionTable, noDuplicateSubscriptionURI)
	reg.RegisterModification(SubscriptionTable, subscriptionURIMustResolve(rz))
}

// mutationString reads column's staged value from m.Body if present (the
// request's own pending write), falling back to the committed row.
func mutationString(m Mutation, column string) (string, bool) {
	if m.Body != nil {
		if v, ok := m.Body[column]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
			return "", false
		}
	}
	if m.Row != nil {
		return m.Row.StringValue(column)
	}
	return "", false
}

func noExplicitSubscriberModification(ctx context.Context, m Mutation, s *schema.Schema, db *idl.DB) error {
	if isInternalMutation(ctx) {
		return nil
	}
	return NewValidationError(apierr.CodeMethodProhibited, "subscriber rows cannot be created or modified directly; they are managed by the websocket lifecycle")
}

func noExplicitSubscriberDeletion(ctx context.Context, m Mutation, s *schema.Schema, db *idl.DB) error {
	if isInternalMutation(ctx) {
		return nil
	}
	return NewValidationError(apierr.CodeMethodProhibited, "subscriber rows cannot be deleted directly; they are managed by the websocket lifecycle")
}

func noDuplicateSubscriptionURI(ctx context.Context, m Mutation, s *schema.Schema, db *idl.DB) error {
	if m.Op != OpCreate || m.ParentRow == nil {
		return nil
	}
	table := s.Table(SubscriptionTable)
	subscriberTable := s.Table(SubscriberTable)
	if table == nil || subscriberTable == nil {
		return nil
	}
	resourceURI, ok := mutationString(m, "resource")
	if !ok || resourceURI == "" {
		return nil
	}
	backCol, ok := schema.BackReferenceColumn(table, subscriberTable.Name)
	if !ok {
		return nil
	}
	for _, sibling := range db.RowsMatchingRef(SubscriptionTable, backCol, m.ParentRow.ID) {
		if m.Row != nil && sibling.ID == m.Row.ID {
			continue
		}
		if v, ok := sibling.StringValue("resource"); ok && v == resourceURI {
			return NewValidationError(apierr.CodeDuplicateResource, "subscriber already holds a subscription to %q", resourceURI)
		}
	}
	return nil
}

func subscriptionURIMustResolve(rz *resource.Resolver) ModificationValidator {
	return func(ctx context.Context, m Mutation, s *schema.Schema, db *idl.DB) error {
		if m.Op != OpCreate {
			return nil
		}
		resourceURI, ok := mutationString(m, "resource")
		if !ok || resourceURI == "" {
			return NewValidationError(apierr.CodeVerificationFailed, "subscription requires a resource uri")
		}
		if rz == nil {
			return nil
		}
		if _, err := rz.Resolve(ctx, resourceURI); err != nil {
			return NewValidationError(apierr.CodeVerificationFailed, "subscription resource uri %q does not resolve", resourceURI)
		}
		return nil
	}
}
