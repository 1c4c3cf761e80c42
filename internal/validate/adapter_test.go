package validate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/validate"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc := []byte(`{
		"root": "system",
		"tables": {
			"system": {
				"is_root": true,
				"references": {
					"widgets": {"relation":"child","ref_table":"widget","n_min":0,"n_max":0}
				}
			},
			"widget": {
				"index_columns": ["name"],
				"columns": {
					"name": {"category":"configuration","type":"string","mutable":true}
				}
			}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	return s
}

func TestAdapterApprovesWithNoValidators(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	adapter := validate.NewAdapter(nil)

	ledger := validate.NewLedger()
	ledger.Record(validate.Mutation{Op: validate.OpCreate, Table: s.Table("widget")})
	require.NoError(t, adapter.Run(context.Background(), ledger, s, db))
}

func TestAdapterRejectsOnValidatorError(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	reg := validate.NewRegistry()
	reg.RegisterModification("widget", func(ctx context.Context, m validate.Mutation, s *schema.Schema, db *idl.DB) error {
		return validate.NewValidationError(10001, "widgets are not allowed today")
	})
	adapter := validate.NewAdapter(reg)

	ledger := validate.NewLedger()
	ledger.Record(validate.Mutation{Op: validate.OpCreate, Table: s.Table("widget")})
	err := adapter.Run(context.Background(), ledger, s, db)
	require.Error(t, err)
}

func TestAdapterRunsDeleteValidatorsBeforeModification(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	reg := validate.NewRegistry()

	var order []string
	reg.RegisterDeletion("widget", func(ctx context.Context, m validate.Mutation, s *schema.Schema, db *idl.DB) error {
		order = append(order, "delete")
		return nil
	})
	reg.RegisterModification("widget", func(ctx context.Context, m validate.Mutation, s *schema.Schema, db *idl.DB) error {
		order = append(order, "modify")
		return nil
	})
	adapter := validate.NewAdapter(reg)

	ledger := validate.NewLedger()
	ledger.Record(validate.Mutation{Op: validate.OpCreate, Table: s.Table("widget")})
	ledger.Record(validate.Mutation{Op: validate.OpDelete, Table: s.Table("widget")})
	require.NoError(t, adapter.Run(context.Background(), ledger, s, db))
	require.Equal(t, []string{"delete", "modify"}, order)
}

func TestBuiltinSubscriberValidatorRejectsDirectMutation(t *testing.T) {
	doc := []byte(`{
		"root": "system",
		"tables": {
			"system": {"is_root": true, "references": {"subscribers": {"relation":"child","ref_table":"subscriber","n_min":0,"n_max":0}}},
			"subscriber": {"index_columns": ["name"], "columns": {"name": {"category":"configuration","type":"string","mutable":true}}}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	db := idl.New(s)

	reg := validate.NewRegistry()
	validate.RegisterBuiltins(reg, nil)
	adapter := validate.NewAdapter(reg)

	ledger := validate.NewLedger()
	ledger.Record(validate.Mutation{Op: validate.OpCreate, Table: s.Table("subscriber")})
	require.Error(t, adapter.Run(context.Background(), ledger, s, db))

	internalCtx := validate.ContextAllowInternalMutation(context.Background())
	require.NoError(t, adapter.Run(internalCtx, ledger, s, db))
}
