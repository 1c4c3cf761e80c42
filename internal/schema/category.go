package schema

// RowValues is the minimal view onto a row's values a dynamic-category rule
// needs: the stringified value of one named column. Implemented by
// internal/idl.Row so this package stays independent of the IDL.
type RowValues interface {
	StringValue(column string) (string, bool)
}

// EffectiveCategory computes the category a column has on one particular
// row, applying the column's DynamicCategory rule (if any). Dynamic
// categories default to Configuration when no rule matches, per spec.md §3.
func EffectiveCategory(col *Column, row RowValues) Category {
	return effectiveCategory(col.Name, col.Category, col.Dynamic, row)
}

// EffectiveCategoryMap is the MapColumn equivalent of EffectiveCategory.
func EffectiveCategoryMap(col *MapColumn, row RowValues) Category {
	return effectiveCategory(col.Name, col.Category, col.Dynamic, row)
}

// effectiveCategory implements the two DynamicCategory forms from
// spec.md §3:
//   - "per-value": dyn.Follows is empty, dyn.PerValue keys on this column's
//     own value.
//   - "follows": dyn.Follows names another column; dyn.PerValue keys on
//     *that* column's value. This is the form exercised by the Route
//     table's "from" column (spec.md S3/S4): every other column's
//     category follows the value of "from".
func effectiveCategory(name string, static Category, dyn *DynamicCategory, row RowValues) Category {
	if dyn == nil {
		return static
	}
	key := name
	if dyn.Follows != "" {
		key = dyn.Follows
	}
	if row != nil {
		if v, ok := row.StringValue(key); ok {
			if cat, ok := dyn.PerValue[v]; ok {
				return cat
			}
		}
	}
	return Configuration
}
