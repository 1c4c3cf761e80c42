package schema

// ParentReferenceCategory returns the category of the reference column that
// establishes t's place in the tree: t's own column for a back-reference
// (relation=parent), or the parent table's forward column for a child
// reference (relation=child). ok is false if t has neither (a root table,
// or a table reached only through a non-hierarchical relation=reference).
func (s *Schema) ParentReferenceCategory(t *Table) (Category, bool) {
	for _, r := range t.Refs {
		if r.RelKind == RelationParent {
			return r.Category, true
		}
	}
	if t.ParentName == "" {
		return "", false
	}
	parent := s.Tables[t.ParentName]
	if parent == nil {
		return "", false
	}
	for _, r := range parent.Refs {
		if r.RelKind == RelationChild && r.RefTable == t.Name {
			return r.Category, true
		}
	}
	return "", false
}

// BackReferenceColumn finds the column on child that points back at
// parentTable (a relation=parent reference), returning ok=false if child
// carries no such column.
func BackReferenceColumn(child *Table, parentTable string) (string, bool) {
	for _, r := range child.Refs {
		if r.RelKind == RelationParent && r.RefTable == parentTable {
			return r.Name, true
		}
	}
	return "", false
}

// Immutable reports whether t is immutable via REST, per spec.md §3: a
// table with no configuration-category index column that is either the
// root system table or reached through a non-configuration parent
// reference. POST and DELETE always fail on an immutable table.
func (s *Schema) Immutable(t *Table) bool {
	for _, col := range t.IndexColumns {
		if c, ok := t.Columns[col]; ok && c.Category == Configuration {
			return false
		}
	}
	if t.IsRoot {
		return true
	}
	cat, ok := s.ParentReferenceCategory(t)
	if !ok {
		return false
	}
	return cat != Configuration
}
