package schema

import (
	"fmt"

	"github.com/goccy/go-json"
)

// document is the on-the-wire shape of an extended schema JSON file.
type document struct {
	Root   string                   `json:"root"`
	Tables map[string]tableDocument `json:"tables"`
}

type tableDocument struct {
	IsRoot       bool                          `json:"is_root"`
	IsMany       bool                          `json:"is_many"`
	Mutable      bool                          `json:"mutable"`
	Dynamic      bool                          `json:"dynamic"`
	OnDemand     OnDemandKind                  `json:"on_demand_fetch_kind"`
	IndexColumns []string                      `json:"index_columns"`
	Indexes      [][]string                    `json:"indexes"`
	Columns      map[string]Column             `json:"columns"`
	MapColumns   map[string]MapColumn          `json:"map_columns"`
	References   map[string]Reference          `json:"references"`
}

// onDemandPartialTables is the static table from spec.md §4.1: tables whose
// schema document does not explicitly set an on-demand kind default to
// "partial" if they are one of these well-known on-demand state tables.
var onDemandPartialTables = map[string]bool{
	"bgp_route":    true,
	"bgp_nexthop":  true,
	"route":        true,
	"nexthop":      true,
}

// Load parses an extended schema document and returns the post-processed
// Schema, or an error describing the first problem found (malformed JSON
// yields a wrapped decode error rather than a *Error).
func Load(data []byte) (*Schema, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: invalid json: %w", err)
	}

	s := &Schema{
		Tables:       make(map[string]*Table),
		ReferenceMap: make(map[string][]RefSite),
	}

	for name, td := range doc.Tables {
		t, err := buildTable(name, td)
		if err != nil {
			return nil, err
		}
		s.Tables[name] = t
	}

	root := doc.Root
	if root == "" {
		root = "system"
	}
	if _, ok := s.Tables[root]; !ok {
		return nil, errf(root, "", "root table is not declared")
	}
	s.Root = root

	if err := backfillHierarchy(s); err != nil {
		return nil, err
	}
	if err := buildReferenceMap(s); err != nil {
		return nil, err
	}
	if err := validateDynamicCategories(s); err != nil {
		return nil, err
	}
	classifyOnDemand(s)

	return s, nil
}

func buildTable(name string, td tableDocument) (*Table, error) {
	t := &Table{
		Name:         name,
		PluralName:   Plural(name),
		IsRoot:       td.IsRoot,
		IsMany:       td.IsMany,
		IndexColumns: td.IndexColumns,
		Indexes:      td.Indexes,
		MutableFlag:  td.Mutable,
		DynamicFlag:  td.Dynamic,
		OnDemand:     td.OnDemand,
		Columns:      make(map[string]*Column),
		MapColumns:   make(map[string]*MapColumn),
		Refs:         make(map[string]*Reference),
	}
	for cname, c := range td.Columns {
		c := c
		c.Name = cname
		if !c.Category.Valid() {
			return nil, errf(name, cname, "unknown category %q", c.Category)
		}
		t.Columns[cname] = &c
	}
	for cname, m := range td.MapColumns {
		m := m
		m.Name = cname
		if !m.Category.Valid() {
			return nil, errf(name, cname, "unknown category %q", m.Category)
		}
		t.MapColumns[cname] = &m
	}
	for cname, r := range td.References {
		r := r
		r.Name = cname
		// A reference still has to land in one of the three output buckets
		// (configuration/status/statistics) for selector filtering; default
		// to configuration when the document leaves it unset, matching the
		// common case of a mutable child/parent reference.
		if r.Category == "" {
			r.Category = Configuration
		}
		if !r.Category.Valid() {
			return nil, errf(name, cname, "unknown category %q", r.Category)
		}
		switch r.RelKind {
		case RelationChild, RelationParent, RelationReference:
		default:
			return nil, errf(name, cname, "unknown relation %q", r.RelKind)
		}
		if r.NMax != 0 && r.NMin > r.NMax {
			return nil, errf(name, cname, "impossible n_min/n_max combination: %d/%d", r.NMin, r.NMax)
		}
		if r.NMin < 0 {
			return nil, errf(name, cname, "n_min must not be negative")
		}
		t.Refs[cname] = &r
	}
	return t, nil
}

// backfillHierarchy resolves Parent/Children from the relation kind of each
// reference column, per spec.md §4.1.
func backfillHierarchy(s *Schema) error {
	for _, t := range s.Tables {
		for _, r := range t.Refs {
			child, ok := s.Tables[r.RefTable]
			if !ok {
				return errf(t.Name, r.Name, "reference to unknown table %q", r.RefTable)
			}
			switch r.RelKind {
			case RelationChild:
				// t is the parent of child, reached via t's own column r.Name.
				if child.ParentName != "" && child.ParentName != t.Name {
					return errf(t.Name, r.Name, "table %q already has a parent %q", child.Name, child.ParentName)
				}
				child.ParentName = t.Name
				t.Children = appendUnique(t.Children, child.Name)
			case RelationParent:
				// t is a child of the referenced table, found by scanning t
				// (a "back-reference" in the glossary's terms).
				parent, ok := s.Tables[r.RefTable]
				if !ok {
					return errf(t.Name, r.Name, "reference to unknown table %q", r.RefTable)
				}
				parent.Children = appendUnique(parent.Children, t.Name)
			case RelationReference:
				// non-hierarchical; no parent/child edge.
			}
		}
	}
	for _, t := range s.Tables {
		if t.ParentName != "" {
			t.Parent = s.Tables[t.ParentName]
		}
	}
	return nil
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

// buildReferenceMap builds, for every table T, the set of (table, column)
// pairs anywhere in the schema that reference T. Used by delete-all-references
// (spec.md §4.5 step 3).
func buildReferenceMap(s *Schema) error {
	for _, t := range s.Tables {
		for _, r := range t.Refs {
			if _, ok := s.Tables[r.RefTable]; !ok {
				return errf(t.Name, r.Name, "reference to unknown table %q", r.RefTable)
			}
			s.ReferenceMap[r.RefTable] = append(s.ReferenceMap[r.RefTable], RefSite{Table: t.Name, Column: r.Name})
		}
	}
	return nil
}

// validateDynamicCategories checks that every Follows target exists, per
// spec.md §3's invariant.
func validateDynamicCategories(s *Schema) error {
	checkOne := func(tableName, colName string, dyn *DynamicCategory) error {
		if dyn == nil {
			return nil
		}
		if dyn.Follows == "" && dyn.PerValue == nil {
			return errf(tableName, colName, "dynamic category has neither follows nor per_value")
		}
		if dyn.Follows != "" {
			t := s.Tables[tableName]
			if _, ok := t.Columns[dyn.Follows]; !ok {
				if _, ok := t.Refs[dyn.Follows]; !ok {
					return errf(tableName, colName, "follows unresolved column %q", dyn.Follows)
				}
			}
		}
		return nil
	}
	for _, t := range s.Tables {
		for cname, c := range t.Columns {
			if err := checkOne(t.Name, cname, c.Dynamic); err != nil {
				return err
			}
		}
		for cname, m := range t.MapColumns {
			if err := checkOne(t.Name, cname, m.Dynamic); err != nil {
				return err
			}
		}
	}
	return nil
}

// classifyOnDemand fills OnDemandAlways/OnDemandReadonly per spec.md §4.1.
func classifyOnDemand(s *Schema) {
	for _, t := range s.Tables {
		if t.OnDemand == "" {
			if onDemandPartialTables[t.Name] {
				t.OnDemand = OnDemandPartial
			} else {
				t.OnDemand = OnDemandNone
			}
		}
		if t.OnDemand == OnDemandNone {
			continue
		}
		isIndex := make(map[string]bool, len(t.IndexColumns))
		for _, c := range t.IndexColumns {
			isIndex[c] = true
		}
		for cname, c := range t.Columns {
			switch {
			case t.OnDemand == OnDemandFull:
				t.OnDemandReadonly = append(t.OnDemandReadonly, cname)
			case isIndex[cname] || c.Category == Configuration:
				t.OnDemandAlways = append(t.OnDemandAlways, cname)
			default:
				t.OnDemandReadonly = append(t.OnDemandReadonly, cname)
			}
		}
		for cname := range t.Refs {
			if t.OnDemand == OnDemandFull {
				t.OnDemandReadonly = append(t.OnDemandReadonly, cname)
			} else {
				t.OnDemandReadonly = append(t.OnDemandReadonly, cname)
			}
		}
	}
}
