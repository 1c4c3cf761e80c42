// Package schema is the in-memory representation of the extended switch
// configuration/state schema: tables, columns, references and the
// dynamic-category rules that govern read/write visibility.
//
// The schema is parsed once at startup and is immutable afterwards; callers
// never mutate a *Table or *Column after Load returns.
package schema

// Category is one of the four column visibility buckets. A category may be
// static (declared on the column) or computed per-row from a DynamicCategory
// rule.
type Category string

// The four column categories.
const (
	Configuration Category = "configuration"
	Status        Category = "status"
	Statistics    Category = "statistics"
	Reference     Category = "reference"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case Configuration, Status, Statistics, Reference:
		return true
	}
	return false
}

// Type is a column's scalar value type.
type Type string

// Supported column value types.
const (
	TypeInt    Type = "int"
	TypeReal   Type = "real"
	TypeBool   Type = "bool"
	TypeString Type = "string"
	TypeUUID   Type = "uuid"
)

// Relation describes how a Reference column relates its owning table to the
// table it points at.
type Relation string

// The three reference relations.
const (
	RelationChild     Relation = "child"
	RelationParent    Relation = "parent"
	RelationReference Relation = "reference"
)

// OnDemandKind classifies how a table's non-index columns are replicated.
type OnDemandKind string

// The three on-demand fetch kinds.
const (
	OnDemandNone    OnDemandKind = "none"
	OnDemandPartial OnDemandKind = "partial"
	OnDemandFull    OnDemandKind = "full"
)

// DynamicCategory computes a column's effective category per row by looking
// up a value in PerValue: the value of the column named by Follows when it
// is set, else this column's own value. Both may be set together; a
// rule with neither is rejected at load time. No match means Configuration.
type DynamicCategory struct {
	// PerValue maps the looked-up value to an effective category.
	PerValue map[string]Category `json:"per_value,omitempty"`
	// Follows, when set, names the column on the same row whose value is
	// looked up in this rule's PerValue instead of this column's own value.
	Follows string `json:"follows,omitempty"`
}

// Range is an inclusive numeric bound. Either bound may be nil to mean
// unbounded in that direction.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Column is a scalar column on a Table.
type Column struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Type     Type     `json:"type"`
	Optional bool     `json:"optional"`
	Mutable  bool     `json:"mutable"`
	Range    *Range   `json:"range,omitempty"`
	Enum     []string `json:"enum,omitempty"`
	Empty    any      `json:"empty_value,omitempty"`

	// Dynamic, when non-nil, overrides Category on a per-row basis.
	Dynamic *DynamicCategory `json:"dynamic,omitempty"`
}

// MapColumn is a Column whose value is a string-keyed map instead of a
// scalar. Each key may additionally have its own schema entry in KVS, used
// to validate/describe well-known keys.
type MapColumn struct {
	Column
	ValueType  Type              `json:"value_type"`
	ValueRange *Range            `json:"value_range,omitempty"`
	KeyName    string            `json:"keyname"`
	KVS        map[string]Column `json:"kvs,omitempty"`
}

// Reference is a Column whose value (or values, for lists/maps) is one or
// more rows of another table.
type Reference struct {
	Column
	RefTable  string `json:"ref_table"`
	RelKind   Relation `json:"relation"`
	NMin      int    `json:"n_min"`
	NMax      int    `json:"n_max"` // 0 means unbounded
	KVType    bool   `json:"kv_type"`
	KVKeyType Type   `json:"kv_key_type,omitempty"`
	KeyName   string `json:"keyname,omitempty"`
}

// Scalar reports whether this reference holds at most one row.
func (r *Reference) Scalar() bool {
	return r.NMax == 1
}

// List reports whether this reference is an ordered, non-keyed list of rows.
func (r *Reference) List() bool {
	return !r.Scalar() && !r.KVType
}

// Table is one table of the extended schema.
type Table struct {
	Name        string
	PluralName  string
	IsRoot      bool
	IsMany      bool
	ParentName  string // name of the table reached via the forward parent reference, "" if none
	Children    []string
	IndexColumns []string // ordered index columns, may be empty (UUID-indexed only-child)
	Indexes     [][]string
	MutableFlag bool
	DynamicFlag bool
	OnDemand    OnDemandKind

	Columns    map[string]*Column
	MapColumns map[string]*MapColumn
	Refs       map[string]*Reference

	// OnDemandReadonly lists the columns that must be fetched on demand
	// before a row can be serialized; OnDemandAlways lists the ones that
	// are always replicated (index and configuration columns, for the
	// partial kind).
	OnDemandReadonly []string
	OnDemandAlways   []string

	// filled in during post-processing
	Parent *Table
}

// Schema is the fully loaded, post-processed extended schema.
type Schema struct {
	Tables map[string]*Table
	Root   string // name of the singleton System table

	// ReferenceMap maps a table name to every (table, column) pair that
	// holds a reference to it. Used by delete-all-references.
	ReferenceMap map[string][]RefSite
}

// RefSite identifies one reference column on one table.
type RefSite struct {
	Table  string
	Column string
}

// Table looks up a table by name, returning nil if it does not exist.
func (s *Schema) Table(name string) *Table {
	return s.Tables[name]
}
