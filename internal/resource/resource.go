// Package resource implements the URI Resolver: it parses a REST path into
// a linked chain of Resource nodes, each step traversing the schema and the
// IDL replica, per spec.md §3 and §4.3.
package resource

import (
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// Relation describes how a Resource node relates to its Next node.
type Relation string

// The three relation kinds a resolved URI segment can carry.
const (
	RelationChild         Relation = "child"
	RelationBackReference  Relation = "back-reference"
	RelationTopLevel       Relation = "top-level"
)

// Resource is one node of a parsed URI's resolution chain. The terminal
// node carries either a concrete Row (instance URI) or a nil Row
// (collection URI).
type Resource struct {
	Table    *schema.Table
	Row      *idl.Row // nil for a collection URI
	Column   string   // the column on Table that leads to Next, if any
	Relation Relation
	Index    []string // the URI-index segments that selected Row, if any

	Next *Resource
}

// IsCollection reports whether this resource node addresses a collection
// (no concrete row) rather than one instance.
func (r *Resource) IsCollection() bool {
	return r.Row == nil
}

// Tail walks to the last node of the chain (the one the request actually
// targets; preceding nodes are just the path that got there).
func (r *Resource) Tail() *Resource {
	node := r
	for node.Next != nil {
		node = node.Next
	}
	return node
}

// Chain returns every node from the head (System) to the tail, inclusive.
func (r *Resource) Chain() []*Resource {
	var nodes []*Resource
	for node := r; node != nil; node = node.Next {
		nodes = append(nodes, node)
	}
	return nodes
}
