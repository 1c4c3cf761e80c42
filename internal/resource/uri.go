package resource

import "net/url"

// URI renders a resolved Resource chain (as returned by Resolve, head
// first) back into the REST path it was parsed from, percent-encoding each
// segment. This is the inverse of Resolve and backs the round-trip
// invariant: URI(Resolve(p)) == p for every valid p.
func URI(head *Resource) string {
	path := ""
	for node := head.Next; node != nil; node = node.Next {
		var segment string
		switch node.Relation {
		case RelationChild:
			segment = node.Column
		case RelationBackReference, RelationTopLevel:
			segment = node.Table.PluralName
		default:
			segment = node.Table.PluralName
		}
		path += "/" + url.PathEscape(segment)
		for _, key := range node.Index {
			path += "/" + url.PathEscape(key)
		}
	}
	return path
}
