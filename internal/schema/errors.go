package schema

import "fmt"

// Error is raised while parsing or post-processing an extended schema
// document. It always carries the table (and, where applicable, the
// column) that triggered the failure.
type Error struct {
	Table   string
	Column  string
	Message string
}

func (e *Error) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema: table %q column %q: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("schema: table %q: %s", e.Table, e.Message)
}

func errf(table, column, format string, args ...any) *Error {
	return &Error{Table: table, Column: column, Message: fmt.Sprintf(format, args...)}
}
