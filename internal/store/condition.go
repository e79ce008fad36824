package store

import "strings"

// Condition is a parameterized SQL boolean expression over the entities
// table. The zero Condition matches every row.
type Condition struct {
	SQL  string
	Args []any
}

// Where builds a condition from a SQL fragment and its arguments.
func Where(sql string, args ...any) Condition {
	return Condition{SQL: sql, Args: args}
}

// IsZero reports whether the condition matches everything.
func (c Condition) IsZero() bool {
	return strings.TrimSpace(c.SQL) == ""
}

// And combines two conditions. Zero conditions are dropped.
func (c Condition) And(other Condition) Condition {
	switch {
	case c.IsZero():
		return other
	case other.IsZero():
		return c
	}
	args := make([]any, 0, len(c.Args)+len(other.Args))
	args = append(args, c.Args...)
	args = append(args, other.Args...)
	return Condition{SQL: "(" + c.SQL + ") AND (" + other.SQL + ")", Args: args}
}

// clause renders the condition as a trailing AND clause.
func (c Condition) clause() string {
	if c.IsZero() {
		return ""
	}
	return " AND (" + c.SQL + ")"
}
