// Package akeraapi models the akera.io application-server query API that the
// connector targets: filter trees, select/insert/update/delete directives,
// connections, metadata and the connection state machine.
//
// The package holds no protocol code. Concrete servers are reached through
// the backends under pkg/backends, each of which implements Dialer, Conn and
// Metadata on top of a real client library.
package akeraapi

import (
	"fmt"
	"strings"
)

// Op is a vendor filter operator. The set is closed: every consumer of a
// Filter switches over exactly these values.
type Op int

const (
	OpEq Op = iota + 1
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpMatches
	OpNot
	OpAnd
	OpOr
)

var opNames = map[Op]string{
	OpEq:      "eq",
	OpNe:      "ne",
	OpGt:      "gt",
	OpGe:      "ge",
	OpLt:      "lt",
	OpLe:      "le",
	OpMatches: "matches",
	OpNot:     "not",
	OpAnd:     "and",
	OpOr:      "or",
}

// String returns the vendor operator name
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// IsGroup reports whether the operator combines child filters
func (o Op) IsGroup() bool {
	return o == OpAnd || o == OpOr || o == OpNot
}

// Filter is a node of the vendor boolean expression tree. Comparison nodes
// set Field and Value; group nodes (and, or, not) set Children.
type Filter struct {
	Op       Op          `json:"op"`
	Field    string      `json:"field,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	Children []*Filter   `json:"children,omitempty"`
}

func leaf(op Op, field string, value interface{}) *Filter {
	return &Filter{Op: op, Field: field, Value: value}
}

// Eq builds field = value
func Eq(field string, value interface{}) *Filter { return leaf(OpEq, field, value) }

// Ne builds field <> value
func Ne(field string, value interface{}) *Filter { return leaf(OpNe, field, value) }

// Gt builds field > value
func Gt(field string, value interface{}) *Filter { return leaf(OpGt, field, value) }

// Ge builds field >= value
func Ge(field string, value interface{}) *Filter { return leaf(OpGe, field, value) }

// Lt builds field < value
func Lt(field string, value interface{}) *Filter { return leaf(OpLt, field, value) }

// Le builds field <= value
func Le(field string, value interface{}) *Filter { return leaf(OpLe, field, value) }

// Matches builds a MATCHES pattern comparison. See MatchPattern.
func Matches(field string, pattern string) *Filter { return leaf(OpMatches, field, pattern) }

// Not negates a filter
func Not(f *Filter) *Filter {
	return &Filter{Op: OpNot, Children: []*Filter{f}}
}

// And combines filters; an empty And matches every row
func And(children ...*Filter) *Filter {
	return &Filter{Op: OpAnd, Children: children}
}

// Or combines filters; an empty Or matches no row
func Or(children ...*Filter) *Filter {
	return &Filter{Op: OpOr, Children: children}
}

// Fields returns every field referenced by the filter, in visit order and
// without duplicates.
func (f *Filter) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	f.Walk(func(n *Filter) {
		if n.Op.IsGroup() {
			return
		}
		if _, ok := seen[n.Field]; ok {
			return
		}
		seen[n.Field] = struct{}{}
		out = append(out, n.Field)
	})
	return out
}

// Walk visits the filter depth-first, parents before children
func (f *Filter) Walk(fn func(*Filter)) {
	if f == nil {
		return
	}
	fn(f)
	for _, c := range f.Children {
		c.Walk(fn)
	}
}

// String renders the filter in a compact prefix notation,
// e.g. and(ge(qty,1),le(qty,5)).
func (f *Filter) String() string {
	if f == nil {
		return "<nil>"
	}
	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f *Filter) write(b *strings.Builder) {
	b.WriteString(f.Op.String())
	b.WriteByte('(')
	if f.Op.IsGroup() {
		for i, c := range f.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.write(b)
		}
	} else {
		b.WriteString(f.Field)
		b.WriteByte(',')
		fmt.Fprintf(b, "%v", f.Value)
	}
	b.WriteByte(')')
}
