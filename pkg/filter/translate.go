package filter

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/json"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// Apply writes the projection, paging, sort and predicate of f onto sel. A
// nil filter selects every property.
func Apply(sel *akeraapi.Select, m *model.Model, f *Filter) error {
	if f == nil {
		f = &Filter{}
	}

	fields, err := selection(m, f.Fields)
	if err != nil {
		return err
	}
	sel.Fields = fields

	if f.Limit > 0 {
		sel.Limit = f.Limit
	}
	switch {
	case f.Offset != nil:
		sel.Offset = *f.Offset
	case f.Skip != nil:
		sel.Offset = *f.Skip
	}
	if sel.Offset < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "invalid offset %d", sel.Offset)
	}

	order, err := sortFields(m, f.Order)
	if err != nil {
		return err
	}
	sel.Sort = order

	where, err := Where(m, f.Where)
	if err != nil {
		return err
	}
	sel.Filter = where

	return nil
}

// Where translates a condition into a vendor filter. An empty condition
// yields nil, meaning no restriction.
func Where(m *model.Model, c Condition) (*akeraapi.Filter, error) {
	if len(c) == 0 {
		return nil, nil
	}
	return condition(m, c)
}

// Columns returns the vendor select list for every property of m
func Columns(m *model.Model) []akeraapi.Field {
	names := m.PropertyNames()
	fields := make([]akeraapi.Field, len(names))
	for i, name := range names {
		fields[i] = field(m, name)
	}
	return fields
}

func field(m *model.Model, property string) akeraapi.Field {
	col := m.Column(property)
	if col == property {
		return akeraapi.Field{Name: col}
	}
	return akeraapi.Field{Name: col, Alias: property}
}

func selection(m *model.Model, f Fields) ([]akeraapi.Field, error) {
	names := f.Names()
	if len(names) == 0 {
		return Columns(m), nil
	}

	fields := make([]akeraapi.Field, 0, len(names))
	for _, name := range names {
		if !m.HasProperty(name) {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"Invalid field selection, the field %s is not part of the model.", name)
		}
		fields = append(fields, field(m, name))
	}
	return fields, nil
}

// sortFields parses "property [DIR]" entries. Only DESC sorts descending; a
// missing or unrecognised direction token sorts ascending.
func sortFields(m *model.Model, order Order) ([]akeraapi.SortField, error) {
	var out []akeraapi.SortField
	for _, entry := range order {
		parts := strings.Fields(entry)
		if len(parts) == 0 {
			continue
		}

		desc := len(parts) > 1 && strings.EqualFold(parts[len(parts)-1], "DESC")

		if !m.HasProperty(parts[0]) {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"Invalid sort option, the field %s is not part of the model.", parts[0])
		}
		out = append(out, akeraapi.SortField{Field: m.Column(parts[0]), Descending: desc})
	}
	return out, nil
}

func condition(m *model.Model, c map[string]interface{}) (*akeraapi.Filter, error) {
	keys := sortedKeys(c)
	nodes := make([]*akeraapi.Filter, 0, len(keys))

	for _, key := range keys {
		value := c[key]

		var (
			node *akeraapi.Filter
			err  error
		)
		switch key {
		case keyAnd, keyOr:
			node, err = group(m, key, value)
		default:
			node, err = property(m, key, value)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return akeraapi.And(nodes...), nil
}

func group(m *model.Model, key string, value interface{}) (*akeraapi.Filter, error) {
	list, ok := asList(value)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"Invalid where filter, %s expects a list of conditions.", key)
	}

	children := make([]*akeraapi.Filter, 0, len(list))
	for _, item := range list {
		sub, ok := asCondition(item)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"Invalid where filter, %s expects a list of conditions.", key)
		}
		if len(sub) == 0 {
			children = append(children, akeraapi.And())
			continue
		}
		child, err := condition(m, sub)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if key == keyAnd {
		return akeraapi.And(children...), nil
	}
	return akeraapi.Or(children...), nil
}

func property(m *model.Model, name string, value interface{}) (*akeraapi.Filter, error) {
	if !m.HasProperty(name) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"Invalid where filter, the field %s is not part of the model.", name)
	}
	col := m.Column(name)

	pred, ok := asCondition(value)
	if !ok {
		return akeraapi.Eq(col, value), nil
	}
	if len(pred) == 0 {
		return nil, unsupported(pred)
	}

	keys := sortedKeys(pred)
	nodes := make([]*akeraapi.Filter, 0, len(keys))
	for _, key := range keys {
		op, ok := ParseOperator(key)
		if !ok {
			return nil, unsupported(pred)
		}
		node, err := predicate(name, col, op, pred[key])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return akeraapi.And(nodes...), nil
}

func predicate(name, col string, op Operator, v interface{}) (*akeraapi.Filter, error) {
	switch op {
	case OpEq:
		return akeraapi.Eq(col, v), nil
	case OpNeq:
		return akeraapi.Ne(col, v), nil
	case OpGt:
		return akeraapi.Gt(col, v), nil
	case OpGte:
		return akeraapi.Ge(col, v), nil
	case OpLt:
		return akeraapi.Lt(col, v), nil
	case OpLte:
		return akeraapi.Le(col, v), nil
	case OpLike:
		return akeraapi.Matches(col, pattern(v)), nil
	case OpNlike:
		return akeraapi.Not(akeraapi.Matches(col, pattern(v))), nil
	case OpBetween:
		list, ok := asList(v)
		if !ok || len(list) != 2 {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"Invalid between filter for field %s, exactly two values are required.", name)
		}
		return akeraapi.And(akeraapi.Ge(col, list[0]), akeraapi.Le(col, list[1])), nil
	case OpInq, OpNin:
		list, ok := asList(v)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"Invalid %s filter for field %s, a list of values is required.", op, name)
		}
		nodes := make([]*akeraapi.Filter, len(list))
		for i, item := range list {
			if op == OpInq {
				nodes[i] = akeraapi.Eq(col, item)
			} else {
				nodes[i] = akeraapi.Ne(col, item)
			}
		}
		if op == OpInq {
			return akeraapi.Or(nodes...), nil
		}
		return akeraapi.And(nodes...), nil
	}
	return nil, errors.Newf(errors.ErrorTypeInternal, "unhandled operator %d", int(op))
}

func pattern(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func unsupported(pred map[string]interface{}) error {
	return errors.Newf(errors.ErrorTypeValidation,
		"Filter condition not supported: %s.", json.MarshalString(pred))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asCondition(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case Condition:
		return t, true
	case map[string]interface{}:
		return t, true
	}
	return nil, false
}

// asList accepts any slice or array except []byte, which is a scalar value
func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []byte:
		return nil, false
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
