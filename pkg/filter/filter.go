// Package filter translates ORM query filters into vendor query directives.
//
// An ORM filter carries a where condition tree, sort order, paging and a
// field selection. Apply writes all of them onto an akeraapi.Select; Where
// translates a condition tree on its own, for updates, deletes and counts.
// Translation is pure: it performs no I/O and fails fast with a validation
// error, so a bad filter never reaches a connection.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/json"
)

// Condition is a where clause: property → value, property → predicate map,
// or a single "and"/"or" key holding a list of conditions
type Condition map[string]interface{}

// Order is a list of "property DIR" sort entries
type Order []string

// Fields is a field selection, given either as a list of property names or
// as an inclusion map. Map values are kept as given; only properties mapped
// to exactly true are selected.
type Fields struct {
	list    []string
	include map[string]interface{}
}

// FieldList selects the named properties
func FieldList(names ...string) Fields {
	return Fields{list: names}
}

// FieldMap selects the properties mapped to true
func FieldMap(include map[string]interface{}) Fields {
	return Fields{include: include}
}

// IsZero reports whether no selection was given
func (f Fields) IsZero() bool {
	return len(f.list) == 0 && len(f.include) == 0
}

// Names returns the selected property names. Inclusion map keys come back
// sorted.
func (f Fields) Names() []string {
	if len(f.list) > 0 {
		return append([]string(nil), f.list...)
	}
	names := make([]string, 0, len(f.include))
	for k, v := range f.include {
		if b, ok := v.(bool); ok && b {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// MarshalJSON renders the selection in the form it was given
func (f Fields) MarshalJSON() ([]byte, error) {
	if f.include != nil {
		return json.Marshal(f.include)
	}
	if f.list == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f.list)
}

// Filter is an ORM query filter. Offset and Skip are aliases; Offset wins
// when both are set.
type Filter struct {
	Where  Condition `json:"where,omitempty"`
	Order  Order     `json:"order,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset *int      `json:"offset,omitempty"`
	Skip   *int      `json:"skip,omitempty"`
	Fields Fields    `json:"fields"`
}

// Int returns a pointer to v, for Offset and Skip literals
func Int(v int) *int { return &v }

// Parse decodes a JSON filter such as
//
//	{"where":{"qty":{"gt":1}},"order":"name DESC","limit":5,"skip":10}
func Parse(data []byte) (*Filter, error) {
	v, err := json.DecodeNormalized(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid filter json")
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		if v == nil {
			return &Filter{}, nil
		}
		return nil, errors.New(errors.ErrorTypeValidation, "invalid filter, expected an object")
	}
	return FromMap(m)
}

// ParseWhere decodes a JSON where condition
func ParseWhere(data []byte) (Condition, error) {
	v, err := json.DecodeNormalized(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid where json")
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrorTypeValidation, "invalid where filter, expected an object")
	}
	return Condition(m), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// FromMap builds a filter from a decoded options object. Keys the connector
// does not handle (include, scope) are ignored.
func FromMap(m map[string]interface{}) (*Filter, error) {
	f := &Filter{}

	if w, ok := m["where"]; ok && w != nil {
		c, ok := asCondition(w)
		if !ok {
			return nil, errors.New(errors.ErrorTypeValidation, "invalid where filter, expected an object")
		}
		f.Where = c
	}

	if o, ok := m["order"]; ok && o != nil {
		switch t := o.(type) {
		case string:
			f.Order = Order{t}
		default:
			list, ok := asList(o)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeValidation, "invalid order option: %v", o)
			}
			for _, e := range list {
				s, ok := e.(string)
				if !ok {
					return nil, errors.Newf(errors.ErrorTypeValidation, "invalid order option: %v", e)
				}
				f.Order = append(f.Order, s)
			}
		}
	}

	var err error
	if v, ok := m["limit"]; ok && v != nil {
		if f.Limit, err = toInt("limit", v); err != nil {
			return nil, err
		}
	}
	for _, key := range []string{"offset", "skip"} {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		n, err := toInt(key, v)
		if err != nil {
			return nil, err
		}
		if key == "offset" {
			f.Offset = &n
		} else {
			f.Skip = &n
		}
	}

	if v, ok := m["fields"]; ok && v != nil {
		if inc, ok := v.(map[string]interface{}); ok {
			f.Fields = FieldMap(inc)
		} else if list, ok := asList(v); ok {
			names := make([]string, 0, len(list))
			for _, e := range list {
				s, ok := e.(string)
				if !ok {
					return nil, errors.Newf(errors.ErrorTypeValidation, "invalid field selection: %v", e)
				}
				names = append(names, s)
			}
			f.Fields = FieldList(names...)
		} else {
			return nil, errors.Newf(errors.ErrorTypeValidation, "invalid field selection: %v", v)
		}
	}

	return f, nil
}

func toInt(name string, v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case int32:
		return int(t), nil
	case float64:
		if t == float64(int(t)) {
			return int(t), nil
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeValidation, "invalid %s option: %s", name, fmt.Sprint(v))
}
