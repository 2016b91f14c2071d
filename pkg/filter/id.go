package filter

import (
	"strings"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// ByID builds the vendor filter selecting one record by primary key. id is
// a scalar for single-key models, a slice of values in declared key order,
// or a map keyed by key property.
func ByID(m *model.Model, id interface{}) (*akeraapi.Filter, error) {
	values, err := KeyValues(m, id)
	if err != nil {
		return nil, err
	}

	keys := m.Keys()
	nodes := make([]*akeraapi.Filter, len(keys))
	for i, k := range keys {
		nodes[i] = akeraapi.Eq(m.Column(k), values[i])
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return akeraapi.And(nodes...), nil
}

// KeyValues resolves id to one value per primary key property, in key order
func KeyValues(m *model.Model, id interface{}) ([]interface{}, error) {
	keys, err := m.RequireKeys()
	if err != nil {
		return nil, err
	}

	if byName, ok := asCondition(id); ok {
		values := make([]interface{}, len(keys))
		var missing []string
		for i, k := range keys {
			v, ok := byName[k]
			if !ok {
				missing = append(missing, k)
				continue
			}
			values[i] = v
		}
		if len(missing) > 0 {
			return nil, missingKeys(m, missing)
		}
		for k := range byName {
			if !contains(keys, k) {
				return nil, errors.Newf(errors.ErrorTypeValidation,
					"Invalid id, the field %s is not part of the primary key of model %s.", k, m.Name())
			}
		}
		return values, nil
	}

	list, ok := asList(id)
	if !ok {
		list = []interface{}{id}
	}

	switch {
	case len(list) < len(keys):
		return nil, missingKeys(m, keys[len(list):])
	case len(list) > len(keys):
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"Too many values for the primary key of model %s: expected %d, got %d.", m.Name(), len(keys), len(list))
	}
	return list, nil
}

// KeysFromData extracts the primary key values of a record, in key order
func KeysFromData(m *model.Model, data map[string]interface{}) ([]interface{}, error) {
	keys, err := m.RequireKeys()
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(keys))
	var missing []string
	for i, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			missing = append(missing, k)
			continue
		}
		values[i] = v
	}
	if len(missing) > 0 {
		return nil, missingKeys(m, missing)
	}
	return values, nil
}

func missingKeys(m *model.Model, keys []string) error {
	return errors.Newf(errors.ErrorTypeValidation,
		"Not all values for the primary key of model %s provided: %s.", m.Name(), strings.Join(keys, ","))
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
