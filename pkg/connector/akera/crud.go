package akera

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/connector/core"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/filter"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// Find returns the instances of a model matching f
func (c *Connector) Find(ctx context.Context, modelName string, f *filter.Filter) ([]core.DataObject, error) {
	var out []core.DataObject
	err := c.run(ctx, "find", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		sel := akeraapi.NewSelect(m.Table())
		if err := filter.Apply(sel, m, f); err != nil {
			return err
		}
		c.debugQuery(ctx, sel)

		conn, err := c.acquire(ctx)
		if err != nil {
			return err
		}
		rows, err := conn.Select(ctx, sel)
		if err != nil {
			return err
		}
		out = objects(m, rows)
		return nil
	})
	return out, err
}

// FindByID returns the instance with the given id
func (c *Connector) FindByID(ctx context.Context, modelName string, id interface{}) (core.DataObject, error) {
	var out core.DataObject
	err := c.run(ctx, "findById", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		out, err = c.findByID(ctx, m, id)
		return err
	})
	return out, err
}

func (c *Connector) findByID(ctx context.Context, m *model.Model, id interface{}) (core.DataObject, error) {
	where, err := filter.ByID(m, id)
	if err != nil {
		return nil, err
	}
	sel := akeraapi.NewSelect(m.Table()).Where(where)
	sel.Fields = filter.Columns(m)
	sel.Limit = 1
	c.debugQuery(ctx, sel)

	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Select(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(m, id)
	}
	return object(m, rows[0]), nil
}

// Create inserts an instance and returns it as stored, with generated keys
func (c *Connector) Create(ctx context.Context, modelName string, data core.DataObject) (core.DataObject, error) {
	var out core.DataObject
	err := c.run(ctx, "create", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		out, err = c.create(ctx, m, data)
		return err
	})
	return out, err
}

func (c *Connector) create(ctx context.Context, m *model.Model, data core.DataObject) (core.DataObject, error) {
	ins := &akeraapi.Insert{
		Table:  m.Table(),
		Values: values(m, data, false),
		Keys:   keyColumns(m),
	}
	c.debugQuery(ctx, ins)

	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	row, err := conn.Insert(ctx, ins)
	if err != nil {
		return nil, err
	}
	return object(m, row), nil
}

// CreateAll inserts the instances concurrently. Instances created before a
// failure stay created; the returned slice holds nil for the ones that
// failed.
func (c *Connector) CreateAll(ctx context.Context, modelName string, data []core.DataObject) ([]core.DataObject, error) {
	out := make([]core.DataObject, len(data))
	err := c.run(ctx, "createAll", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}

		var g errgroup.Group
		if size := c.config.Pool.ConnectPoolSize; size > 0 {
			g.SetLimit(size)
		}
		for i, d := range data {
			g.Go(func() error {
				row, err := c.create(ctx, m, d)
				if err != nil {
					return err
				}
				out[i] = row
				return nil
			})
		}
		return g.Wait()
	})
	return out, err
}

// UpdateAll sets data on every instance matching where
func (c *Connector) UpdateAll(ctx context.Context, modelName string, data core.DataObject, where filter.Condition) (core.Count, error) {
	var n int64
	err := c.run(ctx, "updateAll", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		f, err := filter.Where(m, where)
		if err != nil {
			return err
		}
		set, err := updateValues(m, data, false)
		if err != nil {
			return err
		}
		n, err = c.update(ctx, m, set, f)
		return err
	})
	return core.Count{Count: n}, err
}

// UpdateByID sets data on one instance. Key properties in data are ignored.
func (c *Connector) UpdateByID(ctx context.Context, modelName string, id interface{}, data core.DataObject) (bool, error) {
	var n int64
	err := c.run(ctx, "updateById", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		set, err := updateValues(m, data, true)
		if err != nil {
			return err
		}
		n, err = c.updateByID(ctx, m, id, set)
		return err
	})
	return n > 0, err
}

// ReplaceByID replaces every non-key property of one instance: properties
// missing from data become null. It returns the replaced instance.
func (c *Connector) ReplaceByID(ctx context.Context, modelName string, id interface{}, data core.DataObject) (core.DataObject, error) {
	var out core.DataObject
	err := c.run(ctx, "replaceById", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}

		keys := m.Keys()
		var set []akeraapi.SetField
		for _, p := range m.Properties() {
			if isKey(keys, p.Name) {
				continue
			}
			set = append(set, akeraapi.SetField{Name: m.Column(p.Name), Value: data[p.Name]})
		}

		where, err := filter.ByID(m, id)
		if err != nil {
			return err
		}
		var n int64
		if len(set) == 0 {
			n, err = c.count(ctx, m, where)
		} else {
			n, err = c.update(ctx, m, set, where)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound(m, id)
		}
		out, err = c.findByID(ctx, m, id)
		return err
	})
	return out, err
}

// UpdateOrCreate upserts an instance keyed on the model's primary key. An
// instance without a complete key is created.
func (c *Connector) UpdateOrCreate(ctx context.Context, modelName string, data core.DataObject) (core.DataObject, error) {
	var out core.DataObject
	err := c.run(ctx, "updateOrCreate", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		if _, err := m.RequireKeys(); err != nil {
			return err
		}
		if _, err := filter.KeysFromData(m, data); err != nil {
			out, err = c.create(ctx, m, data)
			return err
		}

		up := &akeraapi.Upsert{
			Table:  m.Table(),
			Values: values(m, data, false),
			Keys:   keyColumns(m),
		}
		c.debugQuery(ctx, up)

		conn, err := c.acquire(ctx)
		if err != nil {
			return err
		}
		row, err := conn.Upsert(ctx, up)
		if err != nil {
			return err
		}
		out = object(m, row)
		return nil
	})
	return out, err
}

// Save updates the instance identified by the key properties of data
func (c *Connector) Save(ctx context.Context, modelName string, data core.DataObject) (bool, error) {
	var n int64
	err := c.run(ctx, "save", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		ids, err := filter.KeysFromData(m, data)
		if err != nil {
			return err
		}
		n, err = c.updateByID(ctx, m, ids, values(m, data, true))
		return err
	})
	return n > 0, err
}

func (c *Connector) updateByID(ctx context.Context, m *model.Model, id interface{}, set []akeraapi.SetField) (int64, error) {
	where, err := filter.ByID(m, id)
	if err != nil {
		return 0, err
	}
	return c.update(ctx, m, set, where)
}

func (c *Connector) update(ctx context.Context, m *model.Model, set []akeraapi.SetField, where *akeraapi.Filter) (int64, error) {
	upd := &akeraapi.Update{Table: m.Table(), Values: set, Filter: where}
	c.debugQuery(ctx, upd)
	if len(set) == 0 {
		return 0, nil
	}

	conn, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	return conn.Update(ctx, upd)
}

// DeleteAll deletes every instance matching where
func (c *Connector) DeleteAll(ctx context.Context, modelName string, where filter.Condition) (core.Count, error) {
	var n int64
	err := c.run(ctx, "deleteAll", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		f, err := filter.Where(m, where)
		if err != nil {
			return err
		}
		n, err = c.delete(ctx, m, f)
		return err
	})
	return core.Count{Count: n}, err
}

// DeleteByID deletes one instance and reports whether it existed
func (c *Connector) DeleteByID(ctx context.Context, modelName string, id interface{}) (bool, error) {
	var n int64
	err := c.run(ctx, "deleteById", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		f, err := filter.ByID(m, id)
		if err != nil {
			return err
		}
		n, err = c.delete(ctx, m, f)
		return err
	})
	return n > 0, err
}

func (c *Connector) delete(ctx context.Context, m *model.Model, where *akeraapi.Filter) (int64, error) {
	del := &akeraapi.Delete{Table: m.Table(), Filter: where}
	c.debugQuery(ctx, del)

	conn, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	return conn.Delete(ctx, del)
}

// Count counts the instances matching where
func (c *Connector) Count(ctx context.Context, modelName string, where filter.Condition) (int64, error) {
	var n int64
	err := c.run(ctx, "count", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		f, err := filter.Where(m, where)
		if err != nil {
			return err
		}
		n, err = c.count(ctx, m, f)
		return err
	})
	return n, err
}

// Exists reports whether an instance with the given id exists
func (c *Connector) Exists(ctx context.Context, modelName string, id interface{}) (bool, error) {
	var n int64
	err := c.run(ctx, "exists", modelName, func(ctx context.Context) error {
		m, err := c.models.Get(modelName)
		if err != nil {
			return err
		}
		f, err := filter.ByID(m, id)
		if err != nil {
			return err
		}
		n, err = c.count(ctx, m, f)
		return err
	})
	return n > 0, err
}

func (c *Connector) count(ctx context.Context, m *model.Model, where *akeraapi.Filter) (int64, error) {
	sel := akeraapi.NewSelect(m.Table()).Where(where)
	c.debugQuery(ctx, sel)

	conn, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	return conn.Count(ctx, sel)
}

// values builds the set-fields of data from the model's own properties, in
// declaration order
func values(m *model.Model, data core.DataObject, skipKeys bool) []akeraapi.SetField {
	keys := m.Keys()
	out := make([]akeraapi.SetField, 0, len(data))
	for _, p := range m.Properties() {
		v, ok := data[p.Name]
		if !ok || (skipKeys && isKey(keys, p.Name)) {
			continue
		}
		out = append(out, akeraapi.SetField{Name: m.Column(p.Name), Value: v})
	}
	return out
}

// updateValues is values for an update. Data that names no model property
// at all is rejected rather than turned into an empty update.
func updateValues(m *model.Model, data core.DataObject, skipKeys bool) ([]akeraapi.SetField, error) {
	set := values(m, data, skipKeys)
	if len(set) > 0 {
		return set, nil
	}
	var unknown []string
	for name := range data {
		if !m.HasProperty(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return set, nil
	}
	sort.Strings(unknown)
	return nil, errors.Newf(errors.ErrorTypeValidation,
		"Invalid update data, the fields %s are not part of the model.", strings.Join(unknown, ","))
}

func keyColumns(m *model.Model) []string {
	keys := m.Keys()
	for i, k := range keys {
		keys[i] = m.Column(k)
	}
	return keys
}

func isKey(keys []string, name string) bool {
	for _, k := range keys {
		if k == name {
			return true
		}
	}
	return false
}

func notFound(m *model.Model, id interface{}) error {
	return errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("No %s found for id %v.", m.Name(), id)).
		WithDetail("model", m.Name())
}
