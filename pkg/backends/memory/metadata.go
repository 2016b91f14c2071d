package memory

import (
	"context"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

type metadata struct {
	conn *conn
}

func (m *metadata) Databases(ctx context.Context) ([]akeraapi.Database, error) {
	defer m.conn.Begin()()
	if err := m.conn.usable(ctx); err != nil {
		return nil, err
	}

	s := m.conn.server
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]akeraapi.Database, len(s.databases))
	for i, d := range s.databases {
		out[i] = akeraapi.Database{LName: d.name}
	}
	return out, nil
}

// Tables lists the tables of dbName, or of every database when it is empty
func (m *metadata) Tables(ctx context.Context, dbName string) ([]akeraapi.Table, error) {
	defer m.conn.Begin()()
	if err := m.conn.usable(ctx); err != nil {
		return nil, err
	}

	s := m.conn.server
	s.mu.RLock()
	defer s.mu.RUnlock()

	dbs := s.databases
	if dbName != "" {
		d := s.database(dbName)
		if d == nil {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "database %s not found", dbName)
		}
		dbs = []*database{d}
	}

	var out []akeraapi.Table
	for _, d := range dbs {
		for _, t := range d.tables {
			out = append(out, akeraapi.Table{Database: d.name, Name: t.def.Name})
		}
	}
	return out, nil
}

func (m *metadata) Fields(ctx context.Context, database, tableName string) ([]akeraapi.FieldMeta, error) {
	defer m.conn.Begin()()
	if err := m.conn.usable(ctx); err != nil {
		return nil, err
	}

	s := m.conn.server
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(database, tableName)
	if err != nil {
		return nil, err
	}
	out := make([]akeraapi.FieldMeta, len(t.def.Columns))
	for i, c := range t.def.Columns {
		out[i] = akeraapi.FieldMeta{
			Name:      c.Name,
			Type:      c.Type,
			Mandatory: c.Mandatory,
			Decimals:  c.Decimals,
			Position:  i + 1,
		}
	}
	return out, nil
}

// PrimaryKey returns nil when the table has no primary key
func (m *metadata) PrimaryKey(ctx context.Context, database, tableName string) (*akeraapi.PrimaryKey, error) {
	defer m.conn.Begin()()
	if err := m.conn.usable(ctx); err != nil {
		return nil, err
	}

	s := m.conn.server
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(database, tableName)
	if err != nil {
		return nil, err
	}
	if len(t.def.PrimaryKey) == 0 {
		return nil, nil
	}
	name := t.def.PkName
	if name == "" {
		name = "pk_" + t.def.Name
	}
	return &akeraapi.PrimaryKey{
		Name:   name,
		Fields: append([]string(nil), t.def.PrimaryKey...),
	}, nil
}
