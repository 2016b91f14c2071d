package mysql

import (
	"context"
	"database/sql"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/backends/sqlgen"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

const systemSchemas = `('information_schema', 'mysql', 'performance_schema', 'sys')`

type metadata struct {
	conn *conn
}

// query runs a catalog query inside a Query/Idle cycle of the connection
func (m *metadata) query(ctx context.Context, fn func(s *sql.Conn) error) error {
	c := m.conn
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(ctx)
	if err != nil {
		return err
	}
	return fn(s)
}

// each scans every row of a catalog query into dest and calls fn
func each(ctx context.Context, s *sql.Conn, dest []interface{}, fn func(), q string, args ...interface{}) error {
	rows, err := s.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		fn()
	}
	return rows.Err()
}

func (m *metadata) Databases(ctx context.Context) ([]akeraapi.Database, error) {
	var out []akeraapi.Database
	err := m.query(ctx, func(s *sql.Conn) error {
		var name string
		return each(ctx, s, []interface{}{&name}, func() {
			out = append(out, akeraapi.Database{LName: name})
		}, `SELECT schema_name FROM information_schema.schemata
			WHERE schema_name NOT IN `+systemSchemas+` ORDER BY schema_name`)
	})
	return out, err
}

func (m *metadata) Tables(ctx context.Context, database string) ([]akeraapi.Table, error) {
	var out []akeraapi.Table
	err := m.query(ctx, func(s *sql.Conn) error {
		var schema, name string
		return each(ctx, s, []interface{}{&schema, &name}, func() {
			out = append(out, akeraapi.Table{Database: schema, Name: name})
		}, `SELECT table_schema, table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN `+systemSchemas+`
			  AND (? = '' OR table_schema = ?)
			ORDER BY table_schema, table_name`, database, database)
	})
	return out, err
}

func (m *metadata) Fields(ctx context.Context, database, table string) ([]akeraapi.FieldMeta, error) {
	var out []akeraapi.FieldMeta
	err := m.query(ctx, func(s *sql.Conn) error {
		var (
			name, dataType, columnType, nullable string
			scale, position                      int
		)
		return each(ctx, s, []interface{}{&name, &dataType, &columnType, &nullable, &scale, &position}, func() {
			out = append(out, akeraapi.FieldMeta{
				Name:      name,
				Type:      sqlgen.FieldType(dataType, columnType),
				Mandatory: nullable == "NO",
				Decimals:  scale,
				Position:  position,
			})
		}, `SELECT column_name, data_type, column_type, is_nullable, COALESCE(numeric_scale, 0), ordinal_position
			FROM information_schema.columns
			WHERE table_schema = ? AND table_name = ?
			ORDER BY ordinal_position`, database, table)
	})
	if err == nil && len(out) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "table %s.%s not found", database, table)
	}
	return out, err
}

func (m *metadata) PrimaryKey(ctx context.Context, database, table string) (*akeraapi.PrimaryKey, error) {
	var pk *akeraapi.PrimaryKey
	err := m.query(ctx, func(s *sql.Conn) error {
		var column string
		return each(ctx, s, []interface{}{&column}, func() {
			if pk == nil {
				// every MySQL primary key is named PRIMARY
				pk = &akeraapi.PrimaryKey{Name: "PRIMARY"}
			}
			pk.Fields = append(pk.Fields, column)
		}, `SELECT column_name
			FROM information_schema.key_column_usage
			WHERE constraint_name = 'PRIMARY' AND table_schema = ? AND table_name = ?
			ORDER BY ordinal_position`, database, table)
	})
	return pk, err
}
