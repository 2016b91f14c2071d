package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/backends/sqlgen"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

const userSchemas = `schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_toast') AND schema_name NOT LIKE 'pg_temp%'`

type metadata struct {
	conn *conn
}

// query runs a catalog query inside a Query/Idle cycle of the connection
func (m *metadata) query(ctx context.Context, fn func(pg *pgx.Conn) error) error {
	c := m.conn
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, err := c.ready(ctx)
	if err != nil {
		return err
	}
	return fn(pg)
}

func (m *metadata) Databases(ctx context.Context) ([]akeraapi.Database, error) {
	var out []akeraapi.Database
	err := m.query(ctx, func(pg *pgx.Conn) error {
		rows, err := pg.Query(ctx, `SELECT schema_name FROM information_schema.schemata WHERE `+userSchemas+` ORDER BY schema_name`)
		if err != nil {
			return err
		}
		names, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, n := range names {
			out = append(out, akeraapi.Database{LName: n})
		}
		return nil
	})
	return out, err
}

func (m *metadata) Tables(ctx context.Context, database string) ([]akeraapi.Table, error) {
	var out []akeraapi.Table
	err := m.query(ctx, func(pg *pgx.Conn) error {
		rows, err := pg.Query(ctx, `
			SELECT table_schema, table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('information_schema', 'pg_catalog')
			  AND ($1::text = '' OR table_schema::text = $1::text)
			ORDER BY table_schema, table_name`, database)
		if err != nil {
			return err
		}
		var schema, name string
		_, err = pgx.ForEachRow(rows, []any{&schema, &name}, func() error {
			out = append(out, akeraapi.Table{Database: schema, Name: name})
			return nil
		})
		return err
	})
	return out, err
}

func (m *metadata) Fields(ctx context.Context, database, table string) ([]akeraapi.FieldMeta, error) {
	var out []akeraapi.FieldMeta
	err := m.query(ctx, func(pg *pgx.Conn) error {
		rows, err := pg.Query(ctx, `
			SELECT column_name, data_type, udt_name, is_nullable, COALESCE(numeric_scale, 0), ordinal_position
			FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2
			ORDER BY ordinal_position`, database, table)
		if err != nil {
			return err
		}
		var (
			name, dataType, udt, nullable string
			scale, position               int32
		)
		_, err = pgx.ForEachRow(rows, []any{&name, &dataType, &udt, &nullable, &scale, &position}, func() error {
			out = append(out, akeraapi.FieldMeta{
				Name:      name,
				Type:      sqlgen.FieldType(dataType, udt),
				Mandatory: nullable == "NO",
				Decimals:  int(scale),
				Position:  int(position),
			})
			return nil
		})
		return err
	})
	if err == nil && len(out) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "table %s.%s not found", database, table)
	}
	return out, err
}

func (m *metadata) PrimaryKey(ctx context.Context, database, table string) (*akeraapi.PrimaryKey, error) {
	var pk *akeraapi.PrimaryKey
	err := m.query(ctx, func(pg *pgx.Conn) error {
		rows, err := pg.Query(ctx, `
			SELECT tc.constraint_name, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON kcu.constraint_name = tc.constraint_name
			 AND kcu.table_schema = tc.table_schema
			 AND kcu.table_name = tc.table_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1 AND tc.table_name = $2
			ORDER BY kcu.ordinal_position`, database, table)
		if err != nil {
			return err
		}
		var constraint, column string
		_, err = pgx.ForEachRow(rows, []any{&constraint, &column}, func() error {
			if pk == nil {
				pk = &akeraapi.PrimaryKey{Name: constraint}
			}
			pk.Fields = append(pk.Fields, column)
			return nil
		})
		return err
	})
	return pk, err
}
