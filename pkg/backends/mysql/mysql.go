// Package mysql serves the akera API from MySQL. Akera databases map to
// MySQL databases on one server.
package mysql

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/backends/sqlgen"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// BackendName is the registry name of the mysql backend
const BackendName = "mysql"

// errUnknownDatabase is ER_BAD_DB_ERROR
const errUnknownDatabase = 1049

func init() {
	registry.MustRegisterBackend(registry.BackendInfo{
		Name:        BackendName,
		Description: "MySQL, one database per akera database",
		Library:     "github.com/go-sql-driver/mysql",
	}, func(_ *config.ConnectorConfig) (akeraapi.Dialer, error) {
		return &Dialer{Timeout: 10 * time.Second}, nil
	})
}

var dialect = sqlgen.MySQL

// Dialer opens one pinned MySQL session per akera connection
type Dialer struct {
	Timeout time.Duration
}

// DriverConfig builds the driver configuration for info
func (d *Dialer) DriverConfig(info akeraapi.ConnectInfo) *driver.Config {
	cfg := driver.NewConfig()
	cfg.User = info.User
	cfg.Passwd = info.Password
	cfg.Net = "tcp"
	cfg.Addr = info.Address()
	cfg.ParseTime = true
	cfg.Timeout = d.Timeout
	if info.UseSSL {
		cfg.TLSConfig = "true"
	}
	return cfg
}

// Dial opens a session with MySQL
func (d *Dialer) Dial(ctx context.Context, info akeraapi.ConnectInfo) (akeraapi.Conn, error) {
	connector, err := driver.NewConnector(d.DriverConfig(info))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid connection settings")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	session, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mysql")
	}

	c := &conn{id: uuid.NewString(), db: db, session: session}
	c.Transition(akeraapi.StateIdle)
	return c, nil
}

type conn struct {
	akeraapi.StateMachine

	id string
	db *sql.DB

	// mu serializes use of the pinned session
	mu            sync.Mutex
	session       *sql.Conn
	database      string
	autoReconnect atomic.Bool
}

var _ akeraapi.Conn = (*conn)(nil)

func (c *conn) ID() string { return c.id }

// ready returns the pinned session, replacing a broken one when
// auto-reconnect is on. Callers hold c.mu.
func (c *conn) ready(ctx context.Context) (*sql.Conn, error) {
	if c.Closed() {
		return nil, errors.Newf(errors.ErrorTypeConnection, "connection %s is closed", c.id)
	}
	if err := c.session.PingContext(ctx); err == nil {
		return c.session, nil
	} else if !c.autoReconnect.Load() {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "connection was lost")
	}

	_ = c.session.Close()
	session, err := c.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to reconnect to mysql")
	}
	if c.database != "" {
		if _, err := session.ExecContext(ctx, "USE "+dialect.QuoteIdent(c.database)); err != nil {
			_ = session.Close()
			return nil, err
		}
	}
	c.session = session
	return session, nil
}

func (c *conn) Select(ctx context.Context, q *akeraapi.Select) ([]akeraapi.Record, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	st := dialect.Select(q)
	return query(ctx, s, st)
}

func (c *conn) Count(ctx context.Context, q *akeraapi.Select) (int64, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(ctx)
	if err != nil {
		return 0, err
	}
	st := dialect.Count(q)
	var n int64
	if err := s.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *conn) Insert(ctx context.Context, q *akeraapi.Insert) (akeraapi.Record, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	st := dialect.Insert(q)
	res, err := s.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, s, q.Table, q.Values, q.Keys, res)
}

func (c *conn) Upsert(ctx context.Context, q *akeraapi.Upsert) (akeraapi.Record, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(q.Keys) == 0 || len(q.Values) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "upsert requires key columns and values")
	}
	s, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	st := dialect.Upsert(q)
	res, err := s.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, s, q.Table, q.Values, q.Keys, res)
}

func (c *conn) exec(ctx context.Context, st sqlgen.Statement) (int64, error) {
	s, err := c.ready(ctx)
	if err != nil {
		return 0, err
	}
	res, err := s.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *conn) Update(ctx context.Context, q *akeraapi.Update) (int64, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(q.Values) == 0 {
		return 0, nil
	}
	return c.exec(ctx, dialect.Update(q))
}

func (c *conn) Delete(ctx context.Context, q *akeraapi.Delete) (int64, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exec(ctx, dialect.Delete(q))
}

func (c *conn) Ping(ctx context.Context) error {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.ready(ctx)
	return err
}

func (c *conn) SelectDatabase(ctx context.Context, name string) error {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := s.ExecContext(ctx, "USE "+dialect.QuoteIdent(name)); err != nil {
		var me *driver.MySQLError
		if stderrors.As(err, &me) && me.Number == errUnknownDatabase {
			return errors.Newf(errors.ErrorTypeNotFound, "database %s not found", name)
		}
		return err
	}
	c.database = name
	return nil
}

func (c *conn) Meta() akeraapi.Metadata {
	return &metadata{conn: c}
}

func (c *conn) SetAutoReconnect(enabled bool) {
	c.autoReconnect.Store(enabled)
}

func (c *conn) Disconnect(_ context.Context) error {
	if c.Closed() {
		return nil
	}
	c.mu.Lock()
	err := stderrors.Join(c.session.Close(), c.db.Close())
	c.mu.Unlock()

	c.Transition(akeraapi.StateClosed)
	return err
}

// fetch reads back the row an insert or upsert wrote. A single key column
// missing from values takes the generated id.
func fetch(ctx context.Context, s *sql.Conn, table string, values []akeraapi.SetField, keys []string, res sql.Result) (akeraapi.Record, error) {
	if len(keys) == 0 {
		out := make(akeraapi.Record, len(values))
		for _, v := range values {
			out[v.Name] = v.Value
		}
		return out, nil
	}

	where := make([]*akeraapi.Filter, 0, len(keys))
	for _, k := range keys {
		v, ok := akeraapi.Value(values, k)
		if !ok || v == nil {
			if len(keys) != 1 {
				return nil, errors.Newf(errors.ErrorTypeQuery, "cannot read back row of %s without key %s", table, k)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			v = id
		}
		where = append(where, akeraapi.Eq(k, v))
	}

	rows, err := query(ctx, s, dialect.Select(akeraapi.NewSelect(table).Where(akeraapi.And(where...))))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "written row of %s not found", table)
	}
	return rows[0], nil
}

// query runs a select and converts the driver's raw column bytes by column
// type
func query(ctx context.Context, s *sql.Conn, st sqlgen.Statement) ([]akeraapi.Record, error) {
	rows, err := s.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []akeraapi.Record
	for rows.Next() {
		values := make([]interface{}, len(types))
		ptrs := make([]interface{}, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		r := make(akeraapi.Record, len(types))
		for i, ct := range types {
			r[ct.Name()] = convert(ct.DatabaseTypeName(), values[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func convert(dbType string, v interface{}) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY"):
		return append([]byte(nil), b...)
	case strings.Contains(t, "INT"):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
	case t == "DECIMAL" || t == "FLOAT" || t == "DOUBLE":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}
