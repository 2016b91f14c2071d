// Package postgres serves the akera API from PostgreSQL. Akera databases map
// to PostgreSQL schemas of the database the connection string selects.
package postgres

import (
	"context"
	stderrors "errors"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/backends/sqlgen"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// BackendName is the registry name of the postgres backend
const BackendName = "postgres"

func init() {
	registry.MustRegisterBackend(registry.BackendInfo{
		Name:        BackendName,
		Description: "PostgreSQL, one schema per akera database",
		Library:     "github.com/jackc/pgx/v5",
	}, func(_ *config.ConnectorConfig) (akeraapi.Dialer, error) {
		return &Dialer{}, nil
	})
}

// Dialer opens one pgx connection per akera connection
type Dialer struct {
	// Database is the PostgreSQL database to connect to; empty leaves it to
	// the PG* environment defaults
	Database string
}

// ConnString builds the pgx connection string for info
func (d *Dialer) ConnString(info akeraapi.ConnectInfo) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   info.Host + ":" + strconv.Itoa(info.Port),
	}
	if info.User != "" {
		u.User = url.UserPassword(info.User, info.Password)
	}
	if d.Database != "" {
		u.Path = "/" + d.Database
	}

	q := url.Values{}
	if info.UseSSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	q.Set("application_name", "akera-connector")
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial connects to PostgreSQL
func (d *Dialer) Dial(ctx context.Context, info akeraapi.ConnectInfo) (akeraapi.Conn, error) {
	cfg, err := pgx.ParseConfig(d.ConnString(info))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid connection settings")
	}

	pg, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}

	c := &conn{id: uuid.NewString(), cfg: cfg, pg: pg}
	c.Transition(akeraapi.StateIdle)
	return c, nil
}

type conn struct {
	akeraapi.StateMachine

	id  string
	cfg *pgx.ConnConfig

	// mu serializes use of pg, which is not safe for concurrent use
	mu            sync.Mutex
	pg            *pgx.Conn
	schema        string
	autoReconnect atomic.Bool
}

var _ akeraapi.Conn = (*conn)(nil)

var dialect = sqlgen.Postgres

func (c *conn) ID() string { return c.id }

// ready returns the live pgx connection, reconnecting a dropped one when
// auto-reconnect is on. Callers hold c.mu.
func (c *conn) ready(ctx context.Context) (*pgx.Conn, error) {
	if c.Closed() {
		return nil, errors.Newf(errors.ErrorTypeConnection, "connection %s is closed", c.id)
	}
	if !c.pg.IsClosed() {
		return c.pg, nil
	}
	if !c.autoReconnect.Load() {
		return nil, errors.Newf(errors.ErrorTypeConnection, "connection %s was lost", c.id)
	}

	pg, err := pgx.ConnectConfig(ctx, c.cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to reconnect to postgres")
	}
	if c.schema != "" {
		if _, err := pg.Exec(ctx, "SET search_path TO "+dialect.QuoteIdent(c.schema)); err != nil {
			_ = pg.Close(ctx)
			return nil, err
		}
	}
	c.pg = pg
	return pg, nil
}

func (c *conn) Select(ctx context.Context, q *akeraapi.Select) ([]akeraapi.Record, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	st := dialect.Select(q)
	rows, err := pg.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]akeraapi.Record, len(maps))
	for i, m := range maps {
		out[i] = akeraapi.Record(m)
	}
	return out, nil
}

func (c *conn) Count(ctx context.Context, q *akeraapi.Select) (int64, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, err := c.ready(ctx)
	if err != nil {
		return 0, err
	}
	st := dialect.Count(q)
	var n int64
	if err := pg.QueryRow(ctx, st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *conn) returning(ctx context.Context, st sqlgen.Statement) (akeraapi.Record, error) {
	pg, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pg.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return akeraapi.Record(m), nil
}

func (c *conn) Insert(ctx context.Context, q *akeraapi.Insert) (akeraapi.Record, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.returning(ctx, dialect.Insert(q))
}

func (c *conn) Upsert(ctx context.Context, q *akeraapi.Upsert) (akeraapi.Record, error) {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(q.Keys) == 0 || len(q.Values) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "upsert requires key columns and values")
	}
	return c.returning(ctx, dialect.Upsert(q))
}

func (c *conn) exec(ctx context.Context, st sqlgen.Statement) (int64, error) {
	pg, err := c.ready(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := pg.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
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

	pg, err := c.ready(ctx)
	if err != nil {
		return err
	}
	return pg.Ping(ctx)
}

func (c *conn) SelectDatabase(ctx context.Context, name string) error {
	defer c.Begin()()
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, err := c.ready(ctx)
	if err != nil {
		return err
	}

	var found int
	err = pg.QueryRow(ctx, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", name).Scan(&found)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.Newf(errors.ErrorTypeNotFound, "database %s not found", name)
	}
	if err != nil {
		return err
	}

	if _, err := pg.Exec(ctx, "SET search_path TO "+dialect.QuoteIdent(name)); err != nil {
		return err
	}
	c.schema = name
	return nil
}

func (c *conn) Meta() akeraapi.Metadata {
	return &metadata{conn: c}
}

func (c *conn) SetAutoReconnect(enabled bool) {
	c.autoReconnect.Store(enabled)
}

func (c *conn) Disconnect(ctx context.Context) error {
	if c.Closed() {
		return nil
	}
	c.mu.Lock()
	err := c.pg.Close(ctx)
	c.mu.Unlock()

	c.Transition(akeraapi.StateClosed)
	return err
}
