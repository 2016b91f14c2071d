// Package memory implements an in-process akera application server.
//
// A Server holds databases, tables and rows in memory and speaks the
// akeraapi connection and metadata API, including the connection state
// machine the pool relies on. It backs the connector's tests and the
// "memory" backend of the CLI.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// BackendName is the registry name of the memory backend
const BackendName = "memory"

func init() {
	registry.MustRegisterBackend(registry.BackendInfo{
		Name:        BackendName,
		Description: "in-process akera application server",
		Library:     "stdlib",
	}, func(cfg *config.ConnectorConfig) (akeraapi.Dialer, error) {
		return Shared(cfg.Connection.Address()), nil
	})
}

var (
	sharedMu sync.Mutex
	shared   = map[string]*Server{}
)

// Shared returns the server registered under address, creating an empty one
// on first use. Connectors configured with the same host and port see the
// same data.
func Shared(address string) *Server {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	s, ok := shared[address]
	if !ok {
		s = NewServer()
		shared[address] = s
	}
	return s
}

// Register makes s the server behind address
func Register(address string, s *Server) {
	sharedMu.Lock()
	shared[address] = s
	sharedMu.Unlock()
}

// Column declares a table column
type Column struct {
	Name      string
	Type      akeraapi.FieldDataType
	Mandatory bool
	Decimals  int
}

// TableDef declares a table. A single INTEGER or INT64 key column is filled
// from a sequence when an insert leaves it empty.
type TableDef struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	PkName     string
}

// Server is an in-memory application server. It implements akeraapi.Dialer.
type Server struct {
	mu        sync.RWMutex
	databases []*database

	user     string
	password string
	dialErr  error

	dials   atomic.Int64
	queries atomic.Int64
}

type database struct {
	name   string
	tables []*table
}

type table struct {
	db      string
	def     TableDef
	rows    []akeraapi.Record
	nextKey int64
}

// NewServer creates an empty server
func NewServer() *Server {
	return &Server{}
}

// SetCredentials makes Dial require user and password
func (s *Server) SetCredentials(user, password string) {
	s.mu.Lock()
	s.user, s.password = user, password
	s.mu.Unlock()
}

// FailDials makes every following Dial fail with err; nil restores dialing
func (s *Server) FailDials(err error) {
	s.mu.Lock()
	s.dialErr = err
	s.mu.Unlock()
}

// Dials returns the number of successful dials
func (s *Server) Dials() int64 {
	return s.dials.Load()
}

// Queries returns the number of data statements executed
func (s *Server) Queries() int64 {
	return s.queries.Load()
}

// CreateDatabase adds an empty database. Creating an existing database is a
// no-op.
func (s *Server) CreateDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.database(name) == nil {
		s.databases = append(s.databases, &database{name: name})
	}
}

// CreateTable adds a table to a database, creating the database if needed
func (s *Server) CreateTable(db string, def TableDef) error {
	if def.Name == "" || strings.Contains(def.Name, ".") {
		return errors.Newf(errors.ErrorTypeValidation, "invalid table name %q", def.Name)
	}
	seen := make(map[string]bool, len(def.Columns))
	for _, c := range def.Columns {
		key := strings.ToLower(c.Name)
		if c.Name == "" || seen[key] {
			return errors.Newf(errors.ErrorTypeValidation, "invalid or duplicate column %q in table %s", c.Name, def.Name)
		}
		seen[key] = true
	}
	for _, k := range def.PrimaryKey {
		if !seen[strings.ToLower(k)] {
			return errors.Newf(errors.ErrorTypeValidation, "primary key column %s is not a column of table %s", k, def.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.database(db)
	if d == nil {
		d = &database{name: db}
		s.databases = append(s.databases, d)
	}
	if d.table(def.Name) != nil {
		return errors.Newf(errors.ErrorTypeValidation, "table %s.%s already exists", db, def.Name)
	}
	d.tables = append(d.tables, &table{db: d.name, def: def})
	return nil
}

// InsertRows seeds rows into a table without going through a connection
func (s *Server) InsertRows(db, tableName string, rows ...akeraapi.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(db, tableName)
	if err != nil {
		return err
	}
	for _, r := range rows {
		values := make([]akeraapi.SetField, 0, len(r))
		for name, v := range r {
			values = append(values, akeraapi.SetField{Name: name, Value: v})
		}
		if _, err := t.insert(values); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns a copy of every row of a table
func (s *Server) Rows(db, tableName string) ([]akeraapi.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(db, tableName)
	if err != nil {
		return nil, err
	}
	out := make([]akeraapi.Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyRecord(r)
	}
	return out, nil
}

// Dial opens a connection. The connection starts in StateConnecting and is
// idle when Dial returns.
func (s *Server) Dial(ctx context.Context, info akeraapi.ConnectInfo) (akeraapi.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	dialErr, user, password := s.dialErr, s.user, s.password
	s.mu.RUnlock()

	if dialErr != nil {
		return nil, dialErr
	}
	if user != "" && (info.User != user || info.Password != password) {
		return nil, errors.New(errors.ErrorTypeConnection, "authentication failed")
	}

	c := &conn{
		id:     uuid.NewString(),
		server: s,
	}
	s.dials.Add(1)
	c.Transition(akeraapi.StateIdle)
	return c, nil
}

func (s *Server) database(name string) *database {
	for _, d := range s.databases {
		if strings.EqualFold(d.name, name) {
			return d
		}
	}
	return nil
}

func (d *database) table(name string) *table {
	for _, t := range d.tables {
		if strings.EqualFold(t.def.Name, name) {
			return t
		}
	}
	return nil
}

// lookup resolves a table in db. Callers hold s.mu.
func (s *Server) lookup(db, name string) (*table, error) {
	d := s.database(db)
	if d == nil {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "database %s not found", db)
	}
	t := d.table(name)
	if t == nil {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "table %s.%s not found", db, name)
	}
	return t, nil
}

// resolve splits a possibly qualified table name and looks it up, using
// current for unqualified names. Callers hold s.mu.
func (s *Server) resolve(current, qualified string) (*table, error) {
	db, name, ok := strings.Cut(qualified, ".")
	if !ok {
		db, name = current, qualified
	}
	if db == "" {
		if len(s.databases) != 1 {
			return nil, errors.Newf(errors.ErrorTypeQuery, "table %s is not qualified and no database is selected", qualified)
		}
		db = s.databases[0].name
	}
	return s.lookup(db, name)
}

func (t *table) column(name string) (string, bool) {
	for _, c := range t.def.Columns {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return "", false
}

func (t *table) columnDef(name string) *Column {
	for i := range t.def.Columns {
		if t.def.Columns[i].Name == name {
			return &t.def.Columns[i]
		}
	}
	return nil
}

// row builds a full row from set-fields, leaving other columns nil
func (t *table) row(values []akeraapi.SetField) (akeraapi.Record, error) {
	r := make(akeraapi.Record, len(t.def.Columns))
	for _, c := range t.def.Columns {
		r[c.Name] = nil
	}
	for _, v := range values {
		name, ok := t.column(v.Name)
		if !ok {
			return nil, t.unknown(v.Name)
		}
		r[name] = v.Value
	}
	return r, nil
}

func (t *table) unknown(field string) error {
	return errors.Newf(errors.ErrorTypeQuery, "field %s does not exist in table %s.%s", field, t.db, t.def.Name)
}

// sequenced returns the key column filled from the sequence, if any
func (t *table) sequenced() (string, bool) {
	if len(t.def.PrimaryKey) != 1 {
		return "", false
	}
	name, _ := t.column(t.def.PrimaryKey[0])
	c := t.columnDef(name)
	if c == nil || (c.Type != akeraapi.TypeInteger && c.Type != akeraapi.TypeInt64) {
		return "", false
	}
	return name, true
}

func (t *table) insert(values []akeraapi.SetField) (akeraapi.Record, error) {
	r, err := t.row(values)
	if err != nil {
		return nil, err
	}

	if key, ok := t.sequenced(); ok {
		if r[key] == nil {
			t.nextKey++
			r[key] = t.nextKey
		} else if n, ok := toFloat(r[key]); ok && int64(n) > t.nextKey {
			t.nextKey = int64(n)
		}
	}

	if err := t.check(r); err != nil {
		return nil, err
	}
	if i := t.find(r); i >= 0 {
		return nil, errors.Newf(errors.ErrorTypeQuery, "duplicate primary key in table %s.%s", t.db, t.def.Name)
	}

	t.rows = append(t.rows, r)
	return copyRecord(r), nil
}

// upsert merges values into the row matching keys, or inserts a new row
func (t *table) upsert(values []akeraapi.SetField, keys []string) (akeraapi.Record, error) {
	r, err := t.row(values)
	if err != nil {
		return nil, err
	}

	i := -1
	if len(keys) > 0 {
		for j, existing := range t.rows {
			if sameKeys(t, existing, r, keys) {
				i = j
				break
			}
		}
	}
	if i < 0 {
		return t.insert(values)
	}

	merged := copyRecord(t.rows[i])
	for _, v := range values {
		name, _ := t.column(v.Name)
		merged[name] = v.Value
	}
	if err := t.check(merged); err != nil {
		return nil, err
	}
	t.rows[i] = merged
	return copyRecord(merged), nil
}

// check enforces mandatory columns
func (t *table) check(r akeraapi.Record) error {
	for _, c := range t.def.Columns {
		if c.Mandatory && r[c.Name] == nil {
			return errors.Newf(errors.ErrorTypeQuery, "field %s of table %s.%s is mandatory", c.Name, t.db, t.def.Name)
		}
	}
	return nil
}

// find returns the index of the row with r's primary key, or -1
func (t *table) find(r akeraapi.Record) int {
	if len(t.def.PrimaryKey) == 0 {
		return -1
	}
	for i, existing := range t.rows {
		if sameKeys(t, existing, r, t.def.PrimaryKey) {
			return i
		}
	}
	return -1
}

func sameKeys(t *table, a, b akeraapi.Record, keys []string) bool {
	for _, k := range keys {
		name, ok := t.column(k)
		if !ok || !equal(a[name], b[name]) {
			return false
		}
	}
	return true
}

// filter returns the indexes of rows matching f
func (t *table) filter(f *akeraapi.Filter) ([]int, error) {
	if f != nil {
		for _, field := range f.Fields() {
			if _, ok := t.column(field); !ok {
				return nil, t.unknown(field)
			}
		}
	}
	var out []int
	for i, r := range t.rows {
		if t.eval(f, r) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (t *table) sortRows(rows []akeraapi.Record, by []akeraapi.SortField) error {
	names := make([]string, len(by))
	for i, s := range by {
		name, ok := t.column(s.Field)
		if !ok {
			return t.unknown(s.Field)
		}
		names[i] = name
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, s := range by {
			c := order(rows[i][names[k]], rows[j][names[k]])
			if c == 0 {
				continue
			}
			if s.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func (t *table) project(r akeraapi.Record, fields []akeraapi.Field) (akeraapi.Record, error) {
	if len(fields) == 0 {
		return copyRecord(r), nil
	}
	out := make(akeraapi.Record, len(fields))
	for _, f := range fields {
		name, ok := t.column(f.Name)
		if !ok {
			return nil, t.unknown(f.Name)
		}
		out[f.Key()] = r[name]
	}
	return out, nil
}

func copyRecord(r akeraapi.Record) akeraapi.Record {
	out := make(akeraapi.Record, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}

// String describes the server for logs
func (s *Server) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory server (%d databases)", len(s.databases))
}
