package akeraapi

import (
	"context"
	"fmt"
)

// ConnectInfo describes how to reach an application server
type ConnectInfo struct {
	Host     string
	Port     int
	UseSSL   bool
	Database string
	User     string
	Password string
}

// Address returns host:port
func (ci ConnectInfo) Address() string {
	return fmt.Sprintf("%s:%d", ci.Host, ci.Port)
}

// Dialer opens vendor connections
type Dialer interface {
	Dial(ctx context.Context, info ConnectInfo) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, info ConnectInfo) (Conn, error)

// Dial calls f(ctx, info)
func (f DialerFunc) Dial(ctx context.Context, info ConnectInfo) (Conn, error) {
	return f(ctx, info)
}

// Conn is a single connection to an application server.
//
// Every query and metadata call moves the connection from StateIdle to
// StateQuery and back. The transition back to StateIdle is what the
// connection pool listens for to reclaim the connection, so a caller must not
// touch a pooled Conn after its call returns.
type Conn interface {
	ID() string

	Select(ctx context.Context, q *Select) ([]Record, error)
	Count(ctx context.Context, q *Select) (int64, error)
	Insert(ctx context.Context, q *Insert) (Record, error)
	Upsert(ctx context.Context, q *Upsert) (Record, error)
	Update(ctx context.Context, q *Update) (int64, error)
	Delete(ctx context.Context, q *Delete) (int64, error)
	Ping(ctx context.Context) error

	// SelectDatabase makes name the default database for unqualified tables
	SelectDatabase(ctx context.Context, name string) error

	// Meta exposes the server's metadata catalog over this connection
	Meta() Metadata

	State() State
	OnStateChange(fn func(State))
	SetAutoReconnect(enabled bool)
	Closed() bool
	Disconnect(ctx context.Context) error
}

// FieldDataType is a vendor column type
type FieldDataType string

const (
	TypeCharacter  FieldDataType = "CHARACTER"
	TypeInteger    FieldDataType = "INTEGER"
	TypeInt64      FieldDataType = "INT64"
	TypeDecimal    FieldDataType = "DECIMAL"
	TypeLogical    FieldDataType = "LOGICAL"
	TypeDate       FieldDataType = "DATE"
	TypeDatetime   FieldDataType = "DATETIME"
	TypeDatetimeTZ FieldDataType = "DATETIME-TZ"
	TypeClob       FieldDataType = "CLOB"
	TypeBlob       FieldDataType = "BLOB"
)

// Database is a connected database (a schema, in ORM terms)
type Database struct {
	LName string
}

// Table is a table of a database
type Table struct {
	Database string
	Name     string
}

// FieldMeta describes a table column
type FieldMeta struct {
	Name      string
	Type      FieldDataType
	Mandatory bool
	Decimals  int
	Position  int
}

// PrimaryKey describes a table's primary index. Fields are in key order.
type PrimaryKey struct {
	Name   string
	Fields []string
}

// Metadata is the catalog API of an application server
type Metadata interface {
	Databases(ctx context.Context) ([]Database, error)
	Tables(ctx context.Context, database string) ([]Table, error)
	Fields(ctx context.Context, database, table string) ([]FieldMeta, error)
	PrimaryKey(ctx context.Context, database, table string) (*PrimaryKey, error)
}
