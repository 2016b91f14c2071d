// Package akeraconnector is a LoopBack style ORM connector for akera.io
// application servers. It translates ORM filters into akera query
// directives, runs CRUD operations through a bounded connection pool and
// exposes the server catalog through discovery.
//
// # Architecture
//
// A connector is made of four parts:
//
// 1. Filter translation (pkg/filter): ORM where clauses, ordering, paging
// and field selection become akera Select, Update and Delete directives
// (pkg/akeraapi). Invalid filters fail before any connection is used.
//
// 2. Connection pool (pkg/clients): one vendor connection per call. A
// connection returns to the pool when its state machine goes back to idle.
// Callers queue when the pool is at its size limit.
//
// 3. CRUD (pkg/connector/akera): create, find, update, replace, upsert,
// delete, count and exists on defined models (pkg/model).
//
// 4. Discovery (pkg/connector/akera): schemas, tables, columns and primary
// keys, cached per schema, and model definitions built from them.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/akera-connector/pkg/connector/akera"
//	    "github.com/ajitpratap0/akera-connector/pkg/filter"
//	    _ "github.com/ajitpratap0/akera-connector/pkg/backends/mysql"
//	)
//
//	c, err := akera.Initialize(ctx, map[string]interface{}{
//	    "backend":         "mysql",
//	    "host":            "db.internal",
//	    "port":            3306,
//	    "database":        "sports2000",
//	    "connectPoolSize": 4,
//	})
//	_ = c.Define(customerModel)
//	rows, err := c.Find(ctx, "Customer", &filter.Filter{
//	    Where: filter.Condition{"country": "USA"},
//	    Limit: filter.Int(10),
//	})
//
// # Backends
//
// The vendor API is reached through a backend registered by import:
//
//	memory    - in-process application server, used by tests and the CLI
//	mysql     - go-sql-driver/mysql
//	postgres  - jackc/pgx
//	mongodb   - mongo-driver
//
// # Configuration
//
// Settings come from an ORM options map (config.FromOptions), viper
// (config.FromViper) or a YAML file with ${VAR:-default} substitution
// (config.Load).
//
// # Command Line
//
// cmd/akera wraps the connector: ping, find, count and discover.
package akeraconnector
