package akera

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/connector/core"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// DiscoverDatabaseSchemas lists the databases of the server
func (c *Connector) DiscoverDatabaseSchemas(ctx context.Context, opts core.PagingOptions) ([]core.DatabaseSchema, error) {
	var out []core.DatabaseSchema
	err := c.run(ctx, "discoverDatabaseSchemas", "", func(ctx context.Context) error {
		dbs, err := c.databases(ctx)
		if err != nil {
			return err
		}
		start, end := opts.Page(len(dbs))
		out = make([]core.DatabaseSchema, 0, end-start)
		for _, db := range dbs[start:end] {
			out = append(out, core.DatabaseSchema{Catalog: db.LName, Schema: db.LName})
		}
		return nil
	})
	return out, err
}

// DiscoverModelDefinitions lists the tables of one schema, or of every
// schema when none is given
func (c *Connector) DiscoverModelDefinitions(ctx context.Context, opts core.DiscoveryOptions) ([]core.ModelDefinition, error) {
	var out []core.ModelDefinition
	err := c.run(ctx, "discoverModelDefinitions", "", func(ctx context.Context) error {
		tables, err := c.tables(ctx, c.schemaFor(opts))
		if err != nil {
			return err
		}
		start, end := opts.Page(len(tables))
		out = make([]core.ModelDefinition, 0, end-start)
		for _, t := range tables[start:end] {
			out = append(out, core.ModelDefinition{Type: "table", Name: t.Name, Owner: t.Database})
		}
		return nil
	})
	return out, err
}

// DiscoverModelProperties describes the columns of a table
func (c *Connector) DiscoverModelProperties(ctx context.Context, table string, opts core.DiscoveryOptions) ([]core.PropertyDefinition, error) {
	var out []core.PropertyDefinition
	err := c.run(ctx, "discoverModelProperties", table, func(ctx context.Context) error {
		t, err := c.findTable(ctx, table, opts)
		if err != nil {
			return err
		}
		fields, err := c.fields(ctx, t)
		if err != nil {
			return err
		}

		out = make([]core.PropertyDefinition, len(fields))
		for i, f := range fields {
			out[i] = core.PropertyDefinition{
				Owner:      t.Database,
				TableName:  t.Name,
				ColumnName: f.Name,
				DataType:   string(f.Type),
				ColumnType: string(f.Type),
				Nullable:   nullable(f.Mandatory),
				Type:       string(PropertyType(f.Type)),
			}
			if f.Type == akeraapi.TypeDecimal {
				precision := f.Decimals
				out[i].DataPrecision = &precision
			}
		}
		return nil
	})
	return out, err
}

// DiscoverPrimaryKeys describes the primary key columns of a table, in key
// order
func (c *Connector) DiscoverPrimaryKeys(ctx context.Context, table string, opts core.DiscoveryOptions) ([]core.KeyDefinition, error) {
	var out []core.KeyDefinition
	err := c.run(ctx, "discoverPrimaryKeys", table, func(ctx context.Context) error {
		t, err := c.findTable(ctx, table, opts)
		if err != nil {
			return err
		}
		pk, err := c.primaryKey(ctx, t)
		if err != nil || pk == nil {
			return err
		}

		out = make([]core.KeyDefinition, len(pk.Fields))
		for i, f := range pk.Fields {
			out[i] = core.KeyDefinition{
				Owner:      t.Database,
				TableName:  t.Name,
				ColumnName: f,
				KeySeq:     i + 1,
				PkName:     pk.Name,
			}
		}
		return nil
	})
	return out, err
}

// DiscoverModelDefinition builds a model definition for a table that can be
// passed to Define. Property names are the column names.
func (c *Connector) DiscoverModelDefinition(ctx context.Context, table string, opts core.DiscoveryOptions) (*model.Definition, error) {
	var def *model.Definition
	err := c.run(ctx, "discoverModelDefinition", table, func(ctx context.Context) error {
		t, err := c.findTable(ctx, table, opts)
		if err != nil {
			return err
		}
		fields, err := c.fields(ctx, t)
		if err != nil {
			return err
		}
		pk, err := c.primaryKey(ctx, t)
		if err != nil {
			return err
		}

		keyPos := map[string]int{}
		if pk != nil {
			for i, f := range pk.Fields {
				keyPos[strings.ToLower(f)] = i + 1
			}
		}

		def = &model.Definition{
			Name:     t.Name,
			Settings: model.Settings{Schema: t.Database, Table: t.Name},
		}
		for _, f := range fields {
			def.Properties = append(def.Properties, model.Property{
				Name:     f.Name,
				Type:     PropertyType(f.Type),
				ID:       keyPos[strings.ToLower(f.Name)],
				Required: f.Mandatory,
			})
		}
		return nil
	})
	return def, err
}

// InvalidateDiscovery drops cached metadata of the given schemas, or of
// everything when called without arguments
func (c *Connector) InvalidateDiscovery(schemas ...string) {
	c.cache.invalidate(schemas...)
	c.logger.Debug("discovery cache invalidated", zap.Strings("schemas", schemas))
}

// PropertyType maps a vendor field type to an ORM property type
func PropertyType(t akeraapi.FieldDataType) model.PropertyType {
	switch t {
	case akeraapi.TypeBlob:
		return model.TypeBuffer
	case akeraapi.TypeLogical:
		return model.TypeBoolean
	case akeraapi.TypeInteger, akeraapi.TypeInt64, akeraapi.TypeDecimal:
		return model.TypeNumber
	case akeraapi.TypeDate, akeraapi.TypeDatetime, akeraapi.TypeDatetimeTZ:
		return model.TypeDate
	}
	return model.TypeString
}

func nullable(mandatory bool) string {
	if mandatory {
		return "N"
	}
	return "Y"
}

// schemaFor picks the schema to discover in: owner, then schema, then the
// configured database
func (c *Connector) schemaFor(opts core.DiscoveryOptions) string {
	if s := opts.SchemaName(); s != "" {
		return s
	}
	return c.config.Connection.Database
}

// findTable locates a table by name, preferring an exact match over a
// case-insensitive one
func (c *Connector) findTable(ctx context.Context, name string, opts core.DiscoveryOptions) (akeraapi.Table, error) {
	if strings.TrimSpace(name) == "" {
		return akeraapi.Table{}, errors.New(errors.ErrorTypeValidation, "Table name is mandatory for model discovery.")
	}

	tables, err := c.tables(ctx, c.schemaFor(opts))
	if err != nil {
		return akeraapi.Table{}, err
	}
	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return akeraapi.Table{}, errors.Newf(errors.ErrorTypeNotFound, "Table not found: %s.", name)
}

func (c *Connector) databases(ctx context.Context) ([]akeraapi.Database, error) {
	v, err := c.cached(ctx, cacheKey{kind: "databases"}, func(ctx context.Context, meta akeraapi.Metadata) (interface{}, error) {
		return meta.Databases(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]akeraapi.Database), nil
}

func (c *Connector) tables(ctx context.Context, schema string) ([]akeraapi.Table, error) {
	v, err := c.cached(ctx, cacheKey{kind: "tables", schema: schema}, func(ctx context.Context, meta akeraapi.Metadata) (interface{}, error) {
		return meta.Tables(ctx, schema)
	})
	if err != nil {
		return nil, err
	}
	return v.([]akeraapi.Table), nil
}

func (c *Connector) fields(ctx context.Context, t akeraapi.Table) ([]akeraapi.FieldMeta, error) {
	v, err := c.cached(ctx, cacheKey{kind: "fields", schema: t.Database, table: t.Name}, func(ctx context.Context, meta akeraapi.Metadata) (interface{}, error) {
		return meta.Fields(ctx, t.Database, t.Name)
	})
	if err != nil {
		return nil, err
	}
	return v.([]akeraapi.FieldMeta), nil
}

func (c *Connector) primaryKey(ctx context.Context, t akeraapi.Table) (*akeraapi.PrimaryKey, error) {
	v, err := c.cached(ctx, cacheKey{kind: "keys", schema: t.Database, table: t.Name}, func(ctx context.Context, meta akeraapi.Metadata) (interface{}, error) {
		return meta.PrimaryKey(ctx, t.Database, t.Name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*akeraapi.PrimaryKey), nil
}

// cached serves key from the cache or loads it on a pooled connection.
// Concurrent loads of the same key share one metadata call. The shared load
// does not end with the caller that started it; each caller stops waiting
// when its own ctx is done.
func (c *Connector) cached(ctx context.Context, key cacheKey, load func(context.Context, akeraapi.Metadata) (interface{}, error)) (interface{}, error) {
	if v, ok := c.cache.get(key); ok {
		c.metrics.CacheLookup(true)
		return v, nil
	}
	c.metrics.CacheLookup(false)

	ch := c.cache.group.DoChan(key.String(), func() (interface{}, error) {
		loadCtx, cancel := c.sharedLoadContext(ctx)
		defer cancel()

		conn, err := c.acquire(loadCtx)
		if err != nil {
			return nil, err
		}
		v, err := load(loadCtx, conn.Meta())
		if err != nil {
			return nil, err
		}
		c.cache.put(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sharedLoadContext detaches ctx from its caller. The load may still wait
// ConnectTimeout for a connection and then sharedLoadTimeout for the server.
func (c *Connector) sharedLoadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.config.Pool.ConnectTimeout+sharedLoadTimeout)
}

type cacheKey struct {
	kind   string
	schema string
	table  string
}

func (k cacheKey) String() string {
	return k.kind + "\x00" + k.schema + "\x00" + k.table
}

type cacheEntry struct {
	value  interface{}
	loaded time.Time
}

// sharedLoadTimeout bounds a metadata load that no caller can cancel
const sharedLoadTimeout = time.Minute

// discoveryCache holds metadata per schema for the connector lifetime, or
// until ttl passes when ttl is set
type discoveryCache struct {
	enabled bool
	ttl     time.Duration
	group   singleflight.Group

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func newDiscoveryCache(enabled bool, ttl time.Duration) *discoveryCache {
	return &discoveryCache{
		enabled: enabled,
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (dc *discoveryCache) get(key cacheKey) (interface{}, bool) {
	if !dc.enabled {
		return nil, false
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.entries[key]
	if !ok {
		return nil, false
	}
	if dc.ttl > 0 && time.Since(e.loaded) > dc.ttl {
		delete(dc.entries, key)
		return nil, false
	}
	return e.value, true
}

func (dc *discoveryCache) put(key cacheKey, v interface{}) {
	if !dc.enabled {
		return
	}
	dc.mu.Lock()
	dc.entries[key] = cacheEntry{value: v, loaded: time.Now()}
	dc.mu.Unlock()
}

// invalidate drops the entries of the given schemas. The database list and
// the all-schema table list are dropped with any schema.
func (dc *discoveryCache) invalidate(schemas ...string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if len(schemas) == 0 {
		dc.entries = make(map[cacheKey]cacheEntry)
		return
	}
	drop := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		drop[strings.ToLower(s)] = true
	}
	for k := range dc.entries {
		if k.schema == "" || drop[strings.ToLower(k.schema)] {
			delete(dc.entries, k)
		}
	}
}
