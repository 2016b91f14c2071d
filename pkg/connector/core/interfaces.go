// Package core defines the ORM connector contract the akera connector
// implements, and the data shapes exchanged across it.
package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/akera-connector/pkg/filter"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// DataObject is a model instance keyed by property name
type DataObject map[string]interface{}

// Count is the result of bulk updates, bulk deletes and counts
type Count struct {
	Count int64 `json:"count"`
}

// Connector is the lifecycle part of the contract
type Connector interface {
	// Name returns the connector name
	Name() string

	// Define registers a model definition
	Define(def *model.Definition) error

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error
}

// CrudConnector is the data access part of the contract. Operations address
// models by name; ids are scalars for single-key models, and slices in key
// order or maps keyed by key property for composite keys.
type CrudConnector interface {
	Connector

	Create(ctx context.Context, model string, data DataObject) (DataObject, error)
	CreateAll(ctx context.Context, model string, data []DataObject) ([]DataObject, error)
	Find(ctx context.Context, model string, f *filter.Filter) ([]DataObject, error)
	FindByID(ctx context.Context, model string, id interface{}) (DataObject, error)
	UpdateAll(ctx context.Context, model string, data DataObject, where filter.Condition) (Count, error)
	UpdateByID(ctx context.Context, model string, id interface{}, data DataObject) (bool, error)
	ReplaceByID(ctx context.Context, model string, id interface{}, data DataObject) (DataObject, error)
	UpdateOrCreate(ctx context.Context, model string, data DataObject) (DataObject, error)
	Save(ctx context.Context, model string, data DataObject) (bool, error)
	DeleteAll(ctx context.Context, model string, where filter.Condition) (Count, error)
	DeleteByID(ctx context.Context, model string, id interface{}) (bool, error)
	Count(ctx context.Context, model string, where filter.Condition) (int64, error)
	Exists(ctx context.Context, model string, id interface{}) (bool, error)
}

// Discoverer is the model discovery part of the contract
type Discoverer interface {
	DiscoverDatabaseSchemas(ctx context.Context, opts PagingOptions) ([]DatabaseSchema, error)
	DiscoverModelDefinitions(ctx context.Context, opts DiscoveryOptions) ([]ModelDefinition, error)
	DiscoverModelProperties(ctx context.Context, table string, opts DiscoveryOptions) ([]PropertyDefinition, error)
	DiscoverPrimaryKeys(ctx context.Context, table string, opts DiscoveryOptions) ([]KeyDefinition, error)
	DiscoverModelDefinition(ctx context.Context, table string, opts DiscoveryOptions) (*model.Definition, error)
}

// PagingOptions pages discovery results. Offset and Skip are aliases;
// Offset wins when both are set.
type PagingOptions struct {
	Limit  int  `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`
	Skip   *int `json:"skip,omitempty"`
}

// Start returns the effective offset
func (p PagingOptions) Start() int {
	switch {
	case p.Offset != nil:
		return *p.Offset
	case p.Skip != nil:
		return *p.Skip
	}
	return 0
}

// Page returns the [start, end) window of a result of length n
func (p PagingOptions) Page(n int) (int, int) {
	start := p.Start()
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return start, end
}

// DiscoveryOptions selects the schema to discover in. Owner and Schema are
// aliases; Owner wins when both are set.
type DiscoveryOptions struct {
	PagingOptions
	Owner  string `json:"owner,omitempty"`
	Schema string `json:"schema,omitempty"`
}

// SchemaName returns the requested schema, if any
func (o DiscoveryOptions) SchemaName() string {
	if o.Owner != "" {
		return o.Owner
	}
	return o.Schema
}

// DatabaseSchema is a discovered schema
type DatabaseSchema struct {
	Catalog string `json:"catalog"`
	Schema  string `json:"schema"`
}

// ModelDefinition is a discovered table
type ModelDefinition struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// PropertyDefinition is a discovered column
type PropertyDefinition struct {
	Owner         string `json:"owner"`
	TableName     string `json:"tableName"`
	ColumnName    string `json:"columnName"`
	DataType      string `json:"dataType"`
	ColumnType    string `json:"columnType"`
	DataLength    *int   `json:"dataLength"`
	DataPrecision *int   `json:"dataPrecision"`
	DataScale     *int   `json:"dataScale"`
	Nullable      string `json:"nullable"`
	Type          string `json:"type"`
	Generated     bool   `json:"generated"`
}

// KeyDefinition is a discovered primary key column
type KeyDefinition struct {
	Owner      string `json:"owner"`
	TableName  string `json:"tableName"`
	ColumnName string `json:"columnName"`
	KeySeq     int    `json:"keySeq"`
	PkName     string `json:"pkName"`
}

// HealthStatus represents the health status of a connector
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
	Error     string                 `json:"error,omitempty"`
}
