package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// SampleSize is how many documents Fields reads to infer a collection's
// columns
const SampleSize = 100

var systemDatabases = map[string]bool{"admin": true, "config": true, "local": true}

type metadata struct {
	conn *conn
}

// begin marks the connection busy. The returned func must run even when err
// is set.
func (m *metadata) begin(ctx context.Context) (func(), error) {
	return m.conn.Begin(), m.conn.usable(ctx)
}

func (m *metadata) Databases(ctx context.Context) ([]akeraapi.Database, error) {
	end, err := m.begin(ctx)
	defer end()
	if err != nil {
		return nil, err
	}

	names, err := m.conn.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var out []akeraapi.Database
	for _, n := range names {
		if !systemDatabases[n] {
			out = append(out, akeraapi.Database{LName: n})
		}
	}
	return out, nil
}

func (m *metadata) Tables(ctx context.Context, database string) ([]akeraapi.Table, error) {
	end, err := m.begin(ctx)
	defer end()
	if err != nil {
		return nil, err
	}

	var dbs []string
	if database != "" {
		dbs = []string{database}
	} else {
		names, err := m.conn.client.ListDatabaseNames(ctx, bson.D{})
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !systemDatabases[n] {
				dbs = append(dbs, n)
			}
		}
	}

	var out []akeraapi.Table
	for _, db := range dbs {
		names, err := m.conn.client.Database(db).ListCollectionNames(ctx, bson.D{})
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			out = append(out, akeraapi.Table{Database: db, Name: n})
		}
	}
	return out, nil
}

// Fields infers columns from a sample of documents, in order of first
// appearance. A field is mandatory when every sampled document has it.
func (m *metadata) Fields(ctx context.Context, database, table string) ([]akeraapi.FieldMeta, error) {
	end, err := m.begin(ctx)
	defer end()
	if err != nil {
		return nil, err
	}

	db := m.conn.client.Database(database)
	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: table}})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "table %s.%s not found", database, table)
	}

	cursor, err := db.Collection(table).Find(ctx, bson.D{}, options.Find().SetLimit(SampleSize))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var (
		out     []akeraapi.FieldMeta
		index   = map[string]int{}
		seen    = map[string]int{}
		sampled int
	)
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		sampled++
		for _, e := range doc {
			seen[e.Key]++
			if _, ok := index[e.Key]; ok {
				continue
			}
			index[e.Key] = len(out)
			out = append(out, akeraapi.FieldMeta{
				Name:     e.Key,
				Type:     FieldType(e.Value),
				Position: len(out) + 1,
			})
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Mandatory = seen[out[i].Name] == sampled
	}
	if len(out) == 0 {
		out = []akeraapi.FieldMeta{{Name: IDField, Type: akeraapi.TypeCharacter, Mandatory: true, Position: 1}}
	}
	return out, nil
}

func (m *metadata) PrimaryKey(ctx context.Context, _, _ string) (*akeraapi.PrimaryKey, error) {
	end, err := m.begin(ctx)
	defer end()
	if err != nil {
		return nil, err
	}
	return &akeraapi.PrimaryKey{Name: "_id_", Fields: []string{IDField}}, nil
}

// FieldType maps a BSON value to a vendor field type
func FieldType(v interface{}) akeraapi.FieldDataType {
	switch v.(type) {
	case bool:
		return akeraapi.TypeLogical
	case int32:
		return akeraapi.TypeInteger
	case int64:
		return akeraapi.TypeInt64
	case float64, primitive.Decimal128:
		return akeraapi.TypeDecimal
	case primitive.DateTime, primitive.Timestamp:
		return akeraapi.TypeDatetimeTZ
	case primitive.Binary:
		return akeraapi.TypeBlob
	}
	return akeraapi.TypeCharacter
}
