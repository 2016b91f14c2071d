// Package mongodb serves the akera API from MongoDB. Akera databases map to
// MongoDB databases and tables to collections.
package mongodb

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// BackendName is the registry name of the mongodb backend
const BackendName = "mongodb"

// IDField is the primary key of every collection
const IDField = "_id"

func init() {
	registry.MustRegisterBackend(registry.BackendInfo{
		Name:        BackendName,
		Description: "MongoDB, one collection per akera table",
		Library:     "go.mongodb.org/mongo-driver",
	}, func(_ *config.ConnectorConfig) (akeraapi.Dialer, error) {
		return &Dialer{Timeout: 10 * time.Second}, nil
	})
}

// Dialer opens one mongo client per akera connection
type Dialer struct {
	Timeout time.Duration
}

// URI builds the mongodb connection string for info
func (d *Dialer) URI(info akeraapi.ConnectInfo) string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   info.Host + ":" + strconv.Itoa(info.Port),
		Path:   "/",
	}
	if info.User != "" {
		u.User = url.UserPassword(info.User, info.Password)
	}
	q := url.Values{}
	q.Set("appName", "akera-connector")
	if info.UseSSL {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial connects to MongoDB and checks the server answers
func (d *Dialer) Dial(ctx context.Context, info akeraapi.ConnectInfo) (akeraapi.Conn, error) {
	opts := options.Client().ApplyURI(d.URI(info))
	if d.Timeout > 0 {
		opts.SetConnectTimeout(d.Timeout).SetServerSelectionTimeout(d.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mongodb did not answer")
	}

	c := &conn{id: uuid.NewString(), client: client}
	c.Transition(akeraapi.StateIdle)
	return c, nil
}

type conn struct {
	akeraapi.StateMachine

	id     string
	client *mongo.Client

	mu       sync.RWMutex
	database string

	// the driver reconnects on its own; the flag is kept for Conn
	autoReconnect atomic.Bool
}

var _ akeraapi.Conn = (*conn)(nil)

func (c *conn) ID() string { return c.id }

func (c *conn) usable(ctx context.Context) error {
	if c.Closed() {
		return errors.Newf(errors.ErrorTypeConnection, "connection %s is closed", c.id)
	}
	return ctx.Err()
}

// collection resolves db.table, or table in the selected database
func (c *conn) collection(table string) (*mongo.Collection, error) {
	db, name := "", table
	if i := strings.IndexByte(table, '.'); i > 0 {
		db, name = table[:i], table[i+1:]
	} else {
		c.mu.RLock()
		db = c.database
		c.mu.RUnlock()
	}
	if db == "" {
		return nil, errors.Newf(errors.ErrorTypeQuery, "no database selected for table %s", table)
	}
	return c.client.Database(db).Collection(name), nil
}

func (c *conn) Select(ctx context.Context, q *akeraapi.Select) ([]akeraapi.Record, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return nil, err
	}

	coll, err := c.collection(q.Table)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if len(q.Fields) > 0 {
		projection := bson.D{}
		withID := false
		for _, f := range q.Fields {
			projection = append(projection, bson.E{Key: f.Name, Value: 1})
			withID = withID || f.Name == IDField
		}
		if !withID {
			projection = append(projection, bson.E{Key: IDField, Value: 0})
		}
		opts.SetProjection(projection)
	}
	if len(q.Sort) > 0 {
		sort := bson.D{}
		for _, s := range q.Sort {
			dir := 1
			if s.Descending {
				dir = -1
			}
			sort = append(sort, bson.E{Key: s.Field, Value: dir})
		}
		opts.SetSort(sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	cursor, err := coll.Find(ctx, Render(q.Filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []akeraapi.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, project(record(doc), q.Fields))
	}
	return out, cursor.Err()
}

func (c *conn) Count(ctx context.Context, q *akeraapi.Select) (int64, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return 0, err
	}

	coll, err := c.collection(q.Table)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(ctx, Render(q.Filter))
}

func (c *conn) Insert(ctx context.Context, q *akeraapi.Insert) (akeraapi.Record, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return nil, err
	}

	coll, err := c.collection(q.Table)
	if err != nil {
		return nil, err
	}
	res, err := coll.InsertOne(ctx, document(q.Values))
	if err != nil {
		return nil, err
	}

	out := make(akeraapi.Record, len(q.Values)+1)
	for _, v := range q.Values {
		out[v.Name] = v.Value
	}
	out[IDField] = value(res.InsertedID)
	return out, nil
}

func (c *conn) Upsert(ctx context.Context, q *akeraapi.Upsert) (akeraapi.Record, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return nil, err
	}

	if len(q.Keys) == 0 || len(q.Values) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "upsert requires key columns and values")
	}
	coll, err := c.collection(q.Table)
	if err != nil {
		return nil, err
	}

	key := bson.D{}
	for _, k := range q.Keys {
		v, _ := akeraapi.Value(q.Values, k)
		key = append(key, bson.E{Key: k, Value: v})
	}
	update := bson.D{{Key: "$set", Value: document(q.Values)}}
	if _, err := coll.UpdateOne(ctx, key, update, options.Update().SetUpsert(true)); err != nil {
		return nil, err
	}

	var doc bson.M
	if err := coll.FindOne(ctx, key).Decode(&doc); err != nil {
		return nil, err
	}
	return record(doc), nil
}

func (c *conn) Update(ctx context.Context, q *akeraapi.Update) (int64, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return 0, err
	}

	if len(q.Values) == 0 {
		return 0, nil
	}
	coll, err := c.collection(q.Table)
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(ctx, Render(q.Filter), bson.D{{Key: "$set", Value: document(q.Values)}})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (c *conn) Delete(ctx context.Context, q *akeraapi.Delete) (int64, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return 0, err
	}

	coll, err := c.collection(q.Table)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, Render(q.Filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *conn) Ping(ctx context.Context) error {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return err
	}
	return c.client.Ping(ctx, nil)
}

func (c *conn) SelectDatabase(ctx context.Context, name string) error {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return err
	}

	names, err := c.client.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.Newf(errors.ErrorTypeNotFound, "database %s not found", name)
	}

	c.mu.Lock()
	c.database = name
	c.mu.Unlock()
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
	err := c.client.Disconnect(ctx)
	c.Transition(akeraapi.StateClosed)
	return err
}

func document(values []akeraapi.SetField) bson.D {
	doc := make(bson.D, len(values))
	for i, v := range values {
		doc[i] = bson.E{Key: v.Name, Value: v.Value}
	}
	return doc
}

// record converts a decoded document to plain Go values
func record(doc bson.M) akeraapi.Record {
	out := make(akeraapi.Record, len(doc))
	for k, v := range doc {
		out[k] = value(v)
	}
	return out
}

func value(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Binary:
		return t.Data
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return f
		}
		return t.String()
	case int32:
		return int64(t)
	case bson.M:
		return map[string]interface{}(record(t))
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = value(e)
		}
		return out
	}
	return v
}

// project renames aliased columns
func project(r akeraapi.Record, fields []akeraapi.Field) akeraapi.Record {
	if len(fields) == 0 {
		return r
	}
	out := make(akeraapi.Record, len(fields))
	for _, f := range fields {
		out[f.Key()] = r[f.Name]
	}
	return out
}
