package memory

import (
	"context"
	"sync/atomic"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// conn is a connection to a Server. Every call enters StateQuery and goes
// back to StateIdle after the server lock is released.
type conn struct {
	akeraapi.StateMachine

	id            string
	server        *Server
	database      atomic.Value
	autoReconnect atomic.Bool
}

var _ akeraapi.Conn = (*conn)(nil)

func (c *conn) ID() string {
	return c.id
}

func (c *conn) current() string {
	if db, ok := c.database.Load().(string); ok {
		return db
	}
	return ""
}

func (c *conn) usable(ctx context.Context) error {
	if c.Closed() {
		return errors.Newf(errors.ErrorTypeConnection, "connection %s is closed", c.id)
	}
	return ctx.Err()
}

func (c *conn) Select(ctx context.Context, q *akeraapi.Select) ([]akeraapi.Record, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return nil, err
	}
	c.server.queries.Add(1)

	s := c.server
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.resolve(c.current(), q.Table)
	if err != nil {
		return nil, err
	}
	idx, err := t.filter(q.Filter)
	if err != nil {
		return nil, err
	}

	rows := make([]akeraapi.Record, len(idx))
	for i, j := range idx {
		rows[i] = t.rows[j]
	}
	if err := t.sortRows(rows, q.Sort); err != nil {
		return nil, err
	}

	start := q.Offset
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	out := make([]akeraapi.Record, 0, end-start)
	for _, r := range rows[start:end] {
		p, err := t.project(r, q.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *conn) Count(ctx context.Context, q *akeraapi.Select) (int64, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return 0, err
	}
	c.server.queries.Add(1)

	s := c.server
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.resolve(c.current(), q.Table)
	if err != nil {
		return 0, err
	}
	idx, err := t.filter(q.Filter)
	if err != nil {
		return 0, err
	}
	return int64(len(idx)), nil
}

func (c *conn) Insert(ctx context.Context, q *akeraapi.Insert) (akeraapi.Record, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return nil, err
	}
	c.server.queries.Add(1)

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolve(c.current(), q.Table)
	if err != nil {
		return nil, err
	}
	return t.insert(q.Values)
}

func (c *conn) Upsert(ctx context.Context, q *akeraapi.Upsert) (akeraapi.Record, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return nil, err
	}
	c.server.queries.Add(1)

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolve(c.current(), q.Table)
	if err != nil {
		return nil, err
	}
	return t.upsert(q.Values, q.Keys)
}

func (c *conn) Update(ctx context.Context, q *akeraapi.Update) (int64, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return 0, err
	}
	c.server.queries.Add(1)

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolve(c.current(), q.Table)
	if err != nil {
		return 0, err
	}
	names := make([]string, len(q.Values))
	for i, v := range q.Values {
		name, ok := t.column(v.Name)
		if !ok {
			return 0, t.unknown(v.Name)
		}
		names[i] = name
	}
	idx, err := t.filter(q.Filter)
	if err != nil {
		return 0, err
	}

	for _, j := range idx {
		updated := copyRecord(t.rows[j])
		for i, v := range q.Values {
			updated[names[i]] = v.Value
		}
		if err := t.check(updated); err != nil {
			return 0, err
		}
		t.rows[j] = updated
	}
	return int64(len(idx)), nil
}

func (c *conn) Delete(ctx context.Context, q *akeraapi.Delete) (int64, error) {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return 0, err
	}
	c.server.queries.Add(1)

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.resolve(c.current(), q.Table)
	if err != nil {
		return 0, err
	}
	idx, err := t.filter(q.Filter)
	if err != nil {
		return 0, err
	}
	if len(idx) == 0 {
		return 0, nil
	}

	drop := make(map[int]bool, len(idx))
	for _, j := range idx {
		drop[j] = true
	}
	kept := t.rows[:0:0]
	for j, r := range t.rows {
		if !drop[j] {
			kept = append(kept, r)
		}
	}
	t.rows = kept
	return int64(len(idx)), nil
}

func (c *conn) Ping(ctx context.Context) error {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return err
	}
	return nil
}

func (c *conn) SelectDatabase(ctx context.Context, name string) error {
	defer c.Begin()()
	if err := c.usable(ctx); err != nil {
		return err
	}

	s := c.server
	s.mu.RLock()
	d := s.database(name)
	s.mu.RUnlock()

	if d == nil {
		return errors.Newf(errors.ErrorTypeNotFound, "database %s not found", name)
	}
	c.database.Store(d.name)
	return nil
}

func (c *conn) Meta() akeraapi.Metadata {
	return &metadata{conn: c}
}

func (c *conn) SetAutoReconnect(enabled bool) {
	c.autoReconnect.Store(enabled)
}

func (c *conn) Disconnect(_ context.Context) error {
	if !c.Closed() {
		c.Transition(akeraapi.StateClosed)
	}
	return nil
}
