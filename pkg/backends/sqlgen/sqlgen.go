// Package sqlgen renders akeraapi directives and filter trees to SQL for the
// relational backends.
package sqlgen

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
)

// Dialect describes the SQL flavour of a backend
type Dialect struct {
	Name string
	// Quote is the identifier quote character
	Quote byte
	// Numbered placeholders are $1, $2...; otherwise ?
	Numbered bool
	// Returning dialects support INSERT ... RETURNING *
	Returning bool
	// NoLimit is the LIMIT used when only an offset is given, if the dialect
	// needs one
	NoLimit string
}

var (
	// Postgres renders for PostgreSQL
	Postgres = Dialect{Name: "postgres", Quote: '"', Numbered: true, Returning: true}
	// MySQL renders for MySQL and MariaDB
	MySQL = Dialect{Name: "mysql", Quote: '`', NoLimit: "18446744073709551615"}
)

// Statement is rendered SQL with its positional arguments
type Statement struct {
	SQL  string
	Args []interface{}
}

// writer accumulates SQL text and arguments
type writer struct {
	d    Dialect
	b    *strings.Builder
	args []interface{}
}

func (d Dialect) writer() *writer {
	w := &writer{d: d, b: &strings.Builder{}}
	w.b.Grow(128)
	return w
}

func (w *writer) done() Statement {
	return Statement{SQL: w.b.String(), Args: w.args}
}

func (w *writer) sql(s string) *writer {
	w.b.WriteString(s)
	return w
}

func (w *writer) ident(name string) *writer {
	w.b.WriteString(w.d.QuoteIdent(name))
	return w
}

func (w *writer) arg(v interface{}) *writer {
	w.args = append(w.args, v)
	if w.d.Numbered {
		w.b.WriteByte('$')
		w.b.WriteString(strconv.Itoa(len(w.args)))
	} else {
		w.b.WriteByte('?')
	}
	return w
}

// QuoteIdent quotes an identifier, quoting each part of a qualified name
// separately
func (d Dialect) QuoteIdent(name string) string {
	q := string(d.Quote)
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// Select renders a select directive
func (d Dialect) Select(q *akeraapi.Select) Statement {
	w := d.writer()
	w.sql("SELECT ")
	if len(q.Fields) == 0 {
		w.sql("*")
	}
	for i, f := range q.Fields {
		if i > 0 {
			w.sql(", ")
		}
		w.ident(f.Name)
		if f.Alias != "" {
			w.sql(" AS ").ident(f.Alias)
		}
	}
	w.sql(" FROM ").ident(q.Table)
	w.where(q.Filter)

	for i, s := range q.Sort {
		if i == 0 {
			w.sql(" ORDER BY ")
		} else {
			w.sql(", ")
		}
		w.ident(s.Field)
		if s.Descending {
			w.sql(" DESC")
		} else {
			w.sql(" ASC")
		}
	}

	switch {
	case q.Limit > 0:
		w.sql(" LIMIT ").sql(strconv.Itoa(q.Limit))
	case q.Offset > 0 && d.NoLimit != "":
		w.sql(" LIMIT ").sql(d.NoLimit)
	}
	if q.Offset > 0 {
		w.sql(" OFFSET ").sql(strconv.Itoa(q.Offset))
	}
	return w.done()
}

// Count renders SELECT COUNT(*) over the rows a select would match
func (d Dialect) Count(q *akeraapi.Select) Statement {
	w := d.writer()
	w.sql("SELECT COUNT(*) FROM ").ident(q.Table)
	w.where(q.Filter)
	return w.done()
}

// Insert renders an insert, with RETURNING * when the dialect has it
func (d Dialect) Insert(q *akeraapi.Insert) Statement {
	w := d.writer()
	w.insert(q.Table, q.Values)
	if d.Returning {
		w.sql(" RETURNING *")
	}
	return w.done()
}

// Upsert renders an insert that updates the given columns of the row with
// the same key instead of failing
func (d Dialect) Upsert(q *akeraapi.Upsert) Statement {
	w := d.writer()
	w.insert(q.Table, q.Values)

	if d.Returning {
		w.sql(" ON CONFLICT (")
		for i, k := range q.Keys {
			if i > 0 {
				w.sql(", ")
			}
			w.ident(k)
		}
		w.sql(") DO UPDATE SET ")
		for i, v := range q.Values {
			if i > 0 {
				w.sql(", ")
			}
			w.ident(v.Name).sql(" = EXCLUDED.").ident(v.Name)
		}
		w.sql(" RETURNING *")
		return w.done()
	}

	w.sql(" ON DUPLICATE KEY UPDATE ")
	for i, v := range q.Values {
		if i > 0 {
			w.sql(", ")
		}
		w.ident(v.Name).sql(" = VALUES(").ident(v.Name).sql(")")
	}
	return w.done()
}

// Update renders an update
func (d Dialect) Update(q *akeraapi.Update) Statement {
	w := d.writer()
	w.sql("UPDATE ").ident(q.Table).sql(" SET ")
	for i, v := range q.Values {
		if i > 0 {
			w.sql(", ")
		}
		w.ident(v.Name).sql(" = ").arg(v.Value)
	}
	w.where(q.Filter)
	return w.done()
}

// Delete renders a delete
func (d Dialect) Delete(q *akeraapi.Delete) Statement {
	w := d.writer()
	w.sql("DELETE FROM ").ident(q.Table)
	w.where(q.Filter)
	return w.done()
}

// Where renders a filter on its own, for callers composing their own SQL
func (d Dialect) Where(f *akeraapi.Filter) Statement {
	w := d.writer()
	w.filter(f)
	return w.done()
}

func (w *writer) insert(table string, values []akeraapi.SetField) {
	w.sql("INSERT INTO ").ident(table)
	if len(values) == 0 {
		if w.d.Returning {
			w.sql(" DEFAULT VALUES")
		} else {
			w.sql(" () VALUES ()")
		}
		return
	}

	w.sql(" (")
	for i, v := range values {
		if i > 0 {
			w.sql(", ")
		}
		w.ident(v.Name)
	}
	w.sql(") VALUES (")
	for i, v := range values {
		if i > 0 {
			w.sql(", ")
		}
		w.arg(v.Value)
	}
	w.sql(")")
}

func (w *writer) where(f *akeraapi.Filter) {
	if f == nil {
		return
	}
	w.sql(" WHERE ")
	w.filter(f)
}

// filter renders a filter tree. Ne is rendered as the complement of Eq,
// so rows with a null column match it.
func (w *writer) filter(f *akeraapi.Filter) {
	if f == nil {
		w.sql("1=1")
		return
	}

	switch f.Op {
	case akeraapi.OpAnd, akeraapi.OpOr:
		if len(f.Children) == 0 {
			if f.Op == akeraapi.OpAnd {
				w.sql("1=1")
			} else {
				w.sql("1=0")
			}
			return
		}
		sep := " AND "
		if f.Op == akeraapi.OpOr {
			sep = " OR "
		}
		w.sql("(")
		for i, c := range f.Children {
			if i > 0 {
				w.sql(sep)
			}
			w.filter(c)
		}
		w.sql(")")
	case akeraapi.OpNot:
		w.sql("NOT (")
		if len(f.Children) > 0 {
			w.filter(f.Children[0])
		} else {
			w.sql("1=1")
		}
		w.sql(")")
	case akeraapi.OpEq:
		if f.Value == nil {
			w.ident(f.Field).sql(" IS NULL")
			return
		}
		w.ident(f.Field).sql(" = ").arg(f.Value)
	case akeraapi.OpNe:
		if f.Value == nil {
			w.ident(f.Field).sql(" IS NOT NULL")
			return
		}
		w.sql("(").ident(f.Field).sql(" <> ").arg(f.Value).sql(" OR ").ident(f.Field).sql(" IS NULL)")
	case akeraapi.OpGt:
		w.ident(f.Field).sql(" > ").arg(f.Value)
	case akeraapi.OpGe:
		w.ident(f.Field).sql(" >= ").arg(f.Value)
	case akeraapi.OpLt:
		w.ident(f.Field).sql(" < ").arg(f.Value)
	case akeraapi.OpLe:
		w.ident(f.Field).sql(" <= ").arg(f.Value)
	case akeraapi.OpMatches:
		pattern, _ := f.Value.(string)
		w.ident(f.Field).sql(" LIKE ").arg(LikePattern(pattern))
	default:
		w.sql("1=0")
	}
}

// LikePattern converts a MATCHES pattern to LIKE: * becomes % and . becomes
// _, while % and _ pass through
func LikePattern(pattern string) string {
	return strings.NewReplacer("*", "%", ".", "_").Replace(pattern)
}

// FieldType maps a SQL data type to a vendor field type. columnType is the
// full column type where the server reports one (tinyint(1) in MySQL).
func FieldType(dataType, columnType string) akeraapi.FieldDataType {
	dt := strings.ToLower(strings.TrimSpace(dataType))
	ct := strings.ToLower(strings.TrimSpace(columnType))

	switch {
	case dt == "boolean" || dt == "bool" || ct == "tinyint(1)":
		return akeraapi.TypeLogical
	case dt == "integer" || dt == "int" || dt == "smallint" || dt == "mediumint" || dt == "tinyint" || dt == "int4" || dt == "int2":
		return akeraapi.TypeInteger
	case dt == "bigint" || dt == "int8":
		return akeraapi.TypeInt64
	case dt == "numeric" || dt == "decimal" || dt == "real" || dt == "float" || dt == "double" ||
		strings.HasPrefix(dt, "double"):
		return akeraapi.TypeDecimal
	case dt == "date":
		return akeraapi.TypeDate
	case dt == "timestamp with time zone" || dt == "timestamptz":
		return akeraapi.TypeDatetimeTZ
	case strings.HasPrefix(dt, "timestamp") || dt == "datetime":
		return akeraapi.TypeDatetime
	case dt == "text" || dt == "longtext" || dt == "mediumtext":
		return akeraapi.TypeClob
	case dt == "bytea" || strings.HasSuffix(dt, "blob") || dt == "binary" || dt == "varbinary":
		return akeraapi.TypeBlob
	}
	return akeraapi.TypeCharacter
}
