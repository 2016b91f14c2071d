package memory

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
)

// eval reports whether r satisfies f. A nil filter matches every row. Ne is
// the exact complement of Eq, nulls included.
func (t *table) eval(f *akeraapi.Filter, r akeraapi.Record) bool {
	if f == nil {
		return true
	}

	switch f.Op {
	case akeraapi.OpAnd:
		for _, c := range f.Children {
			if !t.eval(c, r) {
				return false
			}
		}
		return true
	case akeraapi.OpOr:
		for _, c := range f.Children {
			if t.eval(c, r) {
				return true
			}
		}
		return false
	case akeraapi.OpNot:
		if len(f.Children) == 0 {
			return false
		}
		return !t.eval(f.Children[0], r)
	}

	name, _ := t.column(f.Field)
	v := r[name]

	switch f.Op {
	case akeraapi.OpEq:
		return equal(v, f.Value)
	case akeraapi.OpNe:
		return !equal(v, f.Value)
	case akeraapi.OpGt:
		c, ok := compare(v, f.Value)
		return ok && c > 0
	case akeraapi.OpGe:
		c, ok := compare(v, f.Value)
		return ok && c >= 0
	case akeraapi.OpLt:
		c, ok := compare(v, f.Value)
		return ok && c < 0
	case akeraapi.OpLe:
		c, ok := compare(v, f.Value)
		return ok && c <= 0
	case akeraapi.OpMatches:
		if v == nil {
			return false
		}
		pattern, ok := f.Value.(string)
		if !ok {
			pattern = fmt.Sprint(f.Value)
		}
		return akeraapi.MatchPattern(pattern, text(v))
	}
	return false
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compare(a, b)
	return ok && c == 0
}

// compare orders two non-nil scalars of compatible kinds
func compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmpFloat(x, y), true
		}
		if s, ok := b.(string); ok {
			if y, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return cmpFloat(x, y), true
			}
		}
		return 0, false
	}

	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), true
		case time.Time:
			if tx, ok := toTime(x); ok {
				return tx.Compare(y), true
			}
			return 0, false
		}
		if y, ok := toFloat(b); ok {
			if fx, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return cmpFloat(fx, y), true
			}
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if ty, ok := toTime(b); ok {
			return x.Compare(ty), true
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), true
		}
	}
	return 0, false
}

// order is a total order for sorting: nulls first, then comparable values,
// then anything else by its text form
func order(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return strings.Compare(text(a), text(b))
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func text(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
