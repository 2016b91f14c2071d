package akera

import (
	"encoding/base64"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/connector/core"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

func objects(m *model.Model, rows []akeraapi.Record) []core.DataObject {
	out := make([]core.DataObject, len(rows))
	for i, r := range rows {
		out[i] = object(m, r)
	}
	return out
}

// object renames vendor columns back to property names. Columns that are not
// mapped to a property are dropped. Buffer properties delivered as base64
// text are decoded.
func object(m *model.Model, r akeraapi.Record) core.DataObject {
	out := make(core.DataObject, len(r))
	for col, v := range r {
		name := m.PropertyFor(col)
		p, ok := m.Property(name)
		if !ok {
			continue
		}
		if p.Type == model.TypeBuffer {
			v = buffer(v)
		}
		out[name] = v
	}
	return out
}

func buffer(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return v
	}
	return b
}
