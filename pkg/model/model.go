// Package model holds the ORM model definitions a connector knows about and
// the metadata the connector derives from them: primary key order, the
// property to column alias map and the vendor table name.
//
// Derived metadata lives in Model values owned by a Registry. The caller's
// Definition is never modified.
package model

import (
	"sort"
	"strings"

	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// PropertyType is an abstract ORM property type
type PropertyType string

const (
	TypeString  PropertyType = "String"
	TypeNumber  PropertyType = "Number"
	TypeBoolean PropertyType = "Boolean"
	TypeDate    PropertyType = "Date"
	TypeBuffer  PropertyType = "Buffer"
	TypeObject  PropertyType = "Object"
	TypeAny     PropertyType = "Any"
)

// Property is a model property. ID is the 1-based position of the property in
// the primary key, zero when the property is not part of it. Column is the
// vendor column name when it differs from the property name.
type Property struct {
	Name     string       `json:"name" yaml:"name"`
	Type     PropertyType `json:"type" yaml:"type"`
	ID       int          `json:"id,omitempty" yaml:"id,omitempty"`
	Column   string       `json:"column,omitempty" yaml:"column,omitempty"`
	Required bool         `json:"required,omitempty" yaml:"required,omitempty"`
}

// Settings holds the vendor placement of a model
type Settings struct {
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Table  string `json:"table,omitempty" yaml:"table,omitempty"`
}

// Relation is relation metadata carried through for the ORM; the connector
// does not resolve relations itself.
type Relation struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Model      string `json:"model" yaml:"model"`
	ForeignKey string `json:"foreignKey,omitempty" yaml:"foreignKey,omitempty"`
}

// Definition is an ORM model definition as handed to Define
type Definition struct {
	Name       string     `json:"name" yaml:"name"`
	Properties []Property `json:"properties" yaml:"properties"`
	Settings   Settings   `json:"settings,omitempty" yaml:"settings,omitempty"`
	Relations  []Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Model is the connector's view of a defined model
type Model struct {
	name      string
	table     string
	props     []Property
	byName    map[string]Property
	keys      []string
	columns   map[string]string
	reverse   map[string]string
	relations []Relation
}

// New derives a Model from def
func New(def *Definition) (*Model, error) {
	if def == nil || def.Name == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "model definition requires a name")
	}

	m := &Model{
		name:      def.Name,
		props:     make([]Property, 0, len(def.Properties)),
		byName:    make(map[string]Property, len(def.Properties)),
		columns:   make(map[string]string),
		reverse:   make(map[string]string),
		relations: append([]Relation(nil), def.Relations...),
	}

	type keyPos struct {
		name string
		pos  int
	}
	var keys []keyPos

	for _, p := range def.Properties {
		if p.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "model %s has a property without a name", def.Name)
		}
		if _, dup := m.byName[p.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation, "model %s declares property %s twice", def.Name, p.Name)
		}
		if p.Type == "" {
			p.Type = TypeAny
		}
		m.props = append(m.props, p)
		m.byName[p.Name] = p

		if p.Column != "" && p.Column != p.Name {
			m.columns[p.Name] = p.Column
			m.reverse[p.Column] = p.Name
		}
		if p.ID > 0 {
			keys = append(keys, keyPos{name: p.Name, pos: p.ID})
		}
	}

	sort.SliceStable(keys, func(i, j int) bool { return keys[i].pos < keys[j].pos })
	for _, k := range keys {
		m.keys = append(m.keys, k.name)
	}

	switch {
	case def.Settings.Table != "" && def.Settings.Schema != "":
		m.table = def.Settings.Schema + "." + def.Settings.Table
	case def.Settings.Table != "":
		m.table = def.Settings.Table
	default:
		m.table = strings.ToLower(def.Name)
	}

	return m, nil
}

// Name returns the model name as defined
func (m *Model) Name() string { return m.name }

// Table returns the vendor table, qualified with the schema when one is set
func (m *Model) Table() string { return m.table }

// Keys returns the primary key properties in key order
func (m *Model) Keys() []string { return append([]string(nil), m.keys...) }

// Relations returns the relation metadata of the model
func (m *Model) Relations() []Relation { return m.relations }

// Properties returns the properties in declaration order
func (m *Model) Properties() []Property { return m.props }

// PropertyNames returns the property names in declaration order
func (m *Model) PropertyNames() []string {
	names := make([]string, len(m.props))
	for i, p := range m.props {
		names[i] = p.Name
	}
	return names
}

// Property looks up a property by name
func (m *Model) Property(name string) (Property, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// HasProperty reports whether name is a declared property
func (m *Model) HasProperty(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Column returns the vendor column for a property
func (m *Model) Column(property string) string {
	if c, ok := m.columns[property]; ok {
		return c
	}
	return property
}

// PropertyFor returns the property stored in a vendor column
func (m *Model) PropertyFor(column string) string {
	if p, ok := m.reverse[column]; ok {
		return p
	}
	return column
}

// Aliased reports whether the model maps any property to a differently
// named column
func (m *Model) Aliased() bool { return len(m.columns) > 0 }

// RequireKeys returns the key properties or an error when the model has none
func (m *Model) RequireKeys() ([]string, error) {
	if len(m.keys) == 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"The model %s does not have any primary key defined.", m.name)
	}
	return m.Keys(), nil
}
