package akeraapi

// Record is a row as exchanged with the application server, keyed by
// vendor column name.
type Record map[string]interface{}

// Field is a selected column. Alias is set when the model exposes the
// column under a different property name.
type Field struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

// Key returns the name the column is reported under in result rows
func (f Field) Key() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// SortField orders a select by one column
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// Select is a read directive against a single table. A zero Limit or
// Offset means unset.
type Select struct {
	Table  string      `json:"table"`
	Fields []Field     `json:"fields,omitempty"`
	Filter *Filter     `json:"filter,omitempty"`
	Sort   []SortField `json:"sort,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// NewSelect returns a select over every column of table
func NewSelect(table string) *Select {
	return &Select{Table: table}
}

// Where sets the filter and returns the select for chaining
func (s *Select) Where(f *Filter) *Select {
	s.Filter = f
	return s
}

// By appends a sort column
func (s *Select) By(field string, descending bool) *Select {
	s.Sort = append(s.Sort, SortField{Field: field, Descending: descending})
	return s
}

// SetField assigns a value to a column in insert, update and upsert directives
type SetField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Insert creates one row. Keys lists the primary key columns so backends
// that cannot return the inserted row directly can fetch it back.
type Insert struct {
	Table  string     `json:"table"`
	Values []SetField `json:"values"`
	Keys   []string   `json:"keys,omitempty"`
}

// Upsert inserts a row or replaces the row that has the same Keys values
type Upsert struct {
	Table  string     `json:"table"`
	Values []SetField `json:"values"`
	Keys   []string   `json:"keys"`
}

// Update sets Values on every row matching Filter
type Update struct {
	Table  string     `json:"table"`
	Values []SetField `json:"values"`
	Filter *Filter    `json:"filter,omitempty"`
}

// Delete removes every row matching Filter
type Delete struct {
	Table  string  `json:"table"`
	Filter *Filter `json:"filter,omitempty"`
}

// Value returns the value assigned to name, if any
func Value(values []SetField, name string) (interface{}, bool) {
	for _, v := range values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return nil, false
}
