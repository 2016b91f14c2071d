package akeraapi

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterString(t *testing.T) {
	f := And(Ge("qty", 1), Le("qty", 5), Not(Matches("name", "W*")))
	assert.Equal(t, "and(ge(qty,1),le(qty,5),not(matches(name,W*)))", f.String())

	var nilFilter *Filter
	assert.Equal(t, "<nil>", nilFilter.String())
	assert.Equal(t, "or()", Or().String())
}

func TestFilterFields(t *testing.T) {
	f := Or(Eq("id", 1), And(Eq("name", "a"), Ne("id", 2)))
	assert.Equal(t, []string{"id", "name"}, f.Fields())
}

func TestOp(t *testing.T) {
	assert.True(t, OpAnd.IsGroup())
	assert.True(t, OpNot.IsGroup())
	assert.False(t, OpMatches.IsGroup())
	assert.Equal(t, "op(99)", Op(99).String())

	text, err := OpGe.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ge", string(text))
}

func TestSelectBuilder(t *testing.T) {
	sel := NewSelect("warehouse").Where(Eq("id", 1)).By("name", true)
	assert.Equal(t, "warehouse", sel.Table)
	assert.Equal(t, []SortField{{Field: "name", Descending: true}}, sel.Sort)
	assert.Equal(t, "eq(id,1)", sel.Filter.String())

	assert.Equal(t, "code", Field{Name: "wh_code", Alias: "code"}.Key())
	assert.Equal(t, "name", Field{Name: "name"}.Key())

	v, ok := Value([]SetField{{Name: "a", Value: 1}}, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = Value(nil, "a")
	assert.False(t, ok)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"W*", "Warehouse", true},
		{"W*", "warehouse", false},
		{"*house", "Warehouse", true},
		{"Ware.ouse", "Warehouse", true},
		{"Ware.ouse", "Warehhouse", false},
		{"%house", "Warehouse", true},
		{"Ware_ouse", "Warehouse", true},
		{"*a*e*", "Warehouse", true},
		{"", "", true},
		{"", "x", false},
		{"*", "", true},
		{"abc", "abcd", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.input))
		})
	}
}

func TestStateMachine(t *testing.T) {
	var m StateMachine
	assert.Equal(t, StateConnecting, m.State())

	var mu sync.Mutex
	var seen []State
	m.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	m.Transition(StateIdle)
	done := m.Begin()
	assert.Equal(t, StateQuery, m.State())
	done()
	m.Transition(StateClosed)
	m.Transition(StateIdle)

	assert.True(t, m.Closed())
	assert.Equal(t, []State{StateIdle, StateQuery, StateIdle, StateClosed}, seen)
}

func TestStateMachineReentrantHandler(t *testing.T) {
	var m StateMachine
	m.OnStateChange(func(s State) {
		if s == StateIdle {
			m.Transition(StateClosed)
		}
	})
	m.Transition(StateIdle)
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, "closed", m.State().String())
}
