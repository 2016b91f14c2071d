package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestPagingOptionsPage(t *testing.T) {
	tests := []struct {
		name       string
		opts       PagingOptions
		n          int
		start, end int
	}{
		{name: "everything", opts: PagingOptions{}, n: 5, start: 0, end: 5},
		{name: "limit", opts: PagingOptions{Limit: 2}, n: 5, start: 0, end: 2},
		{name: "skip", opts: PagingOptions{Skip: intp(3)}, n: 5, start: 3, end: 5},
		{name: "offset wins", opts: PagingOptions{Offset: intp(1), Skip: intp(4), Limit: 2}, n: 5, start: 1, end: 3},
		{name: "past the end", opts: PagingOptions{Offset: intp(9)}, n: 5, start: 5, end: 5},
		{name: "negative offset", opts: PagingOptions{Offset: intp(-2), Limit: 1}, n: 5, start: 0, end: 1},
		{name: "limit beyond end", opts: PagingOptions{Skip: intp(4), Limit: 10}, n: 5, start: 4, end: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.opts.Page(tt.n)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "", DiscoveryOptions{}.SchemaName())
	assert.Equal(t, "crm", DiscoveryOptions{Schema: "crm"}.SchemaName())
	assert.Equal(t, "sports", DiscoveryOptions{Owner: "sports", Schema: "crm"}.SchemaName())
}
