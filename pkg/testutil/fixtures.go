package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/backends/memory"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// SportsDB is the database the fixture server is seeded with
const SportsDB = "sports2000"

// Row counts of the seeded fixture tables
const (
	WarehouseRows = 8
	StateRows     = 7
	OrderLineRows = 6
)

// WarehouseModel is a single-key model whose properties are mapped to
// differently named columns
func WarehouseModel() *model.Definition {
	return &model.Definition{
		Name: "Warehouse",
		Properties: []model.Property{
			{Name: "warehouseNum", Type: model.TypeNumber, ID: 1, Column: "WarehouseNum"},
			{Name: "warehouseName", Type: model.TypeString, Column: "WarehouseName"},
			{Name: "country", Type: model.TypeString, Column: "Country"},
			{Name: "city", Type: model.TypeString, Column: "City"},
			{Name: "state", Type: model.TypeString, Column: "State"},
		},
		Settings: model.Settings{Schema: SportsDB, Table: "Warehouse"},
	}
}

// StateModel is a single-key model keyed by a character column
func StateModel() *model.Definition {
	return &model.Definition{
		Name: "State",
		Properties: []model.Property{
			{Name: "state", Type: model.TypeString, ID: 1, Column: "State"},
			{Name: "stateName", Type: model.TypeString, Column: "StateName"},
			{Name: "region", Type: model.TypeString, Column: "Region"},
		},
		Settings: model.Settings{Table: "State"},
	}
}

// OrderLineModel has a composite (orderNum, lineNum) key and a Buffer
// property
func OrderLineModel() *model.Definition {
	return &model.Definition{
		Name: "OrderLine",
		Properties: []model.Property{
			{Name: "lineNum", Type: model.TypeNumber, ID: 2, Column: "Linenum"},
			{Name: "orderNum", Type: model.TypeNumber, ID: 1, Column: "Ordernum"},
			{Name: "itemNum", Type: model.TypeNumber, Column: "Itemnum"},
			{Name: "price", Type: model.TypeNumber, Column: "Price"},
			{Name: "qty", Type: model.TypeNumber, Column: "Qty"},
			{Name: "status", Type: model.TypeString, Column: "OrderLineStatus"},
			{Name: "attachment", Type: model.TypeBuffer, Column: "Attachment"},
		},
		Settings: model.Settings{Schema: SportsDB, Table: "OrderLine"},
	}
}

// NewSportsServer returns a memory server seeded with the Warehouse, State
// and OrderLine tables of the sports2000 database
func NewSportsServer(t *testing.T) *memory.Server {
	t.Helper()

	s := memory.NewServer()
	require.NoError(t, s.CreateTable(SportsDB, memory.TableDef{
		Name: "Warehouse",
		Columns: []memory.Column{
			{Name: "WarehouseNum", Type: akeraapi.TypeInteger, Mandatory: true},
			{Name: "WarehouseName", Type: akeraapi.TypeCharacter},
			{Name: "Country", Type: akeraapi.TypeCharacter},
			{Name: "City", Type: akeraapi.TypeCharacter},
			{Name: "State", Type: akeraapi.TypeCharacter},
		},
		PrimaryKey: []string{"WarehouseNum"},
		PkName:     "WarehouseNum",
	}))
	require.NoError(t, s.CreateTable(SportsDB, memory.TableDef{
		Name: "State",
		Columns: []memory.Column{
			{Name: "State", Type: akeraapi.TypeCharacter, Mandatory: true},
			{Name: "StateName", Type: akeraapi.TypeCharacter},
			{Name: "Region", Type: akeraapi.TypeCharacter},
		},
		PrimaryKey: []string{"State"},
		PkName:     "State",
	}))
	require.NoError(t, s.CreateTable(SportsDB, memory.TableDef{
		Name: "OrderLine",
		Columns: []memory.Column{
			{Name: "Ordernum", Type: akeraapi.TypeInteger, Mandatory: true},
			{Name: "Linenum", Type: akeraapi.TypeInteger, Mandatory: true},
			{Name: "Itemnum", Type: akeraapi.TypeInteger},
			{Name: "Price", Type: akeraapi.TypeDecimal, Decimals: 2},
			{Name: "Qty", Type: akeraapi.TypeInteger},
			{Name: "OrderLineStatus", Type: akeraapi.TypeCharacter},
			{Name: "Attachment", Type: akeraapi.TypeBlob},
		},
		PrimaryKey: []string{"Ordernum", "Linenum"},
		PkName:     "orderline",
	}))

	warehouses := []struct {
		num                 int
		name, country, city string
		state               interface{}
	}{
		{1, "Atlanta", "USA", "Atlanta", "GA"},
		{2, "Boston", "USA", "Boston", "MA"},
		{3, "Chicago", "USA", "Chicago", "IL"},
		{4, "Denver", "USA", "Denver", "CO"},
		{5, "Edmonton", "Canada", "Edmonton", "AB"},
		{6, "Frankfurt", "Germany", "Frankfurt", nil},
		{7, "Glasgow", "UK", "Glasgow", nil},
		{8, "Houston", "USA", "Houston", "TX"},
	}
	for _, w := range warehouses {
		require.NoError(t, s.InsertRows(SportsDB, "Warehouse", akeraapi.Record{
			"WarehouseNum":  w.num,
			"WarehouseName": w.name,
			"Country":       w.country,
			"City":          w.city,
			"State":         w.state,
		}))
	}

	states := [][3]string{
		{"AK", "Alaska", "West"},
		{"AL", "Alabama", "South"},
		{"CA", "California", "West"},
		{"GA", "Georgia", "South"},
		{"MA", "Massachusetts", "East"},
		{"NY", "New York", "East"},
		{"TX", "Texas", "South"},
	}
	for _, st := range states {
		require.NoError(t, s.InsertRows(SportsDB, "State", akeraapi.Record{
			"State": st[0], "StateName": st[1], "Region": st[2],
		}))
	}

	lines := []struct {
		order, line, item, qty int
		price                  float64
		status                 string
	}{
		{1, 1, 10, 1, 9.5, "Shipped"},
		{1, 2, 11, 5, 25, "Shipped"},
		{1, 3, 12, 3, 40, "Ordered"},
		{2, 1, 10, 2, 9.5, "Ordered"},
		{2, 2, 13, 8, 12, "Ordered"},
		{3, 1, 11, 4, 25, "Shipped"},
	}
	for _, l := range lines {
		require.NoError(t, s.InsertRows(SportsDB, "OrderLine", akeraapi.Record{
			"Ordernum":        l.order,
			"Linenum":         l.line,
			"Itemnum":         l.item,
			"Qty":             l.qty,
			"Price":           l.price,
			"OrderLineStatus": l.status,
		}))
	}

	return s
}
